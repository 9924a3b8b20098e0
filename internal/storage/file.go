package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"track-rainfall/internal/rainfall"
)

const (
	dateColumn     = "date"
	rainfallColumn = "rainfall_mm"
)

// ErrMalformedSeries indicates an existing series file could not be parsed.
var ErrMalformedSeries = errors.New("malformed series file")

// SeriesStore persists the daily series between cycles.
type SeriesStore interface {
	Load() (rainfall.Series, error)
	Save(series rainfall.Series) error
}

// SeriesFile stores the series as a date,rainfall_mm CSV file.
type SeriesFile struct {
	path string
}

// NewSeriesFile returns a store backed by the CSV file at path.
func NewSeriesFile(path string) *SeriesFile {
	return &SeriesFile{path: path}
}

// Path returns the backing file location.
func (f *SeriesFile) Path() string {
	return f.path
}

// Load reads the persisted series. A missing or empty file is an empty
// series. Columns other than date and rainfall_mm are ignored.
func (f *SeriesFile) Load() (rainfall.Series, error) {
	file, err := os.Open(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return rainfall.Series{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open series file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return rainfall.Series{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedSeries, f.path, err)
	}

	dateIdx, valueIdx := -1, -1
	for i, name := range header {
		switch strings.TrimPrefix(strings.TrimSpace(name), "\ufeff") {
		case dateColumn:
			dateIdx = i
		case rainfallColumn:
			valueIdx = i
		}
	}
	if dateIdx < 0 || valueIdx < 0 {
		return nil, fmt.Errorf("%w: %s: header must contain %s and %s", ErrMalformedSeries, f.path, dateColumn, rainfallColumn)
	}

	rows := make(rainfall.Series, 0)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedSeries, f.path, err)
		}
		if dateIdx >= len(record) || valueIdx >= len(record) {
			return nil, fmt.Errorf("%w: %s line %d: short record", ErrMalformedSeries, f.path, line)
		}

		rawValue := strings.TrimSpace(record[valueIdx])
		if rawValue == "" {
			continue
		}
		day, err := rainfall.ParseDate(strings.TrimSpace(record[dateIdx]))
		if err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", ErrMalformedSeries, f.path, line, err)
		}
		value, err := decimal.NewFromString(rawValue)
		if err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", ErrMalformedSeries, f.path, line, err)
		}
		rows = append(rows, rainfall.DailyTotal{Date: day, RainfallMM: value})
	}

	return rainfall.Merge(nil, rows), nil
}

// Save rewrites the whole file with series sorted by date. The data is
// written to a sibling temp file first so a failed write keeps the old series.
func (f *SeriesFile) Save(series rainfall.Series) error {
	if err := ensureDir(f.path); err != nil {
		return fmt.Errorf("create series dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".series-*.csv")
	if err != nil {
		return fmt.Errorf("create temp series file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	// CreateTemp opens 0600; keep the previous file's mode, else 0644.
	mode := fs.FileMode(0o644)
	if info, statErr := os.Stat(f.path); statErr == nil {
		mode = info.Mode().Perm()
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod series file: %w", err)
	}

	if err := writeSeriesCSV(tmp, rainfall.Merge(nil, series)); err != nil {
		tmp.Close()
		return fmt.Errorf("write series file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close series file: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		return fmt.Errorf("replace series file: %w", err)
	}
	return nil
}

// WriteCSV writes series in the persisted CSV layout to w.
func WriteCSV(w io.Writer, series rainfall.Series) error {
	return writeSeriesCSV(w, series)
}

func writeSeriesCSV(w io.Writer, series rainfall.Series) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{dateColumn, rainfallColumn}); err != nil {
		return err
	}
	for _, row := range series {
		if err := writer.Write([]string{row.Date.Format(rainfall.DateLayout), FormatMM(row.RainfallMM)}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// FormatMM renders a rainfall amount with at least one decimal place.
func FormatMM(d decimal.Decimal) string {
	s := d.String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

var _ SeriesStore = (*SeriesFile)(nil)
