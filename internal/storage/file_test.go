package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"track-rainfall/internal/rainfall"
)

func total(t *testing.T, date, mm string) rainfall.DailyTotal {
	t.Helper()
	day, err := rainfall.ParseDate(date)
	require.NoError(t, err)
	return rainfall.DailyTotal{Date: day, RainfallMM: decimal.RequireFromString(mm)}
}

func TestSeriesFileMissingIsEmpty(t *testing.T) {
	store := NewSeriesFile(filepath.Join(t.TempDir(), "nope.csv"))

	series, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, series)
	assert.Empty(t, series)
}

func TestSeriesFileRoundTripSorted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "rainfall", "daily.csv")
	store := NewSeriesFile(path)

	err := store.Save(rainfall.Series{
		total(t, "2024-01-03", "1"),
		total(t, "2024-01-01", "2.0"),
		total(t, "2024-01-02", "0.25"),
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "date,rainfall_mm\n2024-01-01,2.0\n2024-01-02,0.25\n2024-01-03,1.0\n", string(raw))

	series, err := store.Load()
	require.NoError(t, err)
	require.Len(t, series, 3)
	assert.Equal(t, "2024-01-01", series[0].Date.Format(rainfall.DateLayout))
	assert.True(t, series[1].RainfallMM.Equal(decimal.RequireFromString("0.25")))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestSeriesFileSaveKeepsReadablePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daily.csv")
	store := NewSeriesFile(path)
	series := rainfall.Series{total(t, "2024-01-01", "1")}

	require.NoError(t, store.Save(series))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	require.NoError(t, os.Chmod(path, 0o640))
	require.NoError(t, store.Save(series))
	info, err = os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
}

func TestSeriesFileIgnoresDerivedColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daily.csv")
	content := "rain_7d,date,rainfall_mm\n3.5,2024-02-02,1.5\n2.0,2024-02-01,2.0\n,2024-02-03,\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	series, err := NewSeriesFile(path).Load()
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, "2024-02-01", series[0].Date.Format(rainfall.DateLayout))
	assert.Equal(t, "1.5", series[1].RainfallMM.String())
}

func TestSeriesFileRejectsMalformed(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"missing column": "day,mm\n2024-01-01,1\n",
		"bad date":       "date,rainfall_mm\n01/02/2024,1\n",
		"bad number":     "date,rainfall_mm\n2024-01-01,lots\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".csv")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

			_, err := NewSeriesFile(path).Load()
			assert.ErrorIs(t, err, ErrMalformedSeries)
		})
	}
}

func TestSeriesFileEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	series, err := NewSeriesFile(path).Load()
	require.NoError(t, err)
	assert.Empty(t, series)
}

func TestWriteCSVEmptySeriesKeepsHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, "date,rainfall_mm\n", buf.String())
}

func TestFormatMM(t *testing.T) {
	assert.Equal(t, "0.0", FormatMM(decimal.Zero))
	assert.Equal(t, "12.0", FormatMM(decimal.NewFromInt(12)))
	assert.Equal(t, "0.2", FormatMM(decimal.RequireFromString("0.20")))
}

func TestStoreNotConfigured(t *testing.T) {
	var store *Store
	ctx := context.Background()

	assert.ErrorIs(t, store.EnsureSchema(ctx), ErrNotConfigured)
	assert.ErrorIs(t, store.ApplyBatch(ctx, "S1", rainfall.Series{total(t, "2024-01-01", "1")}), ErrNotConfigured)
	_, err := store.CountDays(ctx, "S1")
	assert.ErrorIs(t, err, ErrNotConfigured)
	store.Close()
}
