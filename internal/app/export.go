package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"track-rainfall/internal/rainfall"
	"track-rainfall/internal/storage"
)

// Export writes a window of the daily series as CSV and/or a PNG chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	window, err := a.exportWindow(opts)
	if err != nil {
		return err
	}

	series, err := a.loadExportSeries(ctx, opts, window)
	if err != nil {
		return err
	}
	if len(series) == 0 {
		a.Logger.Info().Str("window", window.String()).Msg("no daily totals found for export window")
		return nil
	}
	a.Logger.Info().Str("window", window.String()).Int("days", len(series)).Msg("exporting daily totals")

	if opts.CSVPath != "" {
		if err := writeSeriesCSV(opts.CSVPath, series); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeSeriesPNG(opts.PNGPath, series); err != nil {
			return err
		}
	}

	return nil
}

func (a *App) exportWindow(opts ExportOptions) (rainfall.Window, error) {
	maxDays := opts.MaxDays
	if maxDays <= 0 {
		maxDays = a.Config.Series.ChartMaxDays
	}

	to := rainfall.Day(time.Now())
	if opts.To != nil {
		to = rainfall.Day(*opts.To)
	}
	from := to.AddDate(0, 0, -(maxDays - 1))
	if opts.From != nil {
		from = rainfall.Day(*opts.From)
	}
	if from.After(to) {
		return rainfall.Window{}, errors.New("from must not be after to")
	}
	return rainfall.Window{Start: from, End: to}, nil
}

func (a *App) loadExportSeries(ctx context.Context, opts ExportOptions, window rainfall.Window) (rainfall.Series, error) {
	if !opts.FromDB {
		series, err := storage.NewSeriesFile(a.Config.Series.OutputFile).Load()
		if err != nil {
			return nil, err
		}
		return series.Between(window), nil
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("database not configured; cannot export from mirror")
	}
	defer closeStore()

	return store.ListBetween(ctx, a.Config.Upstream.StationID, window)
}

func writeSeriesCSV(path string, series rainfall.Series) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := storage.WriteCSV(file, series); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return file.Close()
}

func writeSeriesPNG(path string, series rainfall.Series) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(series))
	daily := make([]float64, len(series))
	cumulative := make([]float64, len(series))

	running := 0.0
	for i, row := range series {
		x[i] = row.Date
		daily[i] = row.RainfallMM.InexactFloat64()
		running += daily[i]
		cumulative[i] = running
	}

	mmFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.1f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Daily rainfall (mm)",
			ValueFormatter: mmFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Cumulative (mm)",
			ValueFormatter: mmFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Daily",
				XValues: x,
				YValues: daily,
				Style: chart.Style{
					StrokeWidth: 2,
				},
			},
			chart.TimeSeries{
				Name:    "Cumulative",
				XValues: x,
				YValues: cumulative,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
