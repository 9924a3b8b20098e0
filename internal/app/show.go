package app

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"track-rainfall/internal/rainfall"
	"track-rainfall/internal/storage"
)

const rollingDays = 7

// Show prints the most recent daily totals.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	series, err := storage.NewSeriesFile(a.Config.Series.OutputFile).Load()
	if err != nil {
		return err
	}
	if len(series) == 0 {
		fmt.Fprintln(a.Out, "no daily totals found")
		return nil
	}

	a.printRows(series, series.Tail(opts.Limit))
	return nil
}

func (a *App) printSeries(rows rainfall.Series) {
	if len(rows) == 0 {
		return
	}
	a.printRows(rows, rows)
}

// printRows renders rows with a trailing 7-day total computed over full.
func (a *App) printRows(full, rows rainfall.Series) {
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Date\tRainfall (mm)\t7-day (mm)")

	for _, row := range rows {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\n",
			row.Date.Format(rainfall.DateLayout),
			row.RainfallMM.StringFixed(1),
			trailingTotal(full, row.Date).StringFixed(1),
		)
	}

	writer.Flush()
}

func trailingTotal(series rainfall.Series, end time.Time) decimal.Decimal {
	w := rainfall.Window{Start: end.AddDate(0, 0, -(rollingDays - 1)), End: end}
	return series.Between(w).Total()
}
