package rainfall

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format used on the wire and on disk.
const DateLayout = "2006-01-02"

// Reading is a single sub-daily measurement as returned upstream.
// A nil Timestamp or Value marks a null or unparseable field.
type Reading struct {
	Timestamp *time.Time
	Value     *decimal.Decimal
}

// DailyTotal is the summed rainfall observed on one UTC calendar day.
type DailyTotal struct {
	Date       time.Time
	RainfallMM decimal.Decimal
}

// Series is a date-ordered run of daily totals with at most one row per date.
type Series []DailyTotal

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, value, time.UTC)
}

// Lookup returns the total recorded for the calendar date of day.
func (s Series) Lookup(day time.Time) (decimal.Decimal, bool) {
	day = Day(day)
	for _, row := range s {
		if row.Date.Equal(day) {
			return row.RainfallMM, true
		}
	}
	return decimal.Decimal{}, false
}

// Tail returns up to n of the most recent rows.
func (s Series) Tail(n int) Series {
	if n <= 0 || n >= len(s) {
		return s
	}
	return s[len(s)-n:]
}

// Between returns the rows whose date falls inside w.
func (s Series) Between(w Window) Series {
	out := make(Series, 0, len(s))
	for _, row := range s {
		if w.Contains(row.Date) {
			out = append(out, row)
		}
	}
	return out
}

// Total sums every row of the series.
func (s Series) Total() decimal.Decimal {
	total := decimal.Zero
	for _, row := range s {
		total = total.Add(row.RainfallMM)
	}
	return total
}

func fromTotals(byDate map[time.Time]decimal.Decimal) Series {
	series := make(Series, 0, len(byDate))
	for day, mm := range byDate {
		series = append(series, DailyTotal{Date: day, RainfallMM: mm})
	}
	sort.Slice(series, func(i, j int) bool {
		return series[i].Date.Before(series[j].Date)
	})
	return series
}
