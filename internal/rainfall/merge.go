package rainfall

import (
	"time"

	"github.com/shopspring/decimal"
)

// Changes counts how a batch alters an existing series.
type Changes struct {
	Added   int
	Updated int
}

// Merge upserts batch into existing. Batch values win on shared dates,
// dates only in existing are kept, and the result is sorted by date.
// Neither input is modified.
func Merge(existing, batch Series) Series {
	byDate := make(map[time.Time]decimal.Decimal, len(existing)+len(batch))
	for _, row := range existing {
		byDate[Day(row.Date)] = row.RainfallMM
	}
	for _, row := range batch {
		byDate[Day(row.Date)] = row.RainfallMM
	}
	return fromTotals(byDate)
}

// Diff reports how many batch dates are new to existing and how many
// overwrite a stored value.
func Diff(existing, batch Series) Changes {
	known := make(map[time.Time]struct{}, len(existing))
	for _, row := range existing {
		known[Day(row.Date)] = struct{}{}
	}
	seen := make(map[time.Time]struct{}, len(batch))
	var changes Changes
	for _, row := range batch {
		day := Day(row.Date)
		if _, dup := seen[day]; dup {
			continue
		}
		seen[day] = struct{}{}
		if _, ok := known[day]; ok {
			changes.Updated++
		} else {
			changes.Added++
		}
	}
	return changes
}
