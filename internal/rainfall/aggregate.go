package rainfall

import (
	"time"

	"github.com/shopspring/decimal"
)

// Aggregate sums raw readings into one total per UTC calendar date.
// Readings with a null timestamp or value are dropped, and dates without
// any valid reading produce no row. An empty input yields an empty series.
func Aggregate(readings []Reading) Series {
	sums := make(map[time.Time]decimal.Decimal)
	for _, reading := range readings {
		if reading.Timestamp == nil || reading.Value == nil {
			continue
		}
		day := Day(*reading.Timestamp)
		sums[day] = sums[day].Add(*reading.Value)
	}
	return fromTotals(sums)
}
