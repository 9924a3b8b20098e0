package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"track-rainfall/internal/rainfall"
)

var (
	// ErrFetch wraps every failure to obtain readings for a cycle.
	ErrFetch = errors.New("fetch rainfall readings")
	// ErrNoRainfallMeasure indicates the station exposes no rainfall stream.
	ErrNoRainfallMeasure = errors.New("no rainfall measure for station")
)

// Source is the upstream capability the pipeline depends on.
type Source interface {
	// ResolveMeasure maps a station to the id of its rainfall measure.
	ResolveMeasure(ctx context.Context, stationID string) (string, error)
	// FetchReadings returns raw readings of a measure between start and end inclusive.
	FetchReadings(ctx context.Context, measureID string, start, end time.Time) (Page, error)
}

// Page is one upstream response of readings.
type Page struct {
	Readings []rainfall.Reading
	// Truncated is set when the response hit the page limit, so the oldest
	// readings of the range may be missing.
	Truncated bool
}

// APIError is a non-success upstream response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("flood-monitoring api error (%d)", e.Status)
	}
	return fmt.Sprintf("flood-monitoring api error (%d): %s", e.Status, e.Body)
}

// FetchRainfall resolves the station's rainfall measure and fetches its
// readings over w. All failures wrap ErrFetch.
func FetchRainfall(ctx context.Context, src Source, stationID string, w rainfall.Window) (Page, string, error) {
	if stationID == "" {
		return Page{}, "", fmt.Errorf("%w: station id required", ErrFetch)
	}

	measureID, err := src.ResolveMeasure(ctx, stationID)
	if err != nil {
		return Page{}, "", fmt.Errorf("%w: resolve measure for %s: %w", ErrFetch, stationID, err)
	}

	page, err := src.FetchReadings(ctx, measureID, w.Start, w.End)
	if err != nil {
		return Page{}, measureID, fmt.Errorf("%w: readings for %s over %s: %w", ErrFetch, measureID, w, err)
	}
	return page, measureID, nil
}
