package rainfall

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Mode selects how a fetch window is derived and how the batch is merged.
type Mode string

const (
	// ModeLatest fetches the most recent days and upserts them.
	ModeLatest Mode = "latest"
	// ModeHistorical fetches an explicit range and upserts it.
	ModeHistorical Mode = "historical"
)

const (
	DefaultLatestDays   = 7
	DefaultLookbackDays = 90
)

// ErrInvalidWindow is returned when a window cannot be resolved.
var ErrInvalidWindow = errors.New("invalid fetch window")

// ParseMode validates a mode name.
func ParseMode(value string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case ModeLatest:
		return ModeLatest, nil
	case ModeHistorical:
		return ModeHistorical, nil
	default:
		return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidWindow, value)
	}
}

// Window is an inclusive range of UTC calendar dates.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether the calendar date of t lies inside the window.
func (w Window) Contains(t time.Time) bool {
	day := Day(t)
	return !day.Before(w.Start) && !day.After(w.End)
}

// Days returns the number of calendar dates covered.
func (w Window) Days() int {
	return int(w.End.Sub(w.Start).Hours()/24) + 1
}

func (w Window) String() string {
	return w.Start.Format(DateLayout) + ".." + w.End.Format(DateLayout)
}

// Split cuts the window into consecutive sub-windows of at most chunkDays dates.
func (w Window) Split(chunkDays int) []Window {
	if chunkDays <= 0 {
		return []Window{w}
	}
	chunks := make([]Window, 0, w.Days()/chunkDays+1)
	for start := w.Start; !start.After(w.End); start = start.AddDate(0, 0, chunkDays) {
		end := start.AddDate(0, 0, chunkDays-1)
		if end.After(w.End) {
			end = w.End
		}
		chunks = append(chunks, Window{Start: start, End: end})
	}
	return chunks
}

// WindowOptions describe a requested fetch range.
type WindowOptions struct {
	Mode Mode
	// Days is the latest-mode width; zero means DefaultLatestDays.
	Days int
	// LookbackDays is the historical default span; zero means DefaultLookbackDays.
	LookbackDays int
	Start        *time.Time
	End          *time.Time
}

// ResolveWindow turns options into a concrete window relative to now.
// Latest mode with Days=7 covers the end date and the six dates before it.
// Historical mode uses Start/End when given. A missing Start is
// LookbackDays before the resolved end, so --end alone shifts the whole span.
func ResolveWindow(opts WindowOptions, now time.Time) (Window, error) {
	end := Day(now)
	if opts.End != nil {
		end = Day(*opts.End)
	}

	var start time.Time
	switch opts.Mode {
	case ModeLatest:
		days := opts.Days
		if days == 0 {
			days = DefaultLatestDays
		}
		if days < 1 {
			return Window{}, fmt.Errorf("%w: days must be positive, got %d", ErrInvalidWindow, days)
		}
		start = end.AddDate(0, 0, -(days - 1))
	case ModeHistorical:
		if opts.Start != nil {
			start = Day(*opts.Start)
		} else {
			lookback := opts.LookbackDays
			if lookback <= 0 {
				lookback = DefaultLookbackDays
			}
			start = end.AddDate(0, 0, -lookback)
		}
	default:
		return Window{}, fmt.Errorf("%w: unknown mode %q", ErrInvalidWindow, opts.Mode)
	}

	if start.After(end) {
		return Window{}, fmt.Errorf("%w: start %s is after end %s", ErrInvalidWindow, start.Format(DateLayout), end.Format(DateLayout))
	}
	return Window{Start: start, End: end}, nil
}
