package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"track-rainfall/internal/alerting"
	"track-rainfall/internal/fetcher"
	"track-rainfall/internal/rainfall"
	"track-rainfall/internal/storage"
)

// RangeProber is implemented by sources that can report which dates they hold.
type RangeProber interface {
	AvailableRange(ctx context.Context, measureID string) (rainfall.Window, bool, error)
}

// Options tune the updater.
type Options struct {
	// LookbackDays is the historical window used when no start date is given.
	LookbackDays int
	// NotifyOnFailure also sends a notification when a cycle fails.
	NotifyOnFailure bool
	Now             func() time.Time
}

// Updater runs fetch, aggregate, merge and persist cycles.
type Updater struct {
	source   fetcher.Source
	mirror   storage.MirrorStore
	notifier alerting.Notifier
	opts     Options
	logger   zerolog.Logger
}

// Request describes one update cycle.
type Request struct {
	StationID  string
	OutputFile string
	Mode       rainfall.Mode
	Days       int
	StartDate  *time.Time
	EndDate    *time.Time
	// DryRun computes the merged series without writing it anywhere.
	DryRun bool
}

// Result reports what a cycle did.
type Result struct {
	Series    rainfall.Series
	Batch     rainfall.Series
	Window    rainfall.Window
	MeasureID string
	Readings  int
	Added     int
	Updated   int
	// Truncated is set when the upstream page limit cut off older readings.
	Truncated bool
	Written   bool
}

// New constructs an updater. mirror and notifier may be nil.
func New(source fetcher.Source, mirror storage.MirrorStore, notifier alerting.Notifier, opts Options, logger zerolog.Logger) *Updater {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Updater{
		source:   source,
		mirror:   mirror,
		notifier: notifier,
		opts:     opts,
		logger:   logger.With().Str("component", "updater").Logger(),
	}
}

// FetchAndUpdate fetches readings for the requested window, aggregates them
// into daily totals and upserts them into the series file. Stored dates are
// never removed, in either mode. Nothing is written when the fetch fails.
func (u *Updater) FetchAndUpdate(ctx context.Context, req Request) (Result, error) {
	window, err := rainfall.ResolveWindow(rainfall.WindowOptions{
		Mode:         req.Mode,
		Days:         req.Days,
		LookbackDays: u.opts.LookbackDays,
		Start:        req.StartDate,
		End:          req.EndDate,
	}, u.opts.Now())
	if err != nil {
		return Result{}, err
	}

	res, err := u.run(ctx, req, window)
	if err != nil {
		u.notifyFailure(ctx, req, window, err)
		return res, err
	}
	return res, nil
}

func (u *Updater) run(ctx context.Context, req Request, window rainfall.Window) (Result, error) {
	logger := u.logger.With().
		Str("station", req.StationID).
		Str("mode", string(req.Mode)).
		Str("window", window.String()).
		Logger()
	logger.Info().Msg("rainfall update started")

	res := Result{Window: window}

	page, measureID, err := fetcher.FetchRainfall(ctx, u.source, req.StationID, window)
	if err != nil {
		return res, err
	}
	readings := page.Readings
	res.MeasureID = measureID
	res.Readings = len(readings)
	res.Truncated = page.Truncated
	if len(readings) == 0 {
		u.explainEmpty(ctx, logger, measureID, window)
	}
	if page.Truncated {
		logger.Warn().Msg("upstream page limit reached; older days in the window are incomplete, use a shorter window or backfill")
	}

	batch := rainfall.Aggregate(readings)
	res.Batch = batch
	logger.Info().Str("measure", measureID).Int("readings", len(readings)).Int("days", len(batch)).Msg("aggregated daily totals")

	store := storage.NewSeriesFile(req.OutputFile)
	existing, err := store.Load()
	if err != nil {
		return res, fmt.Errorf("load series: %w", err)
	}

	changes := rainfall.Diff(existing, batch)
	merged := rainfall.Merge(existing, batch)

	res.Series = merged
	res.Added = changes.Added
	res.Updated = changes.Updated

	logger.Info().
		Int("existing", len(existing)).
		Int("added", res.Added).
		Int("updated", res.Updated).
		Int("total", len(merged)).
		Msg("merged series")

	if req.DryRun {
		logger.Warn().Msg("dry-run: series not written")
		return res, nil
	}

	if err := store.Save(merged); err != nil {
		return res, fmt.Errorf("save series: %w", err)
	}
	res.Written = true
	logger.Info().Str("file", store.Path()).Int("rows", len(merged)).Msg("saved daily series")

	u.syncMirror(ctx, logger, req.StationID, batch, merged)
	u.notifySuccess(ctx, req, res)
	return res, nil
}

func (u *Updater) explainEmpty(ctx context.Context, logger zerolog.Logger, measureID string, window rainfall.Window) {
	prober, ok := u.source.(RangeProber)
	if !ok {
		logger.Warn().Msg("no readings returned for this period")
		return
	}
	available, found, err := prober.AvailableRange(ctx, measureID)
	if err != nil {
		logger.Warn().Err(err).Msg("no readings returned; could not probe available range")
		return
	}
	if !found {
		logger.Warn().Msg("no readings returned; measure has no data")
		return
	}
	event := logger.Warn().Str("available", available.String())
	if window.Start.Before(available.Start) {
		event = event.Bool("starts_before_available", true)
	}
	if window.End.After(available.End) {
		event = event.Bool("ends_after_available", true)
	}
	event.Msg("no readings returned for this period")
}

// syncMirror upserts batch into the mirror. An empty mirror is seeded with
// the whole merged series so it carries the history already in the file.
func (u *Updater) syncMirror(ctx context.Context, logger zerolog.Logger, stationID string, batch, merged rainfall.Series) {
	if u.mirror == nil || len(batch) == 0 {
		return
	}
	before, err := u.mirror.CountDays(ctx, stationID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to count mirrored days")
		return
	}
	rows := batch
	if before == 0 {
		rows = merged
		logger.Info().Int("rows", len(rows)).Msg("seeding empty mirror from series file")
	}
	if err := u.mirror.ApplyBatch(ctx, stationID, rows); err != nil {
		logger.Error().Err(err).Msg("failed to mirror daily totals")
		return
	}
	logger.Debug().Int("mirrored_rows", len(rows)).Msg("mirror updated")
}

func (u *Updater) notifySuccess(ctx context.Context, req Request, res Result) {
	if u.notifier == nil {
		return
	}
	note := alerting.Notification{
		StationID:  req.StationID,
		Mode:       string(req.Mode),
		Window:     res.Window.String(),
		Readings:   res.Readings,
		Days:       len(res.Batch),
		Added:      res.Added,
		Updated:    res.Updated,
		SeriesRows: len(res.Series),
		WindowMM:   res.Batch.Total(),
	}
	if len(res.Series) > 0 {
		last := res.Series[len(res.Series)-1]
		note.LatestDay = last.Date
		note.LatestMM = last.RainfallMM
	}
	if err := u.notifier.Notify(ctx, note); err != nil {
		u.logger.Error().Err(err).Msg("failed to send update summary")
	}
}

func (u *Updater) notifyFailure(ctx context.Context, req Request, window rainfall.Window, cause error) {
	if u.notifier == nil || !u.opts.NotifyOnFailure {
		return
	}
	note := alerting.Notification{
		StationID: req.StationID,
		Mode:      string(req.Mode),
		Window:    window.String(),
		Failure:   cause.Error(),
	}
	if err := u.notifier.Notify(ctx, note); err != nil {
		u.logger.Error().Err(err).Msg("failed to send failure notification")
	}
}
