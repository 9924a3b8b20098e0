package app

import (
	"context"
	"os/signal"
	"syscall"

	"track-rainfall/internal/rainfall"
	"track-rainfall/internal/service"
	"track-rainfall/internal/storage"
)

// Update runs one fetch, aggregate, merge and persist cycle.
func (a *App) Update(ctx context.Context, opts UpdateOptions) (service.Result, error) {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	modeName := opts.Mode
	if modeName == "" {
		modeName = a.Config.Series.DefaultMode
	}
	mode, err := rainfall.ParseMode(modeName)
	if err != nil {
		return service.Result{}, err
	}

	var mirror storage.MirrorStore
	if !opts.DryRun {
		store, closeStore, err := a.openStore(ctx)
		if err != nil {
			return service.Result{}, err
		}
		if store != nil {
			mirror = store
			defer closeStore()
		}
	}

	updater := a.newUpdater(a.newSource(), mirror, a.newNotifier())
	res, err := updater.FetchAndUpdate(ctx, service.Request{
		StationID:  a.Config.ResolveStation(opts.StationID),
		OutputFile: a.Config.ResolveOutput(opts.OutputFile),
		Mode:       mode,
		Days:       a.Config.ResolveDays(opts.Days),
		StartDate:  opts.Start,
		EndDate:    opts.End,
		DryRun:     opts.DryRun,
	})
	if err != nil {
		a.Logger.Error().Err(err).Msg("rainfall update failed")
		return res, err
	}

	a.printSeries(res.Series.Tail(10))
	return res, nil
}
