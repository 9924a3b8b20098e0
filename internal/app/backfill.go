package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"track-rainfall/internal/rainfall"
	"track-rainfall/internal/service"
	"track-rainfall/internal/storage"
)

// Backfill fetches a long historical range in chunks that each fit in one
// upstream page, overwriting each chunk's dates in turn.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	from := rainfall.Day(opts.From)
	to := rainfall.Day(opts.To)
	if from.After(to) {
		return errors.New("backfill range is empty; check --from/--to")
	}

	chunkDays := opts.ChunkDays
	if chunkDays <= 0 {
		chunkDays = a.Config.Series.BackfillChunkDays
	}

	var mirror storage.MirrorStore
	if opts.DryRun {
		a.Logger.Warn().Msg("backfill dry-run: nothing will be written")
	} else {
		store, closeStore, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		if store != nil {
			mirror = store
			defer closeStore()
		}
	}

	updater := a.newUpdater(a.newSource(), mirror, nil)
	station := a.Config.ResolveStation(opts.StationID)
	output := a.Config.ResolveOutput(opts.OutputFile)

	// A chunk that fills an upstream page is split in half and refetched.
	queue := rainfall.Window{Start: from, End: to}.Split(chunkDays)
	processed := 0
	failed := 0
	for len(queue) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		chunk := queue[0]
		queue = queue[1:]

		start, end := chunk.Start, chunk.End
		res, err := updater.FetchAndUpdate(ctx, service.Request{
			StationID:  station,
			OutputFile: output,
			Mode:       rainfall.ModeHistorical,
			StartDate:  &start,
			EndDate:    &end,
			DryRun:     opts.DryRun,
		})
		if err != nil {
			failed++
			a.Logger.Error().Err(err).Str("chunk", chunk.String()).Msg("backfill chunk failed")
			continue
		}
		if res.Truncated && chunk.Days() > 1 {
			halves := chunk.Split((chunk.Days() + 1) / 2)
			a.Logger.Warn().Str("chunk", chunk.String()).Int("parts", len(halves)).Msg("backfill chunk truncated; splitting")
			queue = append(halves, queue...)
			continue
		}
		if res.Truncated {
			a.Logger.Warn().Str("chunk", chunk.String()).Msg("single day exceeds the page limit; raise upstream.page_limit")
		}
		processed++
		a.Logger.Info().Str("chunk", chunk.String()).Int("days", len(res.Batch)).Msg("backfill chunk done")
	}

	total := processed + failed
	a.Logger.Info().Int("chunks", total).Int("processed", processed).Int("failed", failed).Msg("backfill finished")
	if failed > 0 {
		return fmt.Errorf("%d of %d backfill chunks failed; check the logs", failed, total)
	}
	return nil
}
