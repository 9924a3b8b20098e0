package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"track-rainfall/internal/app"
)

var (
	backfillFrom      string
	backfillTo        string
	backfillChunkDays int
	backfillStation   string
	backfillOutput    string
	backfillDryRun    bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Backfill a long historical range in chunks",
	RunE: func(cmd *cobra.Command, args []string) error {
		if backfillFrom == "" || backfillTo == "" {
			return fmt.Errorf("--from and --to must be provided")
		}

		from, err := parseDateFlag("from", backfillFrom)
		if err != nil {
			return err
		}
		to, err := parseDateFlag("to", backfillTo)
		if err != nil {
			return err
		}

		if from.After(*to) {
			return fmt.Errorf("--from must not be after --to")
		}

		opts := app.BackfillOptions{
			StationID:  backfillStation,
			OutputFile: backfillOutput,
			From:       *from,
			To:         *to,
			ChunkDays:  backfillChunkDays,
			DryRun:     backfillDryRun,
		}

		return getApp().Backfill(cmd.Context(), opts)
	},
}

func init() {
	backfillCmd.Flags().StringVar(&backfillFrom, "from", "", "Start date (YYYY-MM-DD, inclusive)")
	backfillCmd.Flags().StringVar(&backfillTo, "to", "", "End date (YYYY-MM-DD, inclusive)")
	backfillCmd.Flags().IntVar(&backfillChunkDays, "chunk-days", 0, "Days fetched per request (defaults to config)")
	backfillCmd.Flags().StringVar(&backfillStation, "station", "", "Station reference (defaults to config)")
	backfillCmd.Flags().StringVar(&backfillOutput, "output", "", "Series CSV path (defaults to config)")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Run without writing to storage")
}
