package cli

import (
	"github.com/spf13/cobra"

	"track-rainfall/internal/app"
)

var (
	updateMode    string
	updateDays    int
	updateStart   string
	updateEnd     string
	updateStation string
	updateOutput  string
	updateDryRun  bool
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Fetch readings, aggregate them to daily totals and merge into the series",
	RunE: func(cmd *cobra.Command, args []string) error {
		start, err := parseDateFlag("start", updateStart)
		if err != nil {
			return err
		}
		end, err := parseDateFlag("end", updateEnd)
		if err != nil {
			return err
		}

		opts := app.UpdateOptions{
			StationID:  updateStation,
			OutputFile: updateOutput,
			Mode:       updateMode,
			Days:       updateDays,
			Start:      start,
			End:        end,
			DryRun:     updateDryRun,
		}

		_, err = getApp().Update(cmd.Context(), opts)
		return err
	},
}

func init() {
	updateCmd.Flags().StringVar(&updateMode, "mode", "", "Update mode: latest or historical (defaults to config)")
	updateCmd.Flags().IntVar(&updateDays, "days", 0, "Days fetched in latest mode (defaults to config)")
	updateCmd.Flags().StringVar(&updateStart, "start", "", "Historical start date (YYYY-MM-DD, inclusive)")
	updateCmd.Flags().StringVar(&updateEnd, "end", "", "Historical end date (YYYY-MM-DD, inclusive)")
	updateCmd.Flags().StringVar(&updateStation, "station", "", "Station reference (defaults to config)")
	updateCmd.Flags().StringVar(&updateOutput, "output", "", "Series CSV path (defaults to config)")
	updateCmd.Flags().BoolVar(&updateDryRun, "dry-run", false, "Compute the merged series without writing it")
}
