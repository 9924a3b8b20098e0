package cli

import (
	"github.com/spf13/cobra"

	"track-rainfall/internal/app"
)

var (
	exportFrom    string
	exportTo      string
	exportPNGPath string
	exportCSVPath string
	exportFromDB  bool
	exportMaxDays int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export daily totals as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := parseDateFlag("from", exportFrom)
		if err != nil {
			return err
		}
		to, err := parseDateFlag("to", exportTo)
		if err != nil {
			return err
		}

		opts := app.ExportOptions{
			From:    from,
			To:      to,
			PNGPath: exportPNGPath,
			CSVPath: exportCSVPath,
			FromDB:  exportFromDB,
			MaxDays: exportMaxDays,
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "Start date (YYYY-MM-DD, inclusive)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "End date (YYYY-MM-DD, inclusive)")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().BoolVar(&exportFromDB, "from-db", false, "Read daily totals from the PostgreSQL mirror")
	exportCmd.Flags().IntVar(&exportMaxDays, "max-days", 0, "Days exported when --from is omitted (defaults to config)")
}
