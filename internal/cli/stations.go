package cli

import (
	"github.com/spf13/cobra"

	"track-rainfall/internal/app"
)

var (
	stationsLat    float64
	stationsLong   float64
	stationsRadius float64
)

var stationsCmd = &cobra.Command{
	Use:   "stations",
	Short: "List rainfall stations near the park",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.StationsOptions{RadiusKM: stationsRadius}
		if cmd.Flags().Changed("lat") {
			opts.Latitude = &stationsLat
		}
		if cmd.Flags().Changed("long") {
			opts.Longitude = &stationsLong
		}

		return getApp().Stations(cmd.Context(), opts)
	},
}

func init() {
	stationsCmd.Flags().Float64Var(&stationsLat, "lat", 0, "Latitude (defaults to config)")
	stationsCmd.Flags().Float64Var(&stationsLong, "long", 0, "Longitude (defaults to config)")
	stationsCmd.Flags().Float64Var(&stationsRadius, "dist", 0, "Search radius in km (defaults to config)")
}
