package app

import (
	"context"
	"fmt"
	"text/tabwriter"
)

// Stations lists rainfall stations near the configured park location.
func (a *App) Stations(ctx context.Context, opts StationsOptions) error {
	lat := a.Config.Upstream.Latitude
	if opts.Latitude != nil {
		lat = *opts.Latitude
	}
	long := a.Config.Upstream.Longitude
	if opts.Longitude != nil {
		long = *opts.Longitude
	}
	radius := opts.RadiusKM
	if radius <= 0 {
		radius = a.Config.Upstream.SearchRadiusKM
	}

	stations, err := a.newSource().FindStations(ctx, lat, long, radius)
	if err != nil {
		return fmt.Errorf("find stations: %w", err)
	}
	if len(stations) == 0 {
		fmt.Fprintf(a.Out, "no rainfall stations within %.1f km of %.4f,%.4f\n", radius, lat, long)
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "\tStation\tLabel\tLat\tLong")
	for _, st := range stations {
		marker := ""
		if st.Reference == a.Config.Upstream.StationID {
			marker = "*"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%.4f\t%.4f\n", marker, st.Reference, st.Label, st.Latitude, st.Longitude)
	}
	writer.Flush()
	return nil
}
