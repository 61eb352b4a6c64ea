// Command satviz-diag parses an element set file and prints, for every
// satellite, its derived orbital summary, the size of a sampled orbit path
// and optionally its passes over a ground station.
//
//	satviz-diag -tle stations.txt -at 2025-01-25T12:00:00Z -station washington
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/star/satviz/internal/groundstation"
	"github.com/star/satviz/internal/orbit"
	"github.com/star/satviz/internal/passes"
	"github.com/star/satviz/internal/propagation"
	"github.com/star/satviz/internal/tle"
	"github.com/star/satviz/internal/transform"
)

func main() {
	var (
		path     = flag.String("tle", "-", "element set file, - for stdin")
		atFlag   = flag.String("at", "", "instant as RFC 3339 (default now)")
		segments = flag.Int("segments", 100, "orbit path segments")
		gravity  = flag.String("gravity", "wgs72", "gravity model: wgs72 or wgs84")
		station  = flag.String("station", "", "ground station for pass prediction")
		hours    = flag.Float64("hours", 24, "pass prediction horizon in hours")
		minElev  = flag.Float64("min-elevation", 10, "pass elevation mask in degrees")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	at := time.Now().UTC()
	if *atFlag != "" {
		t, err := time.Parse(time.RFC3339, *atFlag)
		if err != nil {
			fmt.Fprintln(os.Stderr, "ERROR parsing -at:", err)
			os.Exit(2)
		}
		at = t.UTC()
	}
	g, err := propagation.ParseGravity(*gravity)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(2)
	}
	opts := propagation.DefaultOptions()
	opts.Gravity = g

	var in io.Reader = os.Stdin
	if *path != "-" {
		f, err := os.Open(*path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "ERROR reading element sets:", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	records, parseErrs, err := tle.Parse(in, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR parsing element sets:", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d element sets (%d rejected)\n", len(records), len(parseErrs))
	for _, pe := range parseErrs {
		fmt.Printf("  rejected: %v\n", pe)
	}
	fmt.Printf("Instant: %s\n\n", at.Format(time.RFC3339))

	var props []*propagation.SGP4
	for _, rec := range records {
		p := propagation.NewSGP4(rec, opts)
		res, err := p.Propagate(at)
		if err != nil {
			fmt.Printf("%s %-24s ERROR %v\n", rec.CatalogNumber, rec.Name, err)
			continue
		}
		props = append(props, p)

		sum, err := orbit.ComputeSummary(rec, res, at)
		if err != nil {
			fmt.Printf("%s %-24s ERROR %v\n", rec.CatalogNumber, rec.Name, err)
			continue
		}
		f := sum.Format()
		loop, err := orbit.SampleRecord(rec, opts, *segments, at)
		if err != nil {
			fmt.Printf("%s %-24s orbit ERROR %v\n", rec.CatalogNumber, rec.Name, err)
		}
		fmt.Printf("%s %-24s %s  lat=%s lon=%s h=%s v=%s  apogee=%s perigee=%s incl=%s period=%s  orbit=%d points\n",
			f.ID, rec.Name, f.IntlDes, f.Latitude, f.Longitude, f.Height, f.Velocity,
			f.Apogee, f.Perigee, f.Inclination, f.Period, len(loop))
	}

	if *station == "" {
		return
	}
	table := groundstation.NewTable(at, groundstation.ModeStatic)
	st, ok := table.Station(*station)
	if !ok {
		fmt.Fprintf(os.Stderr, "ERROR: %v: %q\n", groundstation.ErrUnknownStation, *station)
		os.Exit(1)
	}

	results := passes.Predict(context.Background(), passes.Request{
		Observer:        transform.NewObserver(st.Location),
		Propagators:     props,
		Start:           at,
		Horizon:         time.Duration(*hours * float64(time.Hour)),
		MinElevationDeg: *minElev,
		MaxPasses:       10,
	})

	fmt.Printf("\nPasses over %s (%s):\n", st.Name, st.Category)
	totalPasses := 0
	for _, sat := range results {
		if sat.Error != "" {
			fmt.Printf("  %s: ERROR %s\n", sat.CatalogNumber, sat.Error)
			continue
		}
		fmt.Printf("  %s: %d passes\n", sat.CatalogNumber, len(sat.Passes))
		totalPasses += len(sat.Passes)
		for j, p := range sat.Passes {
			fmt.Printf("    pass %d: start=%v maxEl=%.1f° dur=%.0fs\n",
				j, p.Start.Format(time.RFC3339), p.MaxElevationDeg, p.DurationSeconds)
		}
	}
	fmt.Printf("\nTotal passes found: %d\n", totalPasses)
}
