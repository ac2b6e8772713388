package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/storemap/internal/model"
	"github.com/sells-group/storemap/internal/nearest"
	"github.com/sells-group/storemap/internal/store"
	"github.com/sells-group/storemap/internal/table"
)

var distancesCmd = &cobra.Command{
	Use:   "distances",
	Short: "Compute the distance from every A store to the nearest B store",
	Long: `Loads the A and B coordinate tables (CSV, XLSX or JSON with Latitude
and Longitude columns), computes the WGS-84 geodesic distance from every A
point to its nearest B point and writes one distance in meters per line, in
A order. Several --a or --b tables are concatenated in the given order.

With --from-store, A is every stored Aldi location and B every stored Lidl
location.`,
	Example: `  storemap distances --a aldi_sued.csv --a aldi_nord.csv --b lidl.csv --out min_distances.txt
  storemap distances --from-store --geojson pairs.geojson`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("distances"); err != nil {
			return err
		}
		log := zap.L().With(zap.String("command", "distances"))

		aPaths, _ := cmd.Flags().GetStringSlice("a")
		bPaths, _ := cmd.Flags().GetStringSlice("b")
		fromStore, _ := cmd.Flags().GetBool("from-store")
		outPath, _ := cmd.Flags().GetString("out")
		geoPath, _ := cmd.Flags().GetString("geojson")
		strategy, _ := cmd.Flags().GetString("strategy")

		opts, err := nearestOptions(strategy)
		if err != nil {
			return err
		}

		var a, b []model.Coordinate
		if fromStore {
			a, b, err = storeCoordinates(ctx)
		} else {
			a, b, err = tableCoordinates(ctx, cmd, aPaths, bPaths)
		}
		if err != nil {
			return err
		}
		log.Info("computing distances",
			zap.Int("a", len(a)),
			zap.Int("b", len(b)),
			zap.Stringer("strategy", opts.Strategy),
		)

		matches, err := nearest.NearestMatches(ctx, a, b, opts)
		if err != nil {
			return err
		}
		meters := make([]float64, len(matches))
		for i, m := range matches {
			meters[i] = m.Meters
		}

		out, err := createOutput(outPath)
		if err != nil {
			return err
		}
		if err := table.WriteDistances(out, meters); err != nil {
			_ = out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return eris.Wrap(err, "distances: close output")
		}

		if geoPath != "" {
			data, err := nearest.PairsGeoJSON(a, b, matches)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(geoPath), 0o755); err != nil {
				return eris.Wrapf(err, "distances: create dir for %s", geoPath)
			}
			if err := os.WriteFile(geoPath, data, 0o644); err != nil {
				return eris.Wrapf(err, "distances: write %s", geoPath)
			}
		}

		if s, err := nearest.Summarize(meters); err == nil {
			log.Info("distance summary",
				zap.Int("count", s.Count),
				zap.Float64("min_m", s.Min),
				zap.Float64("max_m", s.Max),
				zap.Float64("mean_m", s.Mean),
				zap.Float64("median_m", s.Median),
			)
		}
		return nil
	},
}

func init() {
	distancesCmd.Flags().StringSlice("a", nil, "query tables (repeatable)")
	distancesCmd.Flags().StringSlice("b", nil, "reference tables (repeatable)")
	distancesCmd.Flags().Bool("from-store", false, "use stored Aldi locations as A and Lidl locations as B")
	distancesCmd.Flags().String("out", stdio, "distances file (- for stdout)")
	distancesCmd.Flags().String("geojson", "", "also write nearest-pair lines as GeoJSON")
	distancesCmd.Flags().String("strategy", "", "brute or indexed (default from config)")
	distancesCmd.Flags().String("lat-col", "Latitude", "latitude column name")
	distancesCmd.Flags().String("lon-col", "Longitude", "longitude column name")
	distancesCmd.Flags().String("sheet", "", "XLSX sheet name (default first sheet)")
	rootCmd.AddCommand(distancesCmd)
}

func tableCoordinates(ctx context.Context, cmd *cobra.Command, aPaths, bPaths []string) (a, b []model.Coordinate, err error) {
	if len(aPaths) == 0 || len(bPaths) == 0 {
		return nil, nil, eris.New("distances: --a and --b are required (or use --from-store)")
	}
	latCol, _ := cmd.Flags().GetString("lat-col")
	lonCol, _ := cmd.Flags().GetString("lon-col")
	sheet, _ := cmd.Flags().GetString("sheet")
	opts := table.CoordOptions{LatColumn: latCol, LonColumn: lonCol, Sheet: sheet}

	if a, err = table.LoadCoordinateSets(ctx, aPaths, opts); err != nil {
		return nil, nil, err
	}
	if b, err = table.LoadCoordinateSets(ctx, bPaths, opts); err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

func storeCoordinates(ctx context.Context) (a, b []model.Coordinate, err error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer st.Close() //nolint:errcheck

	aldi, err := listAll(ctx, st, store.LocationFilter{Chain: model.ChainAldi})
	if err != nil {
		return nil, nil, err
	}
	lidl, err := listAll(ctx, st, store.LocationFilter{Chain: model.ChainLidl})
	if err != nil {
		return nil, nil, err
	}
	return model.Coordinates(aldi), model.Coordinates(lidl), nil
}

// listAll pages through ListLocations until a short page comes back.
func listAll(ctx context.Context, st store.Store, filter store.LocationFilter) ([]model.Location, error) {
	const page = 1000
	var out []model.Location
	filter.Limit = page
	for {
		locs, err := st.ListLocations(ctx, filter)
		if err != nil {
			return nil, err
		}
		out = append(out, locs...)
		if len(locs) < page {
			return out, nil
		}
		filter.Offset += page
	}
}
