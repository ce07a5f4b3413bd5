package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"food-desert/internal/api"
	"food-desert/internal/app"
	"food-desert/internal/desert"
	"food-desert/internal/geo"
	"food-desert/internal/ingest"
	"food-desert/internal/network"
	"food-desert/internal/utils"
)

var (
	importDB        string
	importProjected bool
)

var importNetworkCmd = &cobra.Command{
	Use:   "import-network <file.geojson>",
	Short: "Import a GeoJSON road network into the sqlite graph",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := importDB
		if path == "" {
			path = cfg.NetworkDBPath
		}
		if path == "" {
			return errors.New("no network database: pass --db or set NETWORK_DB_PATH")
		}
		db, err := utils.OpenSQLite(path, false)
		if err != nil {
			return err
		}
		defer db.Close()
		projected := cfg.NetworkImportProjected
		if cmd.Flags().Changed("projected") {
			projected = importProjected
		}
		st, err := ingest.ImportFile(cmd.Context(), db, args[0], ingest.Options{Projected: projected})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "nodes=%d edges=%d skipped=%d\n", st.Nodes, st.Edges, st.Skipped)
		return nil
	},
}

var coverageCmd = &cobra.Command{
	Use:   "coverage",
	Short: "Print the searched coverage area (EPSG:3857 square meters)",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, closer, err := app.OpenStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closer.Close()
		searched, err := st.SearchedCoverage(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "area=%.1f\n", searched.Area())
		return nil
	},
}

var frame struct{ lng0, lng1, lat0, lat1 float64 }

var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Search a lng/lat frame so later queries inside it need no lookups",
	RunE: func(cmd *cobra.Command, args []string) error {
		region := geo.Frame(frame.lng0, frame.lng1, frame.lat0, frame.lat1)
		if region.IsEmpty() {
			return errors.New("empty frame: set --lng0 --lng1 --lat0 --lat1")
		}
		eng, closer, err := buildEngine(cmd)
		if err != nil {
			return err
		}
		defer closer.Close()
		stores, err := eng.FindStores(cmd.Context(), region)
		if err != nil {
			return err
		}
		area, _ := eng.SearchedArea(cmd.Context())
		fmt.Fprintf(cmd.OutOrStdout(), "stores=%d searched_area=%.1f\n", len(stores), area)
		return nil
	},
}

var point struct{ lng, lat float64 }

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report whether a lng/lat point lies in a food desert",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, closer, err := buildEngine(cmd)
		if err != nil {
			return err
		}
		defer closer.Close()
		desert, err := eng.IsInDesert(cmd.Context(), geo.ToMercator(geo.LngLat{Lng: point.lng, Lat: point.lat}))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), desert)
		return nil
	},
}

var truncateYes bool

var truncateCmd = &cobra.Command{
	Use:   "truncate",
	Short: "Delete all stores and the searched coverage",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !truncateYes {
			return errors.New("refusing to truncate without --yes")
		}
		st, closer, err := app.OpenStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closer.Close()
		if err := st.Truncate(cmd.Context()); err != nil {
			return err
		}
		log.Info("store_truncated")
		rc, err := utils.OpenRedisFromEnv(cmd.Context())
		if err != nil {
			log.Warn("redis_ping_error", "err", err)
		} else if rc != nil {
			defer rc.Close()
			n, err := api.NewRedisCache(rc, 0).Purge(cmd.Context())
			if err != nil {
				return fmt.Errorf("purge answer cache: %w", err)
			}
			log.Info("answer_cache_purged", "keys", n)
		}
		return nil
	},
}

// buildEngine 装配引擎；返回的 closer 释放存储与路网连接
func buildEngine(cmd *cobra.Command) (*desert.Engine, app.Closer, error) {
	st, closer, err := app.OpenStore(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, err
	}
	pm, err := app.BuildSources(cfg)
	if err != nil {
		closer.Close()
		return nil, nil, err
	}
	sg, netCloser, err := app.OpenNetwork(cfg)
	if err != nil {
		closer.Close()
		return nil, nil, err
	}
	closer = append(closer, netCloser...)
	var g network.Graph
	if sg != nil {
		g = sg
	}
	return app.NewEngine(cfg, st, pm, g), closer, nil
}

func init() {
	importNetworkCmd.Flags().StringVar(&importDB, "db", "", "sqlite network database (default NETWORK_DB_PATH)")
	importNetworkCmd.Flags().BoolVar(&importProjected, "projected", false, "coordinates are already EPSG:3857 (default NETWORK_IMPORT_PROJECTED)")

	warmCmd.Flags().Float64Var(&frame.lng0, "lng0", 0, "west or east longitude")
	warmCmd.Flags().Float64Var(&frame.lng1, "lng1", 0, "the other longitude")
	warmCmd.Flags().Float64Var(&frame.lat0, "lat0", 0, "south or north latitude")
	warmCmd.Flags().Float64Var(&frame.lat1, "lat1", 0, "the other latitude")

	checkCmd.Flags().Float64Var(&point.lng, "lng", 0, "longitude")
	checkCmd.Flags().Float64Var(&point.lat, "lat", 0, "latitude")
	_ = checkCmd.MarkFlagRequired("lng")
	_ = checkCmd.MarkFlagRequired("lat")

	truncateCmd.Flags().BoolVar(&truncateYes, "yes", false, "confirm deletion")

}
