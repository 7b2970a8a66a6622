package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/transport-futures/zonetrans/internal/cache"
	"github.com/transport-futures/zonetrans/internal/config"
	"github.com/transport-futures/zonetrans/internal/model"
	"github.com/transport-futures/zonetrans/internal/report"
	"github.com/transport-futures/zonetrans/internal/translate"
	"github.com/transport-futures/zonetrans/internal/zoning"
)

var noCache bool

var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Compute a zone correspondence",
}

func init() {
	translateCmd.PersistentFlags().BoolVar(&noCache, "no-cache", false, "recompute even when a cached result exists")
	rootCmd.AddCommand(translateCmd)
}

func translatorOptions() translate.Options {
	return translate.Options{
		Rounding:        cfg.Translation.Rounding,
		FilterSlivers:   cfg.Translation.FilterSlivers,
		SliverTolerance: cfg.Translation.SliverTolerance,
		PointHandling:   cfg.Translation.PointHandling,
		PointTolerance:  cfg.Translation.PointTolerance,
		Workers:         cfg.Translation.Workers,
	}
}

func zoneSource(z config.ZoneConfig) zoning.ZoneSource {
	return zoning.ZoneSource{
		Name:           z.Name,
		Shapefile:      z.Shapefile,
		IDCol:          z.IDCol,
		PointShapefile: z.PointShapefile,
		Proj4:          z.Proj4,
	}
}

func lowerSource(l config.LowerConfig) zoning.LowerSource {
	return zoning.LowerSource{
		ZoneSource:  zoneSource(l.ZoneConfig),
		WeightData:  l.WeightData,
		WeightIDCol: l.WeightIDCol,
		WeightCol:   l.WeightCol,
		WeightYear:  l.WeightYear,
	}
}

func loadZoneSystems() (*zoning.ZoneSystem, *zoning.ZoneSystem, error) {
	zs1, err := zoning.LoadZoneSystem(zoneSource(cfg.Zone1), cfg.Projection.Target)
	if err != nil {
		return nil, nil, err
	}
	zs2, err := zoning.LoadZoneSystem(zoneSource(cfg.Zone2), cfg.Projection.Target)
	if err != nil {
		return nil, nil, err
	}
	return zs1, zs2, nil
}

// openCache builds the configured cache backend. The returned closer is
// safe to call when the cache is disabled.
func openCache(ctx context.Context) (*cache.Cache, func(), error) {
	if !cfg.Cache.Enabled || noCache {
		return nil, func() {}, nil
	}

	switch cfg.Cache.Driver {
	case "sqlite":
		path := cfg.Cache.Path
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, eris.Wrapf(err, "create cache directory %s", dir)
			}
		}
		store, err := cache.NewSQLite(path)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, nil, err
		}
		c := cache.New(store)
		return c, func() { _ = c.Close() }, nil

	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Cache.DatabaseURL)
		if err != nil {
			return nil, nil, eris.Wrap(err, "connect cache database")
		}
		store := cache.NewPostgres(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		c := cache.New(store)
		return c, func() { pool.Close() }, nil

	default:
		return nil, nil, eris.Errorf("unsupported cache driver: %s", cfg.Cache.Driver)
	}
}

// runParams is the configuration echo written beside each factor table.
type runParams struct {
	Zone1       config.ZoneConfig        `yaml:"zone1"`
	Zone2       config.ZoneConfig        `yaml:"zone2"`
	LowerZoning *config.LowerConfig      `yaml:"lower_zoning,omitempty"`
	Translation config.TranslationConfig `yaml:"translation"`
	Projection  config.ProjectionConfig  `yaml:"projection"`
}

func writeOutputs(res *model.Result, year int, params runParams) error {
	w, err := report.NewWriter(cfg.Output.Dir)
	if err != nil {
		return err
	}
	csvPath, err := w.WriteFactors(res, year)
	if err != nil {
		return err
	}
	missingPath, err := w.WriteMissing(res, year)
	if err != nil {
		return err
	}
	if _, err := w.WriteParams(res, year, params); err != nil {
		return err
	}

	fmt.Printf("factor table: %s (%d pairs)\n", csvPath, len(res.Pairs))
	if missingPath != "" {
		fmt.Printf("missing zones: %s (%d + %d)\n", missingPath, len(res.Missing.Zone1), len(res.Missing.Zone2))
	}
	if res.CacheHit {
		fmt.Println("served from cache")
	}
	return nil
}

// newTranslator wires the configured options and an optional cache. A
// typed nil pointer must not leak into the interface, or the translator
// would treat an absent cache as present.
func newTranslator(c *cache.Cache) *translate.Translator {
	if c == nil {
		return translate.New(translatorOptions(), nil)
	}
	return translate.New(translatorOptions(), c)
}

func logRunStart(mode string) *zap.Logger {
	log := zap.L().With(zap.String("command", "translate "+mode))
	log.Info("starting translation",
		zap.String("zone1", cfg.Zone1.Name),
		zap.String("zone2", cfg.Zone2.Name),
		zap.Bool("cache", cfg.Cache.Enabled && !noCache),
	)
	return log
}
