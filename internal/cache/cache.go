// Package cache persists computed overlays and factor tables so repeated
// translations of unchanged zone systems are read back instead of
// recomputed. Keys are content digests of the inputs, so a stale entry is
// impossible: any change to geometry, weights or options produces a new
// key.
package cache

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/transport-futures/zonetrans/internal/model"
	"github.com/transport-futures/zonetrans/internal/translate"
)

// FactorRecord is one cached factor table with its lookup metadata.
type FactorRecord struct {
	Key        string
	Zone1      string
	Zone2      string
	Method     string
	ConfigHash string
	Pairs      []model.PairFactor
	CreatedAt  time.Time
}

// OverlayRecord is one cached zone-to-lower overlay.
type OverlayRecord struct {
	Key       string
	Tiles     []model.Tile
	CreatedAt time.Time
}

// Stats summarises cache contents.
type Stats struct {
	Factors  int
	Overlays int
}

// Store is the persistence backend for cached translations. Get methods
// return (nil, nil) on a miss. Implementations must be safe for
// concurrent use.
type Store interface {
	Migrate(ctx context.Context) error
	GetFactors(ctx context.Context, key string) (*FactorRecord, error)
	PutFactors(ctx context.Context, rec FactorRecord) error
	GetOverlay(ctx context.Context, key string) (*OverlayRecord, error)
	PutOverlay(ctx context.Context, rec OverlayRecord) error
	Stats(ctx context.Context) (Stats, error)
	Clear(ctx context.Context) error
	Close() error
}

// Cache wraps a Store with compute-once semantics: concurrent requests
// for the same key share one computation instead of racing the backend.
type Cache struct {
	store Store
	group singleflight.Group
	log   *zap.Logger
}

// New builds a Cache over a migrated Store.
func New(store Store) *Cache {
	return &Cache{
		store: store,
		log:   zap.L().With(zap.String("component", "cache")),
	}
}

// Factors implements translate.Cache. A store write failure after a
// successful computation is logged, not returned: the result is still
// good, only its reuse is lost.
func (c *Cache) Factors(ctx context.Context, key string, info translate.CacheInfo, compute func(context.Context) ([]model.PairFactor, error)) ([]model.PairFactor, bool, error) {
	type outcome struct {
		pairs []model.PairFactor
		hit   bool
	}
	v, err, _ := c.group.Do("factors:"+key, func() (any, error) {
		rec, err := c.store.GetFactors(ctx, key)
		if err != nil {
			return nil, eris.Wrap(err, "cache: read factors")
		}
		if rec != nil {
			c.log.Debug("factor cache hit", zap.String("key", shorten(key)),
				zap.String("zone1", rec.Zone1), zap.String("zone2", rec.Zone2))
			return outcome{pairs: rec.Pairs, hit: true}, nil
		}

		pairs, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		put := FactorRecord{
			Key:        key,
			Zone1:      info.Zone1,
			Zone2:      info.Zone2,
			Method:     info.Method,
			ConfigHash: info.ConfigHash,
			Pairs:      pairs,
			CreatedAt:  time.Now().UTC(),
		}
		if err := c.store.PutFactors(ctx, put); err != nil {
			c.log.Warn("factor cache write failed", zap.String("key", shorten(key)), zap.Error(err))
		}
		return outcome{pairs: pairs}, nil
	})
	if err != nil {
		return nil, false, err
	}
	o := v.(outcome)
	return o.pairs, o.hit, nil
}

// Overlay implements translate.Cache for zone-to-lower overlays.
func (c *Cache) Overlay(ctx context.Context, key string, compute func(context.Context) ([]model.Tile, error)) ([]model.Tile, bool, error) {
	type outcome struct {
		tiles []model.Tile
		hit   bool
	}
	v, err, _ := c.group.Do("overlay:"+key, func() (any, error) {
		rec, err := c.store.GetOverlay(ctx, key)
		if err != nil {
			return nil, eris.Wrap(err, "cache: read overlay")
		}
		if rec != nil {
			c.log.Debug("overlay cache hit", zap.String("key", shorten(key)), zap.Int("tiles", len(rec.Tiles)))
			return outcome{tiles: rec.Tiles, hit: true}, nil
		}

		tiles, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		put := OverlayRecord{Key: key, Tiles: tiles, CreatedAt: time.Now().UTC()}
		if err := c.store.PutOverlay(ctx, put); err != nil {
			c.log.Warn("overlay cache write failed", zap.String("key", shorten(key)), zap.Error(err))
		}
		return outcome{tiles: tiles}, nil
	})
	if err != nil {
		return nil, false, err
	}
	o := v.(outcome)
	return o.tiles, o.hit, nil
}

// Stats reports backend contents.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	return c.store.Stats(ctx)
}

// Clear removes every cached entry.
func (c *Cache) Clear(ctx context.Context) error {
	return c.store.Clear(ctx)
}

// Close releases the backend.
func (c *Cache) Close() error { return c.store.Close() }

func shorten(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
