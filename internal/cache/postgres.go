package cache

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/transport-futures/zonetrans/internal/db"
	"github.com/transport-futures/zonetrans/internal/model"
)

// PostgresStore implements Store on PostgreSQL, for teams sharing one
// translation cache across machines. Factor tables are stored as jsonb;
// overlay tiles are stored row-per-tile and bulk-loaded over COPY, since
// a national zone-to-lower overlay easily reaches six-figure row counts.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres wraps an existing pgx pool.
func NewPostgres(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS factor_cache (
	key         TEXT PRIMARY KEY,
	zone1       TEXT NOT NULL,
	zone2       TEXT NOT NULL,
	method      TEXT NOT NULL,
	config_hash TEXT NOT NULL,
	pairs       JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS overlay_cache (
	key        TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS overlay_tiles (
	key   TEXT NOT NULL REFERENCES overlay_cache(key) ON DELETE CASCADE,
	zone1 TEXT NOT NULL,
	zone2 TEXT NOT NULL,
	lower TEXT NOT NULL,
	mass  DOUBLE PRECISION NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_factor_cache_zones ON factor_cache(zone1, zone2);
CREATE INDEX IF NOT EXISTS idx_overlay_tiles_key ON overlay_tiles(key);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close is a no-op; the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

func (s *PostgresStore) GetFactors(ctx context.Context, key string) (*FactorRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT key, zone1, zone2, method, config_hash, pairs, created_at FROM factor_cache WHERE key = $1`,
		key,
	)

	var rec FactorRecord
	var pairsJSON []byte
	err := row.Scan(&rec.Key, &rec.Zone1, &rec.Zone2, &rec.Method, &rec.ConfigHash, &pairsJSON, &rec.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get factors")
	}
	if err := json.Unmarshal(pairsJSON, &rec.Pairs); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal pairs")
	}
	return &rec, nil
}

func (s *PostgresStore) PutFactors(ctx context.Context, rec FactorRecord) error {
	pairsJSON, err := json.Marshal(rec.Pairs)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal pairs")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO factor_cache (key, zone1, zone2, method, config_hash, pairs, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (key) DO UPDATE SET
			pairs = EXCLUDED.pairs,
			created_at = EXCLUDED.created_at`,
		rec.Key, rec.Zone1, rec.Zone2, rec.Method, rec.ConfigHash, pairsJSON, rec.CreatedAt,
	)
	return eris.Wrap(err, "postgres: put factors")
}

func (s *PostgresStore) GetOverlay(ctx context.Context, key string) (*OverlayRecord, error) {
	var rec OverlayRecord
	err := s.pool.QueryRow(ctx,
		`SELECT key, created_at FROM overlay_cache WHERE key = $1`, key,
	).Scan(&rec.Key, &rec.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get overlay")
	}

	rows, err := s.pool.Query(ctx,
		`SELECT zone1, zone2, lower, mass FROM overlay_tiles WHERE key = $1 ORDER BY zone1, zone2, lower`,
		key,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get overlay tiles")
	}
	defer rows.Close()

	for rows.Next() {
		var t model.Tile
		if err := rows.Scan(&t.Zone1, &t.Zone2, &t.Lower, &t.Mass); err != nil {
			return nil, eris.Wrap(err, "postgres: scan tile")
		}
		rec.Tiles = append(rec.Tiles, t)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate tiles")
	}
	return &rec, nil
}

func (s *PostgresStore) PutOverlay(ctx context.Context, rec OverlayRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO overlay_cache (key, created_at) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET created_at = EXCLUDED.created_at`,
		rec.Key, rec.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: put overlay")
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM overlay_tiles WHERE key = $1`, rec.Key); err != nil {
		return eris.Wrap(err, "postgres: clear overlay tiles")
	}

	rows := make([][]any, len(rec.Tiles))
	for i, t := range rec.Tiles {
		rows[i] = []any{rec.Key, t.Zone1, t.Zone2, t.Lower, t.Mass}
	}
	_, err = db.CopyFrom(ctx, s.pool, "overlay_tiles", []string{"key", "zone1", "zone2", "lower", "mass"}, rows)
	return eris.Wrap(err, "postgres: copy overlay tiles")
}

func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM factor_cache`).Scan(&st.Factors); err != nil {
		return Stats{}, eris.Wrap(err, "postgres: count factors")
	}
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM overlay_cache`).Scan(&st.Overlays); err != nil {
		return Stats{}, eris.Wrap(err, "postgres: count overlays")
	}
	return st, nil
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM overlay_cache`); err != nil {
		return eris.Wrap(err, "postgres: clear overlays")
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM factor_cache`); err != nil {
		return eris.Wrap(err, "postgres: clear factors")
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

var _ Store = (*PostgresStore)(nil)
