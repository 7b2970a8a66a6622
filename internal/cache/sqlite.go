package cache

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite. It is the
// default backend: a single file under the cache directory, no server.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS factor_cache (
	key         TEXT PRIMARY KEY,
	id          TEXT NOT NULL,
	zone1       TEXT NOT NULL,
	zone2       TEXT NOT NULL,
	method      TEXT NOT NULL,
	config_hash TEXT NOT NULL,
	pairs       TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS overlay_cache (
	key        TEXT PRIMARY KEY,
	id         TEXT NOT NULL,
	tiles      TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_factor_cache_zones ON factor_cache(zone1, zone2);
CREATE INDEX IF NOT EXISTS idx_factor_cache_created_at ON factor_cache(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetFactors(ctx context.Context, key string) (*FactorRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT key, zone1, zone2, method, config_hash, pairs, created_at
		 FROM factor_cache WHERE key = ?`,
		key,
	)

	var rec FactorRecord
	var pairsJSON string
	err := row.Scan(&rec.Key, &rec.Zone1, &rec.Zone2, &rec.Method, &rec.ConfigHash, &pairsJSON, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get factors")
	}
	if err := json.Unmarshal([]byte(pairsJSON), &rec.Pairs); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal pairs")
	}
	return &rec, nil
}

func (s *SQLiteStore) PutFactors(ctx context.Context, rec FactorRecord) error {
	pairsJSON, err := json.Marshal(rec.Pairs)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal pairs")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO factor_cache (key, id, zone1, zone2, method, config_hash, pairs, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			pairs = excluded.pairs,
			created_at = excluded.created_at`,
		rec.Key, uuid.New().String(), rec.Zone1, rec.Zone2, rec.Method, rec.ConfigHash, string(pairsJSON), rec.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: put factors")
}

func (s *SQLiteStore) GetOverlay(ctx context.Context, key string) (*OverlayRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT key, tiles, created_at FROM overlay_cache WHERE key = ?`,
		key,
	)

	var rec OverlayRecord
	var tilesJSON string
	err := row.Scan(&rec.Key, &tilesJSON, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get overlay")
	}
	if err := json.Unmarshal([]byte(tilesJSON), &rec.Tiles); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal tiles")
	}
	return &rec, nil
}

func (s *SQLiteStore) PutOverlay(ctx context.Context, rec OverlayRecord) error {
	tilesJSON, err := json.Marshal(rec.Tiles)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal tiles")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO overlay_cache (key, id, tiles, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			tiles = excluded.tiles,
			created_at = excluded.created_at`,
		rec.Key, uuid.New().String(), string(tilesJSON), rec.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: put overlay")
}

func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM factor_cache`).Scan(&st.Factors); err != nil {
		return Stats{}, eris.Wrap(err, "sqlite: count factors")
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM overlay_cache`).Scan(&st.Overlays); err != nil {
		return Stats{}, eris.Wrap(err, "sqlite: count overlays")
	}
	return st, nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM factor_cache`); err != nil {
		return eris.Wrap(err, "sqlite: clear factors")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM overlay_cache`); err != nil {
		return eris.Wrap(err, "sqlite: clear overlays")
	}
	return nil
}

var _ Store = (*SQLiteStore)(nil)
