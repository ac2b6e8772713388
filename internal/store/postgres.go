package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/storemap/internal/db"
	"github.com/sells-group/storemap/internal/model"
	"github.com/sells-group/storemap/internal/resilience"
)

// PostgresStore implements Store on a pgx pool. Locations carry a PostGIS
// point so they can be joined against other geo tables.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 1
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			pgxCfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			pgxCfg.MinConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS locations (
	id           TEXT PRIMARY KEY,
	source       TEXT NOT NULL,
	chain        TEXT NOT NULL,
	url          TEXT NOT NULL DEFAULT '',
	match_key    TEXT NOT NULL,
	street       TEXT NOT NULL,
	house_number TEXT NOT NULL DEFAULT '',
	postal_code  TEXT NOT NULL,
	city         TEXT NOT NULL,
	latitude     DOUBLE PRECISION NOT NULL,
	longitude    DOUBLE PRECISION NOT NULL,
	geom         geometry(Point, 4326),
	collected_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (source, match_key)
);

CREATE TABLE IF NOT EXISTS links (
	source   TEXT NOT NULL,
	position INTEGER NOT NULL,
	url      TEXT NOT NULL,
	PRIMARY KEY (source, position)
);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	id             TEXT PRIMARY KEY,
	source         TEXT NOT NULL,
	url            TEXT NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL,
	attempts       INTEGER NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_failed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (source, url)
);

CREATE INDEX IF NOT EXISTS idx_locations_chain ON locations(chain);
CREATE INDEX IF NOT EXISTS idx_locations_geom ON locations USING GIST (geom);
CREATE INDEX IF NOT EXISTS idx_dlq_error_type ON dead_letter_queue(error_type);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

var locationUpsert = db.UpsertConfig{
	Table: "locations",
	Columns: []string{
		"id", "source", "chain", "url", "match_key", "street", "house_number",
		"postal_code", "city", "latitude", "longitude", "geom", "collected_at",
	},
	ConflictKeys: []string{"source", "match_key"},
	UpdateCols: []string{
		"chain", "url", "street", "house_number", "postal_code", "city",
		"latitude", "longitude", "geom", "collected_at",
	},
}

func (s *PostgresStore) SaveLocations(ctx context.Context, locs []model.Location) (int64, error) {
	rows := make([][]any, 0, len(locs))
	for _, l := range prepare(locs) {
		a := l.Address
		point, err := pointEWKB(a.Coordinate())
		if err != nil {
			return 0, err
		}
		rows = append(rows, []any{
			l.ID, l.Source, string(l.Chain), l.URL, l.Key, a.Street, a.HouseNumber,
			a.PostalCode, a.City, a.Latitude, a.Longitude, point, l.CollectedAt,
		})
	}
	n, err := db.BulkUpsert(ctx, s.pool, locationUpsert, rows)
	return n, eris.Wrap(err, "postgres: save locations")
}

// pointEWKB encodes c as an SRID 4326 point, x = longitude.
func pointEWKB(c model.Coordinate) ([]byte, error) {
	p := geom.NewPointFlat(geom.XY, []float64{c.Lon, c.Lat}).SetSRID(4326)
	data, err := ewkb.Marshal(p, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: encode point")
	}
	return data, nil
}

func (s *PostgresStore) ListLocations(ctx context.Context, filter LocationFilter) ([]model.Location, error) {
	query := `SELECT id, source, chain, url, street, house_number, postal_code, city, latitude, longitude, collected_at
	          FROM locations WHERE 1 = 1`
	var args []any
	if filter.Source != "" {
		args = append(args, filter.Source)
		query += fmt.Sprintf(" AND source = $%d", len(args))
	}
	if filter.Chain != "" {
		args = append(args, string(filter.Chain))
		query += fmt.Sprintf(" AND chain = $%d", len(args))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY source, postal_code, match_key LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list locations")
	}
	defer rows.Close()

	var out []model.Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan location")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list locations iterate")
}

func (s *PostgresStore) SaveLinks(ctx context.Context, source string, links []string) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin save links")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM links WHERE source = $1`, source); err != nil {
		return 0, eris.Wrapf(err, "postgres: clear links for %s", source)
	}
	rows := make([][]any, len(links))
	for i, u := range links {
		rows[i] = []any{source, i, u}
	}
	n, err := db.CopyFrom(ctx, tx, "links", []string{"source", "position", "url"}, rows)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit save links")
	}
	return n, nil
}

func (s *PostgresStore) ListLinks(ctx context.Context, source string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT url FROM links WHERE source = $1 ORDER BY position`, source)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list links")
	}
	defer rows.Close()

	links := []string{}
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, eris.Wrap(err, "postgres: scan link")
		}
		links = append(links, u)
	}
	return links, eris.Wrap(rows.Err(), "postgres: list links iterate")
}

func (s *PostgresStore) EnqueueDLQ(ctx context.Context, entries ...resilience.DLQEntry) error {
	for _, e := range entries {
		if e.ID == "" {
			e.ID = newID()
		}
		_, err := s.pool.Exec(ctx,
			`INSERT INTO dead_letter_queue (id, source, url, error, error_type, attempts, created_at, last_failed_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (source, url) DO UPDATE SET
			   error = $4, error_type = $5,
			   attempts = dead_letter_queue.attempts + $6,
			   last_failed_at = $8`,
			e.ID, e.Source, e.URL, e.Error, e.ErrorType, e.Attempts, e.CreatedAt, e.LastFailedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: enqueue dlq %s", e.URL)
		}
	}
	return nil
}

func (s *PostgresStore) ListDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT id, source, url, error, error_type, attempts, created_at, last_failed_at
	          FROM dead_letter_queue WHERE 1 = 1`
	var args []any
	if filter.Source != "" {
		args = append(args, filter.Source)
		query += fmt.Sprintf(" AND source = $%d", len(args))
	}
	if filter.ErrorType != "" {
		args = append(args, filter.ErrorType)
		query += fmt.Sprintf(" AND error_type = $%d", len(args))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at, url LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list dlq")
	}
	defer rows.Close()

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		if err := rows.Scan(&e.ID, &e.Source, &e.URL, &e.Error, &e.ErrorType, &e.Attempts, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dlq entry")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list dlq iterate")
}

func (s *PostgresStore) DeleteDLQ(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM dead_letter_queue WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete dlq %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("dlq entry not found: %s", id)
	}
	return nil
}
