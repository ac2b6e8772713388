package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/storemap/internal/model"
	"github.com/sells-group/storemap/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
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
	latitude     REAL NOT NULL,
	longitude    REAL NOT NULL,
	collected_at DATETIME NOT NULL,
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
	created_at     DATETIME NOT NULL,
	last_failed_at DATETIME NOT NULL,
	UNIQUE (source, url)
);

CREATE INDEX IF NOT EXISTS idx_locations_chain ON locations(chain);
CREATE INDEX IF NOT EXISTS idx_dlq_error_type ON dead_letter_queue(error_type);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveLocations(ctx context.Context, locs []model.Location) (int64, error) {
	if len(locs) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin save locations")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO locations (id, source, chain, url, match_key, street, house_number, postal_code, city, latitude, longitude, collected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source, match_key) DO UPDATE SET
			chain = excluded.chain, url = excluded.url, street = excluded.street,
			house_number = excluded.house_number, postal_code = excluded.postal_code, city = excluded.city,
			latitude = excluded.latitude, longitude = excluded.longitude, collected_at = excluded.collected_at`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert location")
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for _, l := range prepare(locs) {
		a := l.Address
		res, err := stmt.ExecContext(ctx, l.ID, l.Source, string(l.Chain), l.URL, l.Key,
			a.Street, a.HouseNumber, a.PostalCode, a.City, a.Latitude, a.Longitude, l.CollectedAt)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert location %s", l.Key)
		}
		affected, _ := res.RowsAffected()
		n += affected
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit save locations")
	}
	return n, nil
}

func (s *SQLiteStore) ListLocations(ctx context.Context, filter LocationFilter) ([]model.Location, error) {
	query := `SELECT id, source, chain, url, street, house_number, postal_code, city, latitude, longitude, collected_at FROM locations`
	var where []string
	var args []any
	if filter.Source != "" {
		where = append(where, "source = ?")
		args = append(args, filter.Source)
	}
	if filter.Chain != "" {
		where = append(where, "chain = ?")
		args = append(args, string(filter.Chain))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += " ORDER BY source, postal_code, match_key LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list locations")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan location")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list locations iterate")
}

func (s *SQLiteStore) SaveLinks(ctx context.Context, source string, links []string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin save links")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM links WHERE source = ?`, source); err != nil {
		return 0, eris.Wrapf(err, "sqlite: clear links for %s", source)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO links (source, position, url) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert link")
	}
	defer stmt.Close() //nolint:errcheck
	for i, u := range links {
		if _, err := stmt.ExecContext(ctx, source, i, u); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert link %s", u)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit save links")
	}
	return int64(len(links)), nil
}

func (s *SQLiteStore) ListLinks(ctx context.Context, source string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT url FROM links WHERE source = ? ORDER BY position`, source)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list links")
	}
	defer rows.Close() //nolint:errcheck

	links := []string{}
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan link")
		}
		links = append(links, u)
	}
	return links, eris.Wrap(rows.Err(), "sqlite: list links iterate")
}

func (s *SQLiteStore) EnqueueDLQ(ctx context.Context, entries ...resilience.DLQEntry) error {
	for _, e := range entries {
		if e.ID == "" {
			e.ID = newID()
		}
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO dead_letter_queue (id, source, url, error, error_type, attempts, created_at, last_failed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (source, url) DO UPDATE SET
			   error = excluded.error, error_type = excluded.error_type,
			   attempts = dead_letter_queue.attempts + excluded.attempts,
			   last_failed_at = excluded.last_failed_at`,
			e.ID, e.Source, e.URL, e.Error, e.ErrorType, e.Attempts, e.CreatedAt, e.LastFailedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: enqueue dlq %s", e.URL)
		}
	}
	return nil
}

func (s *SQLiteStore) ListDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT id, source, url, error, error_type, attempts, created_at, last_failed_at FROM dead_letter_queue WHERE 1 = 1`
	var args []any
	if filter.Source != "" {
		query += " AND source = ?"
		args = append(args, filter.Source)
	}
	if filter.ErrorType != "" {
		query += " AND error_type = ?"
		args = append(args, filter.ErrorType)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " ORDER BY created_at, url LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list dlq")
	}
	defer rows.Close() //nolint:errcheck

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		if err := rows.Scan(&e.ID, &e.Source, &e.URL, &e.Error, &e.ErrorType, &e.Attempts, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dlq entry")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list dlq iterate")
}

func (s *SQLiteStore) DeleteDLQ(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM dead_letter_queue WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete dlq %s", id)
	}
	return checkRowsAffected(res, "dlq entry", id)
}

// helpers

func newID() string { return uuid.New().String() }

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanLocation(row scannable) (model.Location, error) {
	var l model.Location
	var chain string
	a := &l.Address
	err := row.Scan(&l.ID, &l.Source, &chain, &l.URL, &a.Street, &a.HouseNumber,
		&a.PostalCode, &a.City, &a.Latitude, &a.Longitude, &l.CollectedAt)
	l.Chain = model.Chain(chain)
	return l, err
}
