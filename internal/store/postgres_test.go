package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/storemap/internal/model"
	"github.com/sells-group/storemap/internal/resilience"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return &PostgresStore{pool: mock}, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE EXTENSION IF NOT EXISTS postgis`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveLocations(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_locations"}, locationUpsert.Columns).WillReturnResult(1)
	mock.ExpectExec(`DELETE FROM`).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`INSERT INTO "locations" .* ON CONFLICT \("source", "match_key"\) DO UPDATE SET "chain"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := s.SaveLocations(context.Background(), []model.Location{aalen(model.SourceLidl, model.ChainLidl, "Ulmer Str. 150")})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListLocations(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	collected := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(`FROM locations WHERE 1 = 1 AND chain = \$1 ORDER BY .* LIMIT \$2 OFFSET \$3`).
		WithArgs("lidl", 10, 0).
		WillReturnRows(pgxmock.NewRows([]string{"id", "source", "chain", "url", "street", "house_number", "postal_code", "city", "latitude", "longitude", "collected_at"}).
			AddRow("id-1", "lidl", "lidl", "", "Ulmer Str. 150", "", "73431", "Aalen", 48.82852, 10.11375, collected))

	locs, err := s.ListLocations(context.Background(), LocationFilter{Chain: model.ChainLidl, Limit: 10})
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, "Aalen", locs[0].Address.City)
	assert.Equal(t, collected, locs[0].CollectedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveLinks(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM links WHERE source = \$1`).WithArgs("aldi_sued").WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectCopyFrom(pgx.Identifier{"links"}, []string{"source", "position", "url"}).WillReturnResult(2)
	mock.ExpectCommit()

	n, err := s.SaveLinks(context.Background(), "aldi_sued", []string{"https://a", "https://b"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListLinks(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT url FROM links`).WithArgs("lidl").
		WillReturnRows(pgxmock.NewRows([]string{"url"}).AddRow("https://a").AddRow("https://b"))

	links, err := s.ListLinks(context.Background(), "lidl")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a", "https://b"}, links)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EnqueueDLQ(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	e := resilience.NewDLQEntry("aldi_sued", "https://x/1", 3, errors.New("404"))

	mock.ExpectExec(`(?s)INSERT INTO dead_letter_queue .* ON CONFLICT \(source, url\)`).
		WithArgs(e.ID, e.Source, e.URL, e.Error, e.ErrorType, e.Attempts, e.CreatedAt, e.LastFailedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.EnqueueDLQ(context.Background(), e))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListDLQ(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM dead_letter_queue WHERE 1 = 1 AND error_type = \$1 ORDER BY created_at, url LIMIT \$2`).
		WithArgs("transient", 100).
		WillReturnRows(pgxmock.NewRows([]string{"id", "source", "url", "error", "error_type", "attempts", "created_at", "last_failed_at"}).
			AddRow("d1", "lidl", "https://y", "503", "transient", 3, now, now))

	entries, err := s.ListDLQ(context.Background(), resilience.DLQFilter{ErrorType: "transient"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 3, entries[0].Attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteDLQ_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM dead_letter_queue`).WithArgs("missing").WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := s.DeleteDLQ(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPointEWKB(t *testing.T) {
	data, err := pointEWKB(model.Coordinate{Lat: 48.8, Lon: 10.1})
	require.NoError(t, err)
	// NDR byte order marker, point type with SRID flag, SRID 4326.
	assert.Equal(t, byte(0x01), data[0])
	assert.Equal(t, []byte{0x01, 0x00, 0x00, 0x20}, data[1:5])
	assert.Equal(t, []byte{0xe6, 0x10, 0x00, 0x00}, data[5:9])
	assert.Len(t, data, 25)
}
