package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/storemap/internal/model"
	"github.com/sells-group/storemap/internal/resilience"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func aalen(source string, chain model.Chain, street string) model.Location {
	return model.Location{
		Source: source,
		Chain:  chain,
		Address: model.GeoAddress{
			Street:     street,
			PostalCode: "73431",
			City:       "Aalen",
			Latitude:   48.82852,
			Longitude:  10.11375,
		},
	}
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_SaveAndListLocations(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	n, err := st.SaveLocations(ctx, []model.Location{
		aalen(model.SourceLidl, model.ChainLidl, "Ulmer Str. 150"),
		aalen(model.SourceAldiSued, model.ChainAldi, "Ulmer Straße 130"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	all, err := st.ListLocations(ctx, LocationFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.NotEmpty(t, all[0].ID)
	assert.False(t, all[0].CollectedAt.IsZero())

	lidl, err := st.ListLocations(ctx, LocationFilter{Chain: model.ChainLidl})
	require.NoError(t, err)
	require.Len(t, lidl, 1)
	assert.Equal(t, "Ulmer Str. 150", lidl[0].Address.Street)
	assert.Equal(t, 48.82852, lidl[0].Address.Latitude)
	assert.Equal(t, model.ChainLidl, lidl[0].Chain)

	bySource, err := st.ListLocations(ctx, LocationFilter{Source: model.SourceAldiSued})
	require.NoError(t, err)
	require.Len(t, bySource, 1)
}

func TestSQLite_SaveLocationsUpsertsOnMatchKey(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first := aalen(model.SourceLidl, model.ChainLidl, "Ulmer Straße 150")
	_, err := st.SaveLocations(ctx, []model.Location{first})
	require.NoError(t, err)

	moved := aalen(model.SourceLidl, model.ChainLidl, "ULMER STRASSE 150")
	moved.Address.Latitude = 48.9
	_, err = st.SaveLocations(ctx, []model.Location{moved})
	require.NoError(t, err)

	all, err := st.ListLocations(ctx, LocationFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 48.9, all[0].Address.Latitude)
	assert.Equal(t, "ULMER STRASSE 150", all[0].Address.Street)
}

func TestSQLite_SaveLocationsKeepsDistinctStoresAtOneAddress(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	here := aalen(model.SourceAldiSued, model.ChainAldi, "Hauptstr. 1")
	elsewhere := aalen(model.SourceAldiSued, model.ChainAldi, "Hauptstr. 1")
	elsewhere.Address.Latitude = 48.90
	duplicate := aalen(model.SourceAldiSued, model.ChainAldi, "HAUPTSTR 1")
	duplicate.Address.Longitude += 0.0005

	_, err := st.SaveLocations(ctx, []model.Location{here, elsewhere, duplicate})
	require.NoError(t, err)

	all, err := st.ListLocations(ctx, LocationFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	var lats []float64
	for _, l := range all {
		lats = append(lats, l.Address.Latitude)
	}
	assert.ElementsMatch(t, []float64{48.82852, 48.90}, lats)
}

func TestPrepare_MatchKeys(t *testing.T) {
	a := aalen(model.SourceLidl, model.ChainLidl, "Ulmer Str. 150")
	far := a
	far.Address.Latitude = 48.9
	far.Address.Longitude = 10.2
	near := a
	near.Address.Latitude += 0.001
	otherSource := far
	otherSource.Source = model.SourceAldiSued

	got := prepare([]model.Location{a, far, near, otherSource})
	require.Len(t, got, 4)
	assert.Equal(t, "73431:ulmerstr150", got[0].Key)
	assert.Equal(t, "73431:ulmerstr150@48.9000,10.2000", got[1].Key)
	assert.Equal(t, got[0].Key, got[2].Key)
	assert.Equal(t, "73431:ulmerstr150", got[3].Key)
	for _, l := range got {
		assert.NotEmpty(t, l.ID)
		assert.False(t, l.CollectedAt.IsZero())
	}
}

func TestSQLite_ListLocationsPaging(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	var locs []model.Location
	for _, s := range []string{"A-Weg 1", "B-Weg 2", "C-Weg 3"} {
		locs = append(locs, aalen(model.SourceLidl, model.ChainLidl, s))
	}
	_, err := st.SaveLocations(ctx, locs)
	require.NoError(t, err)

	page, err := st.ListLocations(ctx, LocationFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "B-Weg 2", page[0].Address.Street)
}

func TestSQLite_SaveLocationsEmpty(t *testing.T) {
	st := newTestSQLiteStore(t)
	n, err := st.SaveLocations(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestSQLite_Links(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	links, err := st.ListLinks(ctx, model.SourceAldiSued)
	require.NoError(t, err)
	assert.Empty(t, links)

	_, err = st.SaveLinks(ctx, model.SourceAldiSued, []string{"https://x/b", "https://x/a"})
	require.NoError(t, err)
	n, err := st.SaveLinks(ctx, model.SourceAldiSued, []string{"https://x/c", "https://x/a"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	links, err = st.ListLinks(ctx, model.SourceAldiSued)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://x/c", "https://x/a"}, links)
}

func TestSQLite_DLQ(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	busy := resilience.NewDLQEntry(model.SourceAldiSued, "https://x/1", 3, resilience.NewTransientError(errors.New("503"), 503))
	gone := resilience.NewDLQEntry(model.SourceLidl, "https://y/1", 1, errors.New("404"))
	gone.CreatedAt = busy.CreatedAt.Add(time.Second)
	require.NoError(t, st.EnqueueDLQ(ctx, busy, gone))

	again := resilience.NewDLQEntry(model.SourceAldiSued, "https://x/1", 2, errors.New("404"))
	require.NoError(t, st.EnqueueDLQ(ctx, again))

	all, err := st.ListDLQ(ctx, resilience.DLQFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, busy.ID, all[0].ID)
	assert.Equal(t, 5, all[0].Attempts)
	assert.Equal(t, "permanent", all[0].ErrorType)

	lidl, err := st.ListDLQ(ctx, resilience.DLQFilter{Source: model.SourceLidl})
	require.NoError(t, err)
	require.Len(t, lidl, 1)

	require.NoError(t, st.DeleteDLQ(ctx, gone.ID))
	err = st.DeleteDLQ(ctx, gone.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	st, err := Open(ctx, Config{Driver: DriverSQLite, DSN: filepath.Join(t.TempDir(), "open.db")})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	_, err = Open(ctx, Config{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}
