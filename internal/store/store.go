// Package store persists collected locations, crawl links and dead-letter
// entries in SQLite or Postgres.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/storemap/internal/model"
	"github.com/sells-group/storemap/internal/nearest"
	"github.com/sells-group/storemap/internal/resilience"
)

// Drivers accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// LocationFilter narrows ListLocations. Zero values match everything.
type LocationFilter struct {
	Source string      `json:"source,omitempty"`
	Chain  model.Chain `json:"chain,omitempty"`
	Limit  int         `json:"limit,omitempty"`
	Offset int         `json:"offset,omitempty"`
}

// Store is the persistence interface shared by the CLI, the engine and the API.
type Store interface {
	// SaveLocations upserts on (source, match key). The last location for a
	// key in the batch wins.
	SaveLocations(ctx context.Context, locs []model.Location) (int64, error)
	ListLocations(ctx context.Context, filter LocationFilter) ([]model.Location, error)

	// SaveLinks replaces the crawl links remembered for source.
	SaveLinks(ctx context.Context, source string, links []string) (int64, error)
	ListLinks(ctx context.Context, source string) ([]string, error)

	// Dead letters
	EnqueueDLQ(ctx context.Context, entries ...resilience.DLQEntry) error
	ListDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	DeleteDLQ(ctx context.Context, id string) error

	Migrate(ctx context.Context) error
	Close() error
}

// Config selects and tunes the driver.
type Config struct {
	Driver   string `yaml:"driver" mapstructure:"driver"`
	DSN      string `yaml:"dsn" mapstructure:"dsn"`
	MaxConns int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// Open connects to the configured driver. It does not migrate.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "storemap.db"
		}
		return NewSQLite(dsn)
	case DriverPostgres:
		return NewPostgres(ctx, cfg.DSN, &PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
	default:
		return nil, eris.Errorf("store: unknown driver %q (valid: sqlite, postgres)", cfg.Driver)
	}
}

const defaultListLimit = 1000

// sameStoreMeters is how far apart two locations with one match key may be
// and still count as the same store.
const sameStoreMeters = 250.0

// keyedLocation is a location with the match key it is saved under.
type keyedLocation struct {
	model.Location
	Key string
}

// prepare fills in ids and timestamps before a save and assigns match keys.
// Within one batch, a location whose address key is already taken by a store
// more than sameStoreMeters away gets its rounded coordinates appended to the
// key, so distinct stores at one address are both kept. Closer ones are the
// same store and the last one wins.
func prepare(locs []model.Location) []keyedLocation {
	now := time.Now().UTC()
	seen := make(map[string][]model.Coordinate)
	out := make([]keyedLocation, len(locs))
	for i, l := range locs {
		if l.ID == "" {
			l.ID = newID()
		}
		if l.CollectedAt.IsZero() {
			l.CollectedAt = now
		}

		key := l.Address.MatchKey()
		group := l.Source + "\x00" + key
		c := l.Address.Coordinate()
		if prev := seen[group]; len(prev) > 0 && !nearAny(c, prev) {
			key += fmt.Sprintf("@%.4f,%.4f", c.Lat, c.Lon)
		}
		seen[group] = append(seen[group], c)

		out[i] = keyedLocation{Location: l, Key: key}
	}
	return out
}

func nearAny(c model.Coordinate, others []model.Coordinate) bool {
	for _, o := range others {
		if nearest.Distance(c, o) <= sameStoreMeters {
			return true
		}
	}
	return false
}
