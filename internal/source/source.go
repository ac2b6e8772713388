// Package source collects store locations from the chains' public store
// finders. Each Source is registered in a Registry and run by the Engine.
package source

import (
	"context"
	"fmt"

	"github.com/sells-group/storemap/internal/crawl"
	"github.com/sells-group/storemap/internal/model"
	"github.com/sells-group/storemap/internal/resilience"
)

// Source collects the locations of one chain division.
type Source interface {
	// Name is the stable identifier stored with every location, e.g. "aldi_sued".
	Name() string
	Chain() model.Chain
	// Collect fetches and extracts all locations. Per-page failures are
	// reported in Result.Failed; an error means the whole source failed.
	Collect(ctx context.Context, env Env) (*Result, error)
}

// Env carries the shared crawl resources into Collect.
type Env struct {
	Queue *crawl.Queue
}

// Document is a raw upstream response kept for the archive.
type Document struct {
	Name        string
	ContentType string
	Body        []byte
}

// Result is the output of one Collect call.
type Result struct {
	Locations []model.Location
	// Links are the crawl URLs the locations were extracted from.
	Links     []string
	Failed    []resilience.DLQEntry
	Documents []Document
}

// MissingFieldError reports a store page that lacks a required field.
type MissingFieldError struct {
	URL   string
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("source: missing or empty %s for store %s", e.Field, e.URL)
}
