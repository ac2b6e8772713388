package resilience

import (
	"time"

	"github.com/google/uuid"
)

// DLQEntry records a URL a crawl gave up on.
type DLQEntry struct {
	ID           string    `json:"id"`
	Source       string    `json:"source"`
	URL          string    `json:"url"`
	Error        string    `json:"error"`
	ErrorType    string    `json:"error_type"` // "transient" or "permanent"
	Attempts     int       `json:"attempts"`
	CreatedAt    time.Time `json:"created_at"`
	LastFailedAt time.Time `json:"last_failed_at"`
}

// DLQFilter narrows a dead-letter listing.
type DLQFilter struct {
	Source    string `json:"source,omitempty"`
	ErrorType string `json:"error_type,omitempty"` // "" for all
	Limit     int    `json:"limit,omitempty"`
}

// NewDLQEntry builds an entry for url after attempts tries ended in err.
func NewDLQEntry(source, url string, attempts int, err error) DLQEntry {
	now := time.Now().UTC()
	return DLQEntry{
		ID:           uuid.NewString(),
		Source:       source,
		URL:          url,
		Error:        err.Error(),
		ErrorType:    ErrorType(err),
		Attempts:     attempts,
		CreatedAt:    now,
		LastFailedAt: now,
	}
}

// Retryable reports whether another crawl might succeed.
func (e DLQEntry) Retryable() bool {
	return e.ErrorType == "transient"
}
