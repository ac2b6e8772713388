package fetcher

import (
	"context"
	"io"
)

// Fetcher downloads remote documents. Implementations make one attempt per
// call; retry policy belongs to the caller (see crawl.Queue).
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}
