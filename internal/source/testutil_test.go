package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sells-group/storemap/internal/crawl"
	"github.com/sells-group/storemap/internal/fetcher"
	"github.com/sells-group/storemap/internal/model"
	"github.com/sells-group/storemap/internal/resilience"
)

func testEnv() Env {
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{HostDelay: time.Microsecond})
	q := crawl.New(f, crawl.Options{
		Workers: 4,
		Retry:   resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond},
		Breaker: resilience.CircuitBreakerConfig{FailureThreshold: 100},
	})
	return Env{Queue: q}
}

// serve answers each path with a fixed body; other paths get 404.
func serve(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// stubSource returns a canned result or error.
type stubSource struct {
	name  string
	chain model.Chain
	res   *Result
	err   error
}

func (s *stubSource) Name() string       { return s.name }
func (s *stubSource) Chain() model.Chain { return s.chain }

func (s *stubSource) Collect(context.Context, Env) (*Result, error) {
	return s.res, s.err
}
