package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/storemap/internal/resilience"
)

// DefaultUserAgent identifies the crawler to the store-finder sites.
const DefaultUserAgent = "storemap/1.0"

// DefaultHostDelay is the polite spacing between two requests to one host.
const DefaultHostDelay = 750 * time.Millisecond

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	// HostDelay is the initial minimum spacing between requests to one host.
	// The per-host limiter adapts between HostDelay/2 and HostDelay*4.
	HostDelay time.Duration
	// RateLimiters pins fixed limiters for specific hosts instead of the
	// adaptive default.
	RateLimiters map[string]*rate.Limiter
	// Client overrides the underlying HTTP client (tests).
	Client *http.Client
}

// AdaptiveLimiter wraps a rate.Limiter with adaptive rate adjustment.
// On success it increases the rate by 20% (up to 2x initial).
// On 429 it halves the rate (down to initial/4 minimum).
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter that auto-tunes.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess increases the rate by 20%, up to 2x initial.
func (a *AdaptiveLimiter) OnSuccess() {
	a.adjust(1.2)
}

// OnRateLimit halves the rate after a 429 response.
func (a *AdaptiveLimiter) OnRateLimit() {
	r := a.adjust(0.5)
	zap.L().Warn("adaptive rate limit: reducing rate after 429", zap.Float64("new_rate", float64(r)))
}

func (a *AdaptiveLimiter) adjust(factor float64) rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	r := a.currentRate * rate.Limit(factor)
	r = min(max(r, a.minRate), a.maxRate)
	a.currentRate = r
	a.limiter.SetLimit(r)
	return r
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// HTTPFetcher implements Fetcher with a shared client and per-host rate
// limiting. It is constructed once and passed to every source.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	adaptive map[string]*AdaptiveLimiter
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.HostDelay <= 0 {
		opts.HostDelay = DefaultHostDelay
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				MaxConnsPerHost:     20,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &HTTPFetcher{
		client:   client,
		opts:     opts,
		adaptive: make(map[string]*AdaptiveLimiter),
	}
}

// limiterFor returns the fixed limiter pinned for host, or the host's
// adaptive limiter (created on first use).
func (f *HTTPFetcher) limiterFor(host string) (*rate.Limiter, *AdaptiveLimiter) {
	if lim, ok := f.opts.RateLimiters[host]; ok {
		return lim, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.adaptive[host]
	if !ok {
		a = NewAdaptiveLimiter(rate.Every(f.opts.HostDelay), 1)
		f.adaptive[host] = a
	}
	return nil, a
}

// Download fetches the URL and returns the response body. Network errors,
// 408, 429 and 5xx responses come back as resilience.TransientError.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "download: parse url %q", rawURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "download: create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	fixed, adaptive := f.limiterFor(u.Host)
	if fixed != nil {
		err = fixed.Wait(ctx)
	} else {
		err = adaptive.Wait(ctx)
	}
	if err != nil {
		return nil, eris.Wrap(err, "download: rate limiter wait")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "download: cancelled")
		}
		return nil, resilience.NewTransientError(eris.Wrapf(err, "download %s", rawURL), 0)
	}

	if resp.StatusCode == http.StatusTooManyRequests && adaptive != nil {
		adaptive.OnRateLimit()
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		statusErr := eris.Errorf("download: unexpected status %d from %s", resp.StatusCode, rawURL)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}

	if adaptive != nil {
		adaptive.OnSuccess()
	}
	return resp.Body, nil
}

// DownloadToFile fetches the URL and writes it to the given path.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	file, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "create file")
	}
	defer file.Close() //nolint:errcheck

	n, err := io.Copy(file, body)
	if err != nil {
		return n, eris.Wrap(err, "write file")
	}

	return n, nil
}
