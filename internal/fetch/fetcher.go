// Package fetch retrieves scheme pages from verified external sources. Every
// request passes an allow-list check, the shared content cache, a bounded
// retry loop and a per-host circuit breaker before any markup is parsed.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/saarthi-dev/saarthi/internal/cache"
	"github.com/saarthi-dev/saarthi/internal/monitoring"
)

// ErrUntrustedSource is returned for URLs whose host is not on the
// configured allow-list. No network call is made for them.
var ErrUntrustedSource = errors.New("source host not on allow-list")

const (
	// DefaultTimeout bounds a single HTTP attempt.
	DefaultTimeout = 5 * time.Second
	// DefaultAttempts is the number of tries per fetch, the first included.
	DefaultAttempts = 3
	// DefaultBackoffBase seeds the exponential backoff between attempts.
	DefaultBackoffBase = 500 * time.Millisecond

	maxBodySize = 2 << 20
)

// Config carries the tunable parts of a Fetcher. Zero values select
// defaults.
type Config struct {
	AllowedHosts     []string
	Timeout          time.Duration
	Attempts         int
	BackoffBase      time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// Fetcher performs allow-listed, cached, circuit-broken retrieval of scheme
// pages.
type Fetcher struct {
	cache    *cache.Cache
	client   *http.Client
	breaker  *Breaker
	allowed  map[string]struct{}
	timeout  time.Duration
	attempts int
	backoff  time.Duration
	sink     monitoring.Sink
	sleep    func(ctx context.Context, d time.Duration) error
}

// New creates a Fetcher over the given cache. A nil sink discards events.
func New(c *cache.Cache, cfg Config, sink monitoring.Sink) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultBackoffBase
	}
	if sink == nil {
		sink = monitoring.Nop{}
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedHosts))
	for _, h := range cfg.AllowedHosts {
		allowed[strings.ToLower(h)] = struct{}{}
	}
	return &Fetcher{
		cache:    c,
		client:   &http.Client{},
		breaker:  NewBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		allowed:  allowed,
		timeout:  cfg.Timeout,
		attempts: cfg.Attempts,
		backoff:  cfg.BackoffBase,
		sink:     sink,
		sleep:    sleepCtx,
	}
}

// ValidateSource checks that the URL is http(s) and its host is on the
// allow-list.
func (f *Fetcher) ValidateSource(rawURL string) error {
	host, err := f.hostOf(rawURL)
	if err != nil {
		return err
	}
	if _, ok := f.allowed[host]; !ok {
		return fmt.Errorf("%w: %s", ErrUntrustedSource, host)
	}
	return nil
}

// Fetch returns the structured extract for a scheme page. The stale flag is
// true when the origin was unreachable and cached content was served
// instead. An ErrExtractionFailed error comes with the partial extract and
// should not abort the caller's request.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Extract, bool, error) {
	if err := f.ValidateSource(rawURL); err != nil {
		return Extract{}, false, err
	}

	content, stale, err := f.cache.GetOrFetch(ctx, rawURL, func(ctx context.Context) (string, error) {
		return f.download(ctx, rawURL)
	})
	if err != nil {
		return Extract{}, false, fmt.Errorf("fetching %s: %w", rawURL, err)
	}

	ex, err := ExtractScheme(content)
	if err != nil {
		return ex, stale, err
	}
	return ex, stale, nil
}

// download runs the bounded retry loop against the origin. The circuit
// breaker is consulted once per fetch; its outcome is recorded from the
// final attempt.
func (f *Fetcher) download(ctx context.Context, rawURL string) (string, error) {
	host, err := f.hostOf(rawURL)
	if err != nil {
		return "", err
	}
	if err := f.breaker.Allow(host); err != nil {
		return "", fmt.Errorf("%w: %s", err, host)
	}

	var lastErr error
	for attempt := 0; attempt < f.attempts; attempt++ {
		if attempt > 0 {
			if err := f.sleep(ctx, backoffDelay(f.backoff, attempt)); err != nil {
				break
			}
		}

		start := time.Now()
		body, err := f.get(ctx, rawURL)
		f.sink.FetchEvent(host, err == nil, time.Since(start))
		if err == nil {
			f.breaker.Success(host)
			return body, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	f.breaker.Failure(host)
	return "", fmt.Errorf("all attempts failed for %s: %w", host, lastErr)
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}
	return string(body), nil
}

func (f *Fetcher) hostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUntrustedSource, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme %q", ErrUntrustedSource, u.Scheme)
	}
	return strings.ToLower(u.Hostname()), nil
}

// backoffDelay doubles the base per attempt and adds jitter up to one base
// unit, so concurrent retries against the same origin spread out.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	d := base << (attempt - 1)
	return d + time.Duration(rand.Int64N(int64(base)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
