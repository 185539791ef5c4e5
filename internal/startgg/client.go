// Package startgg is a client for the start.gg GraphQL API with disk
// caching, request pacing, and bounded retries.
package startgg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	crerr "github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/pable/go-smash-metrics/internal/fetchcache"
)

// DefaultEndpoint is the public start.gg GraphQL endpoint.
const DefaultEndpoint = "https://api.start.gg/gql/alpha"

var (
	// ErrTransport marks a request that failed after exhausting retries.
	ErrTransport = crerr.New("startgg: transport failure")
	// ErrRateLimited marks a request rejected upstream for rate limiting
	// even after the retry budget was spent waiting it out.
	ErrRateLimited = crerr.New("startgg: rate limited")
)

// Config controls a Client. Zero values fall back to conservative
// defaults suited to the public API's rate limits.
type Config struct {
	Endpoint string
	Token    string

	Timeout            time.Duration // per-request, default 30s
	MinRequestInterval time.Duration // global pacing floor, default 800ms
	MaxConcurrent      int           // in-flight request cap, default 2
	MaxRetries         int           // retry budget per request, default 3
	RetryBackoff       time.Duration // linear backoff base, default 1s

	Cache         *fetchcache.Store // nil disables caching
	MaxCacheAge   time.Duration     // default fetchcache.DefaultMaxAge
	StaleFallback bool              // serve an expired entry when the network fails

	Logger *zap.Logger
}

// Client issues authenticated GraphQL requests. Safe for concurrent use;
// all requests share one pacer and one in-flight cap.
type Client struct {
	endpoint      string
	token         string
	http          *http.Client
	minInterval   time.Duration
	maxRetries    int
	retryBackoff  time.Duration
	cache         *fetchcache.Store
	maxCacheAge   time.Duration
	staleFallback bool
	log           *zap.Logger

	sem chan struct{}

	mu   sync.Mutex
	last time.Time
}

// NewClient returns a client for the given configuration.
func NewClient(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MinRequestInterval == 0 {
		cfg.MinRequestInterval = 800 * time.Millisecond
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 2
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.MaxCacheAge == 0 {
		cfg.MaxCacheAge = fetchcache.DefaultMaxAge
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{
		endpoint:      cfg.Endpoint,
		token:         cfg.Token,
		http:          &http.Client{Timeout: cfg.Timeout},
		minInterval:   cfg.MinRequestInterval,
		maxRetries:    cfg.MaxRetries,
		retryBackoff:  cfg.RetryBackoff,
		cache:         cfg.Cache,
		maxCacheAge:   cfg.MaxCacheAge,
		staleFallback: cfg.StaleFallback,
		log:           cfg.Logger,
		sem:           make(chan struct{}, cfg.MaxConcurrent),
	}
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Do executes a query, serving from the cache when a fresh entry exists,
// and decodes the data payload into out. On network failure with
// StaleFallback enabled, an expired cache entry is served instead.
func (c *Client) Do(ctx context.Context, query string, vars map[string]any, out any) error {
	key := fetchcache.Key(query, vars)

	if c.cache != nil {
		data, ok, err := c.cache.GetFresh(key, c.maxCacheAge)
		if err != nil {
			c.log.Warn("cache read failed, refetching", zap.Error(err))
		} else if ok {
			return json.Unmarshal(data, out)
		}
	}

	data, err := c.post(ctx, query, vars)
	if err != nil {
		if c.staleFallback && c.cache != nil {
			if stale, age, ok, cerr := c.cache.Get(key); cerr == nil && ok {
				c.log.Warn("remote fetch failed, serving stale cache entry",
					zap.Duration("age", age), zap.Error(err))
				return json.Unmarshal(stale, out)
			}
		}
		return err
	}

	if c.cache != nil {
		if cerr := c.cache.Put(key, data); cerr != nil {
			c.log.Warn("cache write failed", zap.Error(cerr))
		}
	}
	return json.Unmarshal(data, out)
}

// post runs the retry loop around a single GraphQL POST and returns the
// raw data payload.
func (c *Client) post(ctx context.Context, query string, vars map[string]any) ([]byte, error) {
	body, err := json.Marshal(gqlRequest{Query: query, Variables: vars})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.backoffFor(lastErr, attempt)); err != nil {
				return nil, err
			}
		}
		select {
		case c.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if err := c.pace(ctx); err != nil {
			<-c.sem
			return nil, err
		}

		data, err := c.once(ctx, body)
		<-c.sem
		if err == nil {
			return data, nil
		}
		if !retryable(err) {
			return nil, err
		}
		c.log.Warn("request failed, retrying",
			zap.Int("attempt", attempt+1), zap.Error(err))
		lastErr = err
	}
	if crerr.Is(lastErr, ErrRateLimited) {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%w: retries exhausted: %v", ErrTransport, lastErr)
}

// once performs exactly one HTTP exchange.
func (c *Client) once(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// handled below
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &rateLimitError{retryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: HTTP %d", ErrTransport, resp.StatusCode)
	default:
		return nil, crerr.Mark(
			fmt.Errorf("%w: HTTP %d", ErrTransport, resp.StatusCode), errPermanent)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrTransport, err)
	}
	var env gqlEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrTransport, err)
	}
	if len(env.Errors) > 0 {
		return nil, crerr.Mark(
			fmt.Errorf("%w: graphql: %s", ErrTransport, env.Errors[0].Message), errPermanent)
	}
	if len(env.Data) == 0 {
		return nil, crerr.Mark(
			fmt.Errorf("%w: empty data payload", ErrTransport), errPermanent)
	}
	return env.Data, nil
}

// errPermanent marks failures that retrying cannot fix (auth errors,
// malformed queries, GraphQL-level rejections).
var errPermanent = crerr.New("permanent")

func retryable(err error) bool {
	return !crerr.Is(err, errPermanent)
}

// rateLimitError carries the server's requested wait through the retry loop.
type rateLimitError struct {
	retryAfter time.Duration
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("%v (retry after %s)", ErrRateLimited, e.retryAfter)
}

func (e *rateLimitError) Unwrap() error { return ErrRateLimited }

// backoffFor returns the wait before the given retry attempt: the
// server's Retry-After when one was provided, otherwise linear backoff.
func (c *Client) backoffFor(lastErr error, attempt int) time.Duration {
	var rle *rateLimitError
	if crerr.As(lastErr, &rle) && rle.retryAfter > 0 {
		return rle.retryAfter
	}
	return time.Duration(attempt) * c.retryBackoff
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// pace blocks until the minimum inter-request interval has elapsed.
// Pacing waits cooperatively and never errors except on context
// cancellation.
func (c *Client) pace(ctx context.Context) error {
	c.mu.Lock()
	wait := c.minInterval - time.Since(c.last)
	if wait > 0 {
		c.last = c.last.Add(c.minInterval)
	} else {
		c.last = time.Now()
		wait = 0
	}
	c.mu.Unlock()

	return c.sleep(ctx, wait)
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
