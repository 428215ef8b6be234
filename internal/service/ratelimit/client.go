package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	domrepo "SmartTrader/internal/domain/repository"
	xhttp "SmartTrader/pkg/http"
	"SmartTrader/pkg/logger"
)

var (
	// ErrExhausted is returned once every attempt has failed.
	ErrExhausted = errors.New("retries exhausted")
	// ErrThrottled marks an HTTP 429 answer.
	ErrThrottled = errors.New("throttled by upstream")
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Client is the single outbound path to one market-data API: it spaces
// requests, retries with linear backoff, and waits longer on HTTP 429.
type Client struct {
	name     string
	baseURL  string
	headers  map[string]string
	retries  int
	timeout  time.Duration
	limiter  *rate.Limiter
	http     *xhttp.Client
	sleep    Sleeper
	metrics  domrepo.Metrics
	log      *logger.Logger
	httpOpts []xhttp.ClientOption
}

type Option func(*Client)

func WithRate(perSec float64) Option {
	return func(c *Client) { c.limiter = NewSpacing(perSec) }
}

func WithRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retries = n
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHeader adds a static header; empty values are skipped.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		if value != "" {
			c.headers[key] = value
		}
	}
}

func WithHTTPOptions(opts ...xhttp.ClientOption) Option {
	return func(c *Client) { c.httpOpts = append(c.httpOpts, opts...) }
}

func WithSleeper(s Sleeper) Option {
	return func(c *Client) { c.sleep = s }
}

func WithMetrics(m domrepo.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

func NewClient(name, baseURL string, opts ...Option) *Client {
	c := &Client{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		headers: map[string]string{},
		retries: 3,
		timeout: 10 * time.Second,
		limiter: NewSpacing(4),
		sleep:   sleepCtx,
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http = xhttp.NewClient(append([]xhttp.ClientOption{xhttp.WithTimeout(c.timeout)}, c.httpOpts...)...)
	return c
}

func (c *Client) Name() string { return c.name }

// Get issues GET {baseURL}/{path}?params and returns the 2xx body.
func (c *Client) Get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	return c.Request(ctx, xhttp.MethodGet, path, params, nil)
}

// GetJSON issues a GET and decodes the body into dest.
func (c *Client) GetJSON(ctx context.Context, path string, params url.Values, dest any) error {
	body, err := c.Get(ctx, path, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("%s %s: decode: %w", c.name, path, err)
	}
	return nil
}

// Request runs up to retries+1 attempts. A 5xx, transport error or other
// non-2xx answer backs off 0.5s*(attempt+1); a 429 waits (1+attempt)s.
func (c *Client) Request(ctx context.Context, method, path string, params url.Values, body any) ([]byte, error) {
	target := c.baseURL + "/" + strings.TrimLeft(path, "/")
	var lastErr error

	for attempt := 0; attempt <= c.retries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s: rate limiter: %w", c.name, err)
		}

		start := time.Now()
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err := c.http.Do(reqCtx, &xhttp.RequestOptions{
			Method:      method,
			URL:         target,
			Headers:     c.headers,
			QueryParams: params,
			Body:        body,
		})
		cancel()
		c.observe(start)

		backoff := time.Duration(attempt+1) * 500 * time.Millisecond
		switch {
		case err != nil:
			lastErr = err
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("%w: %s", ErrThrottled, target)
			backoff = time.Duration(attempt+1) * time.Second
		case !resp.OK():
			lastErr = &xhttp.StatusError{Code: resp.StatusCode, Body: string(resp.Body)}
		default:
			return resp.Body, nil
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", c.name, ctx.Err())
		}
		c.log.Warn("market api request failed",
			logger.String("provider", c.name),
			logger.String("path", path),
			logger.Int("attempt", attempt+1),
			logger.Error(lastErr))
		if c.metrics != nil {
			c.metrics.RecordError("http_" + c.name)
		}
		if attempt < c.retries {
			if err := c.sleep(ctx, backoff); err != nil {
				return nil, fmt.Errorf("%s: %w", c.name, err)
			}
		}
	}
	return nil, fmt.Errorf("%s %s: %w after %d attempts: %w", c.name, path, ErrExhausted, c.retries+1, lastErr)
}

func (c *Client) observe(start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordLatency("http_"+c.name, time.Since(start).Seconds())
	}
}
