// Package fetch provides the client for the upstream fantasy stats API.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yourorg/fpl-cohorts/internal/circuitbreaker"
	"github.com/yourorg/fpl-cohorts/internal/observability"
	"github.com/yourorg/fpl-cohorts/internal/retry"
)

// DefaultBaseURL is the public upstream API root.
const DefaultBaseURL = "https://fantasy.premierleague.com/api"

var (
	// ErrUpstreamUnavailable matches every failed upstream call once retries
	// are exhausted.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrCircuitOpen is wrapped when a call was refused by the breaker.
	ErrCircuitOpen = circuitbreaker.ErrOpen
)

// UpstreamError describes a failed call for a single resource, e.g.
// "standings page 4" or "picks entry 1234".
type UpstreamError struct {
	Resource   string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream unavailable (%s): status %d: %v", e.Resource, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upstream unavailable (%s): %v", e.Resource, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrUpstreamUnavailable) hold for every UpstreamError.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamUnavailable
}

// Options configure a Client.
type Options struct {
	BaseURL   string
	UserAgent string

	// Timeout bounds every single HTTP attempt.
	Timeout time.Duration
	Retry   retry.Policy

	// RequestsPerSecond throttles outgoing calls; 0 disables throttling.
	RequestsPerSecond float64
	Burst             int

	// Breaker is optional.
	Breaker *circuitbreaker.CircuitBreaker
	Metrics *observability.Metrics
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		BaseURL:           DefaultBaseURL,
		UserAgent:         "fpl-cohorts/1.0",
		Timeout:           10 * time.Second,
		Retry:             retry.DefaultPolicy(),
		RequestsPerSecond: 10,
		Burst:             10,
	}
}

// Client issues throttled, retried calls to the upstream API. It does not cache.
type Client struct {
	baseURL   string
	userAgent string
	http      *retryablehttp.Client
	limiter   *rate.Limiter
	breaker   *circuitbreaker.CircuitBreaker
	metrics   *observability.Metrics
}

// NewClient creates a new upstream client.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	rc := opts.Retry.Apply(retryablehttp.NewClient())
	rc.HTTPClient.Timeout = opts.Timeout
	rc.Logger = leveledLogrus{entry: logrus.WithField("component", "upstream")}
	// Hand the last response back instead of a "giving up" error so the
	// status code can be reported.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		userAgent: opts.UserAgent,
		http:      rc,
		limiter:   limiter,
		breaker:   opts.Breaker,
		metrics:   opts.Metrics,
	}
}

// getJSON fetches path and decodes the JSON body into out.
func (c *Client) getJSON(ctx context.Context, endpoint, resource, path string, out any) error {
	if c.breaker != nil {
		if err := c.breaker.Allow(); err != nil {
			c.metrics.Upstream(endpoint, "circuit_open")
			c.metrics.BreakerOpen(true)
			return &UpstreamError{Resource: resource, Err: err}
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return &UpstreamError{Resource: resource, Err: err}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	logrus.WithField("resource", resource).Debugf("Fetching %s", path)
	resp, err := c.http.Do(req)
	if err != nil {
		c.recordFailure(endpoint, err)
		return &UpstreamError{Resource: resource, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(body)))
		if resp.StatusCode >= 500 {
			c.recordFailure(endpoint, statusErr)
		} else {
			c.metrics.Upstream(endpoint, fmt.Sprintf("%dxx", resp.StatusCode/100))
		}
		return &UpstreamError{Resource: resource, StatusCode: resp.StatusCode, Err: statusErr}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.metrics.Upstream(endpoint, "decode_error")
		return &UpstreamError{Resource: resource, StatusCode: resp.StatusCode, Err: fmt.Errorf("error decoding response: %w", err)}
	}

	if c.breaker != nil {
		c.breaker.RecordSuccess()
		c.metrics.BreakerOpen(c.breaker.GetState() == circuitbreaker.StateOpen)
	}
	c.metrics.Upstream(endpoint, "ok")
	return nil
}

func (c *Client) recordFailure(endpoint string, err error) {
	c.metrics.Upstream(endpoint, "error")
	if c.breaker == nil || errors.Is(err, context.Canceled) {
		return
	}
	c.breaker.RecordFailure(err)
	c.metrics.BreakerOpen(c.breaker.GetState() == circuitbreaker.StateOpen)
}

// leveledLogrus routes retryablehttp's logging through logrus.
type leveledLogrus struct {
	entry *logrus.Entry
}

func (l leveledLogrus) fields(kv []interface{}) *logrus.Entry {
	e := l.entry
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			e = e.WithField(k, kv[i+1])
		}
	}
	return e
}

func (l leveledLogrus) Error(msg string, kv ...interface{}) { l.fields(kv).Error(msg) }
func (l leveledLogrus) Info(msg string, kv ...interface{})  { l.fields(kv).Debug(msg) }
func (l leveledLogrus) Debug(msg string, kv ...interface{}) { l.fields(kv).Debug(msg) }
func (l leveledLogrus) Warn(msg string, kv ...interface{})  { l.fields(kv).Warn(msg) }
