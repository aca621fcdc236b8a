package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/TorusGroup/reunia/internal/config"
)

// requestTimeout is the hard per-request deadline shared by every adapter.
const requestTimeout = 30 * time.Second

const userAgent = "reunia-ingest/1.0 (+https://github.com/TorusGroup/reunia)"

// ErrRateLimited is returned when a source answers 429. The orchestrator
// applies one long cooldown instead of the normal retry budget.
var ErrRateLimited = errors.New("source rate limit hit")

// Client is the resilient fetch helper shared by every adapter: one resty
// client with the hard 30s timeout, exponential-backoff retries on transient
// failures, and a fixed inter-request sleep (the source rate limit) that is
// separate from the retry backoff.
type Client struct {
	http      *resty.Client
	rateLimit time.Duration
	logger    *zap.Logger

	mu          sync.Mutex
	lastRequest time.Time
}

// NewClient builds a fetch helper for one source.
func NewClient(baseURL string, rateLimit time.Duration, retry config.SourcesConfig, logger *zap.Logger) *Client {
	attempts := retry.RetryAttempts
	if attempts < 1 {
		attempts = 3
	}
	initialDelay := retry.RetryInitialDelay
	if initialDelay <= 0 {
		initialDelay = time.Second
	}

	// resty counts retries on top of the first attempt; backoff doubles each
	// attempt up to initialDelay * 2^(attempts-1).
	maxWait := initialDelay << uint(attempts-1)

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(requestTimeout).
		SetRetryCount(attempts-1).
		SetRetryWaitTime(initialDelay).
		SetRetryMaxWaitTime(maxWait).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			// 429 is handled by the caller with a long cooldown, not retried here.
			return r.StatusCode() >= 500
		})

	return &Client{
		http:      httpClient,
		rateLimit: rateLimit,
		logger:    logger,
	}
}

// SetAccept overrides the Accept header (RSS/CSV sources).
func (c *Client) SetAccept(mediaType string) *Client {
	c.http.SetHeader("Accept", mediaType)
	return c
}

// throttle enforces the fixed inter-request sleep for this source.
func (c *Client) throttle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rateLimit > 0 && !c.lastRequest.IsZero() {
		if wait := c.rateLimit - time.Since(c.lastRequest); wait > 0 {
			time.Sleep(wait)
		}
	}
	c.lastRequest = time.Now()
}

func (c *Client) finish(resp *resty.Response, err error, path string) (*resty.Response, error) {
	if err != nil {
		return nil, fmt.Errorf("request %s failed: %w", path, err)
	}
	if resp.StatusCode() == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.IsError() {
		return nil, fmt.Errorf("request %s returned status %d", path, resp.StatusCode())
	}
	return resp, nil
}

// GetJSON issues a GET and unmarshals the JSON body into result.
func (c *Client) GetJSON(ctx context.Context, path string, query map[string]string, result any) error {
	c.throttle()
	req := c.http.R().SetContext(ctx)
	if query != nil {
		req.SetQueryParams(query)
	}
	resp, err := req.Get(path)
	if resp, err = c.finish(resp, err, path); err != nil {
		return err
	}
	return c.decodeJSON(resp, path, result)
}

// PostJSON issues a POST with a JSON body and unmarshals the response.
func (c *Client) PostJSON(ctx context.Context, path string, body, result any) error {
	c.throttle()
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(path)
	if resp, err = c.finish(resp, err, path); err != nil {
		return err
	}
	return c.decodeJSON(resp, path, result)
}

// decodeJSON parses the body ourselves instead of relying on resty's
// content-type sniffing: some sources serve JSON as text/plain, and a body
// that does not parse must surface as an error, not a zero-valued result.
func (c *Client) decodeJSON(resp *resty.Response, path string, result any) error {
	if err := json.Unmarshal(resp.Body(), result); err != nil {
		c.logger.Warn("response body is not valid JSON",
			zap.String("path", path),
			zap.String("content_type", resp.Header().Get("Content-Type")),
			zap.Error(err))
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// GetBytes issues a GET and returns the raw body (RSS/CSV sources).
func (c *Client) GetBytes(ctx context.Context, path string, query map[string]string) ([]byte, error) {
	c.throttle()
	req := c.http.R().SetContext(ctx)
	if query != nil {
		req.SetQueryParams(query)
	}
	resp, err := req.Get(path)
	if resp, err = c.finish(resp, err, path); err != nil {
		return nil, err
	}
	return resp.Body(), nil
}
