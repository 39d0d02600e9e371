// Package fourlists provides a client for the partner list-membership API
// that reports which suppression lists (DNC, bankruptcy, blacklist, ...)
// a phone number appears on.
package fourlists

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/lead-crm/internal/resilience"
)

// DefaultURL is the production membership-check endpoint.
const DefaultURL = "https://api.4lists.com/check"

// Client checks a phone number against the partner's lists.
type Client interface {
	// Check returns the names of the lists phone appears on. An empty slice
	// means no match. A 403 from the partner is treated as no match.
	Check(ctx context.Context, phone string) ([]string, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the endpoint (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.url = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout. A client supplied through
// WithHTTPClient is copied, never modified.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			hc := *c.http
			hc.Timeout = d
			c.http = &hc
		}
	}
}

// WithRateLimit caps outbound requests per second. Zero disables limiting.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// WithCircuitBreaker fails fast with resilience.ErrCircuitOpen while the
// partner is down.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *httpClient) {
		c.breaker = cb
	}
}

type httpClient struct {
	apiKey  string
	url     string
	http    *http.Client
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
}

// NewClient creates a list-membership client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey: apiKey,
		url:    DefaultURL,
		http:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type checkRequest struct {
	Phone string `json:"phone"`
}

func (c *httpClient) Check(ctx context.Context, phone string) ([]string, error) {
	if c.breaker == nil {
		return c.check(ctx, phone)
	}
	return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) ([]string, error) {
		return c.check(ctx, phone)
	})
}

func (c *httpClient) check(ctx context.Context, phone string) ([]string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fourlists: rate limit wait")
		}
	}

	payload, err := json.Marshal(checkRequest{Phone: phone})
	if err != nil {
		return nil, eris.Wrap(err, "fourlists: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "fourlists: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "fourlists: request failed"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, eris.Wrap(err, "fourlists: read response body")
	}

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return []string{}, nil
	case resp.StatusCode != http.StatusOK:
		statusErr := eris.Errorf("fourlists: unexpected status %d: %s", resp.StatusCode, string(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}

	var lists []string
	if err := json.Unmarshal(body, &lists); err != nil {
		return nil, eris.Wrap(err, "fourlists: decode response")
	}
	if lists == nil {
		lists = []string{}
	}
	return lists, nil
}
