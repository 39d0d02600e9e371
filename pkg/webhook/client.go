// Package webhook delivers CRM events to the workflow endpoint that drives
// WhatsApp, SMS and dialer automation.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-crm/internal/metrics"
	"github.com/sells-group/lead-crm/internal/resilience"
)

// Event types.
const (
	EventLeadCreated    = "lead.created"
	EventBorrowerSynced = "borrower.synced"
)

// SignatureHeader carries "sha256=<hex hmac of body>".
const SignatureHeader = "X-LeadCRM-Signature"

// Publisher sends an event. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, eventType string, data any) error
}

// Event is the JSON envelope posted to the endpoint.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetry overrides the delivery retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	url    string
	secret []byte
	http   *http.Client
	retry  resilience.RetryConfig
	now    func() time.Time
}

// NewClient returns a Publisher posting to url. An empty url yields a
// publisher that drops every event.
func NewClient(url, secret string, opts ...Option) Publisher {
	if url == "" {
		return Nop{}
	}
	c := &httpClient{
		url:    url,
		secret: []byte(secret),
		http:   &http.Client{Timeout: 10 * time.Second},
		retry:  resilience.DefaultRetryConfig(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger("webhook", "publish")
	}
	return c
}

func (c *httpClient) Publish(ctx context.Context, eventType string, data any) error {
	ev := Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		OccurredAt: c.now().UTC(),
		Data:       data,
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return eris.Wrap(err, "webhook: marshal event")
	}

	err = resilience.Do(ctx, c.retry, func(ctx context.Context) error {
		return c.post(ctx, ev.ID, body)
	})

	outcome := "delivered"
	if err != nil {
		outcome = "failed"
	}
	metrics.WebhookDeliveries.WithLabelValues(eventType, outcome).Inc()
	return eris.Wrapf(err, "webhook: publish %s", eventType)
}

func (c *httpClient) post(ctx context.Context, id string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "webhook: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-LeadCRM-Event-ID", id)
	if len(c.secret) > 0 {
		req.Header.Set(SignatureHeader, Sign(c.secret, body))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "webhook: request failed"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	statusErr := eris.Errorf("webhook: unexpected status %d: %s", resp.StatusCode, string(msg))
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return resilience.NewTransientError(statusErr, resp.StatusCode)
	}
	return statusErr
}

// Sign returns the signature header value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature header value in constant time.
func Verify(secret, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }
