package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-crm/internal/resilience"
)

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
}

func TestPublish_SignsAndDelivers(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.True(t, Verify([]byte("s3cret"), body, r.Header.Get(SignatureHeader)))
		assert.NotEmpty(t, r.Header.Get("X-LeadCRM-Event-ID"))
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	p := NewClient(srv.URL, "s3cret", WithRetry(fastRetry()))
	err := p.Publish(context.Background(), EventLeadCreated, map[string]string{"id": "lead-1"})
	require.NoError(t, err)

	assert.Equal(t, EventLeadCreated, got.Type)
	assert.NotEmpty(t, got.ID)
	assert.False(t, got.OccurredAt.IsZero())
	assert.Equal(t, map[string]any{"id": "lead-1"}, got.Data)
}

func TestPublish_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "", WithRetry(fastRetry())).Publish(context.Background(), EventBorrowerSynced, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPublish_PermanentFailureNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("bad signature"))
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "x", WithRetry(fastRetry())).Publish(context.Background(), EventLeadCreated, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 401: bad signature")
	assert.Equal(t, int32(1), calls.Load())
}

func TestPublish_NoSecretNoSignature(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get(SignatureHeader))
	}))
	defer srv.Close()

	require.NoError(t, NewClient(srv.URL, "").Publish(context.Background(), EventLeadCreated, nil))
}

func TestNewClient_EmptyURLIsNop(t *testing.T) {
	p := NewClient("", "secret")
	assert.IsType(t, Nop{}, p)
	assert.NoError(t, p.Publish(context.Background(), EventLeadCreated, "anything"))
}

func TestSignVerify(t *testing.T) {
	body := []byte(`{"type":"lead.created"}`)
	sig := Sign([]byte("k"), body)
	assert.Regexp(t, `^sha256=[0-9a-f]{64}$`, sig)
	assert.True(t, Verify([]byte("k"), body, sig))
	assert.False(t, Verify([]byte("other"), body, sig))
	assert.False(t, Verify([]byte("k"), []byte("tampered"), sig))
}
