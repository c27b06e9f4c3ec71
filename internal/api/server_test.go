package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garcomlabs/garcom/internal/debounce"
	"github.com/garcomlabs/garcom/internal/log"
)

type echoRunner struct{}

func (echoRunner) Run(_ context.Context, _ debounce.Key, compiledTurn string) (string, error) {
	return "echo: " + compiledTurn, nil
}

func newTestServer(t *testing.T, quiet time.Duration) (*Server, *debounce.Queue, *debounce.Dispatcher) {
	t.Helper()

	q := debounce.NewQueue(debounce.NewMemoryStore(), echoRunner{}, log.NewNop(),
		debounce.WithQuietWindow(quiet))
	d := debounce.NewDispatcher(q, log.NewNop())
	t.Cleanup(d.Close)

	srv, err := NewServer(ServerConfig{
		Logger:     log.NewNop(),
		Queue:      q,
		Dispatcher: d,
		RateBurst:  100,
	})
	require.NoError(t, err)
	return srv, q, d
}

func postMessage(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/messages", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestWebhookAcceptsMessage(t *testing.T) {
	srv, _, _ := newTestServer(t, time.Hour)

	rec := postMessage(t, srv, `{
		"restaurant_id": "11111111-1111-1111-1111-111111111111",
		"customer_phone": "+351912345678",
		"message": "quero uma pizza margherita"
	}`)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		QueueID       string `json:"queue_id"`
		ScheduledInMS int64  `json:"scheduled_in_ms"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	_, err := uuid.Parse(resp.QueueID)
	assert.NoError(t, err)
	assert.Equal(t, time.Hour.Milliseconds(), resp.ScheduledInMS)
}

func TestWebhookCoalescesBurstIntoOneEntry(t *testing.T) {
	srv, _, _ := newTestServer(t, time.Hour)

	first := postMessage(t, srv, `{
		"restaurant_id": "11111111-1111-1111-1111-111111111111",
		"customer_phone": "+351912345678",
		"message": "quero uma pizza"
	}`)
	second := postMessage(t, srv, `{
		"restaurant_id": "11111111-1111-1111-1111-111111111111",
		"customer_phone": "+351912345678",
		"message": "margherita"
	}`)

	var a, b struct {
		QueueID string `json:"queue_id"`
	}
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &b))
	assert.Equal(t, a.QueueID, b.QueueID)
}

func TestWebhookValidation(t *testing.T) {
	srv, _, _ := newTestServer(t, time.Hour)

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{
			name:     "malformed json",
			body:     `{not json`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "bad restaurant id",
			body:     `{"restaurant_id": "nope", "customer_phone": "+351912345678", "message": "ola"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "missing phone",
			body:     `{"restaurant_id": "11111111-1111-1111-1111-111111111111", "customer_phone": "  ", "message": "ola"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "empty message",
			body:     `{"restaurant_id": "11111111-1111-1111-1111-111111111111", "customer_phone": "+351912345678", "message": ""}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown field",
			body:     `{"restaurant_id": "11111111-1111-1111-1111-111111111111", "customer_phone": "+351912345678", "message": "ola", "extra": 1}`,
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postMessage(t, srv, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestWebhookStatusReflectsProcessing(t *testing.T) {
	srv, q, _ := newTestServer(t, 10*time.Millisecond)

	rec := postMessage(t, srv, `{
		"restaurant_id": "11111111-1111-1111-1111-111111111111",
		"customer_phone": "+351912345678",
		"message": "boa noite"
	}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted struct {
		QueueID string `json:"queue_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	id := uuid.MustParse(accepted.QueueID)

	// Wait for the dispatcher to process the burst.
	deadline := time.Now().Add(2 * time.Second)
	for {
		entry, err := q.Store().Get(context.Background(), id)
		require.NoError(t, err)
		if entry.Status == debounce.StatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("entry never completed, status %s", entry.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/webhook/messages/"+accepted.QueueID, nil)
	statusRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(statusRec, req)
	require.Equal(t, http.StatusOK, statusRec.Code)

	var status struct {
		Status string `json:"status"`
		Result string `json:"result"`
	}
	require.NoError(t, json.Unmarshal(statusRec.Body.Bytes(), &status))
	assert.Equal(t, "completed", status.Status)
	assert.Equal(t, "echo: boa noite", status.Result)
}

func TestWebhookStatusUnknownEntry(t *testing.T) {
	srv, _, _ := newTestServer(t, time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/webhook/messages/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	srv, _, _ := newTestServer(t, time.Hour)

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestRateLimitKicksIn(t *testing.T) {
	q := debounce.NewQueue(debounce.NewMemoryStore(), echoRunner{}, log.NewNop(),
		debounce.WithQuietWindow(time.Hour))
	d := debounce.NewDispatcher(q, log.NewNop())
	t.Cleanup(d.Close)

	srv, err := NewServer(ServerConfig{
		Logger:     log.NewNop(),
		Queue:      q,
		Dispatcher: d,
		RateBurst:  2,
	})
	require.NoError(t, err)

	var lastCode int
	for range 4 {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "203.0.113.7:1234"
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		lastCode = rec.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, lastCode)
}
