package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(url string) *Client {
	cfg := DefaultClientConfig(url)
	cfg.RetryAttempts = 3
	cfg.RetryDelay = time.Millisecond
	return NewClient(cfg)
}

func TestClient_Notify(t *testing.T) {
	var got notificationPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := testClient(server.URL)
	err := client.Notify(context.Background(), "user-1", "task_completed", "✅ タスク完了!+20 EXP")
	require.NoError(t, err)

	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "task_completed", got.Kind)
	assert.NotEmpty(t, got.SentAt)
}

func TestClient_Notify_AuthHeader(t *testing.T) {
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := DefaultClientConfig(server.URL)
	cfg.AuthToken = "secret"
	client := NewClient(cfg)

	require.NoError(t, client.Notify(context.Background(), "user-1", "test", "msg"))
	assert.Equal(t, "Bearer secret", auth)
}

func TestClient_Notify_RetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := testClient(server.URL)
	require.NoError(t, client.Notify(context.Background(), "user-1", "test", "msg"))
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_Notify_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := testClient(server.URL)
	err := client.Notify(context.Background(), "user-1", "test", "msg")

	assert.ErrorIs(t, err, ErrDeliveryFailed)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_Notify_DisabledWithoutURL(t *testing.T) {
	client := NewClient(ClientConfig{})
	err := client.Notify(context.Background(), "user-1", "test", "msg")
	assert.ErrorIs(t, err, ErrNotifierDisabled)
}
