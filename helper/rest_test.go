package helper

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRestClientPost(t *testing.T) {
	t.Run("Posts JSON with headers and query", func(t *testing.T) {
		var gotBody map[string]interface{}
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/embeddings", r.URL.Path)
			assert.Equal(t, "2024-02-01", r.URL.Query().Get("api-version"))
			assert.Equal(t, "secret", r.Header.Get("api-key"))
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
			_, _ = w.Write([]byte(`{"ok":true}`))
		}))
		defer server.Close()

		client := NewRestClient(server.URL+"/", map[string]string{"api-key": "secret"}, url.Values{"api-version": {"2024-02-01"}}, nil)
		body, err := client.Post(context.Background(), "/embeddings", map[string]string{"model": "m"})

		require.NoError(t, err)
		assert.JSONEq(t, `{"ok":true}`, string(body))
		assert.Equal(t, "m", gotBody["model"])
	})

	t.Run("Non 2xx responses return a StatusError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"slow down"}`))
		}))
		defer server.Close()

		client := NewRestClient(server.URL, nil, nil, nil)
		_, err := client.Post(context.Background(), "chat/completions", struct{}{})

		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
		assert.Equal(t, 2*time.Second, statusErr.RetryAfter)
		assert.True(t, statusErr.Retriable())
		assert.Contains(t, err.Error(), "slow down")
	})

	t.Run("Rate limit spaces out requests", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		}))
		defer server.Close()

		client := NewRestClient(server.URL, nil, nil, nil).WithRateLimit(20, 1)
		start := time.Now()
		for i := 0; i < 3; i++ {
			_, err := client.Post(context.Background(), "x", struct{}{})
			require.NoError(t, err)
		}

		assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond, "Three requests at 20/s with burst 1 should take about 100ms")
	})

	t.Run("Rate limit respects context", func(t *testing.T) {
		client := NewRestClient("http://127.0.0.1:1", nil, nil, nil).WithRateLimit(0.001, 1)
		_, _ = client.Post(context.Background(), "x", struct{}{})

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err := client.Post(ctx, "x", struct{}{})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "rate limit")
	})
}

func TestClassifyHTTPError(t *testing.T) {
	t.Run("Client errors become permanent", func(t *testing.T) {
		err := ClassifyHTTPError(&StatusError{StatusCode: http.StatusBadRequest})

		var permanent *backoff.PermanentError
		assert.ErrorAs(t, err, &permanent)
	})

	t.Run("Server errors stay retriable", func(t *testing.T) {
		err := ClassifyHTTPError(&StatusError{StatusCode: http.StatusBadGateway})

		var permanent *backoff.PermanentError
		assert.False(t, errors.As(err, &permanent))
	})

	t.Run("Retry-After is carried as hint", func(t *testing.T) {
		err := ClassifyHTTPError(&StatusError{StatusCode: http.StatusTooManyRequests, RetryAfter: time.Second})

		var retryAfter *RetryAfterError
		require.ErrorAs(t, err, &retryAfter)
		assert.Equal(t, time.Second, retryAfter.After)
	})

	t.Run("Transport errors stay retriable", func(t *testing.T) {
		cause := errors.New("connection reset")

		assert.Equal(t, cause, ClassifyHTTPError(cause))
		assert.NoError(t, ClassifyHTTPError(nil))
	})
}
