package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostJSONSendsBearerAndBody(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BearerToken: "secret"})
	require.NoError(t, client.PostJSON(context.Background(), server.URL, map[string]any{"a": 1}))
	assert.Equal(t, float64(1), got["a"])
}

func TestPostJSONDoesNotRetryStatusErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{Backoff: time.Millisecond})
	err := client.PostJSON(context.Background(), server.URL, struct{}{})

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Equal(t, "nope", statusErr.Body)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestPostJSONRetriesTransportErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			// Drop the connection without a response.
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{Backoff: time.Millisecond})
	require.NoError(t, client.PostJSON(context.Background(), server.URL, struct{}{}))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestPostJSONGivesUpAfterMaxAttempts(t *testing.T) {
	client := NewClient(ClientConfig{Backoff: time.Millisecond, MaxAttempts: 2})
	// Nothing listens on this port.
	err := client.PostJSON(context.Background(), "http://127.0.0.1:1", struct{}{})
	require.Error(t, err)
	assert.True(t, retryable(err))
}

func TestReadAllWithLimit(t *testing.T) {
	data, truncated, err := ReadAllWithLimit(strings.NewReader("abcdef"), 4)
	require.NoError(t, err)
	assert.True(t, truncated)
	assert.Equal(t, "abcd", string(data))

	data, truncated, err = ReadAllWithLimit(strings.NewReader("ab"), 4)
	require.NoError(t, err)
	assert.False(t, truncated)
	assert.Equal(t, "ab", string(data))
}

func TestWriteErrorAndDecode(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusNotFound, "Master not found")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"detail":"Master not found"}`, rec.Body.String())

	var dst struct {
		N int `json:"n"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"n":"x"}`))
	ferr := DecodeJSON(req, &dst)
	require.NotNil(t, ferr)
	assert.Equal(t, []string{"body", "n"}, ferr.Loc)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	ferr = DecodeJSON(req, &dst)
	require.NotNil(t, ferr)
	assert.Equal(t, "body is required", ferr.Msg)
}
