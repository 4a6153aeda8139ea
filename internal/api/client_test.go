package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/api"
	"storefront/internal/apperr"
)

type totalPrice struct {
	TotalPrice float64 `json:"totalPrice"`
}

func TestClient(t *testing.T) {
	t.Run("decodes enveloped payloads", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/api/fruits/calculate-total-price", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			var in map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			assert.Equal(t, float64(1), in["fruit_id"])

			w.Write([]byte(`{"success":true,"data":{"totalPrice":75.5}}`))
		}))
		defer server.Close()

		client := api.NewClient(server.URL+"/", http.DefaultClient)

		var out totalPrice
		err := client.PostJSON(context.Background(), "/api/fruits/calculate-total-price",
			map[string]any{"fruit_id": 1, "weight": 1.5}, &out)

		assert.NoError(t, err)
		assert.Equal(t, 75.5, out.TotalPrice)
	})

	t.Run("decodes bare payloads", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"totalPrice":10}`))
		}))
		defer server.Close()

		var out totalPrice
		err := api.NewClient(server.URL, http.DefaultClient).GetJSON(context.Background(), "/x", &out)

		assert.NoError(t, err)
		assert.Equal(t, float64(10), out.TotalPrice)
	})

	t.Run("surfaces the server message", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"message":"insufficient stock"}`))
		}))
		defer server.Close()

		err := api.NewClient(server.URL, http.DefaultClient).GetJSON(context.Background(), "/x", nil)

		var remote *apperr.RemoteError
		require.ErrorAs(t, err, &remote)
		assert.Equal(t, http.StatusBadRequest, remote.Status)
		assert.Equal(t, "insufficient stock", remote.Message)
		assert.False(t, errors.Is(err, apperr.ErrRemoteUnavailable))
	})

	t.Run("server errors are unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("server error"))
		}))
		defer server.Close()

		err := api.NewClient(server.URL, http.DefaultClient).GetJSON(context.Background(), "/x", nil)
		assert.ErrorIs(t, err, apperr.ErrRemoteUnavailable)
	})

	t.Run("malformed bodies are unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("invalid json {"))
		}))
		defer server.Close()

		var out totalPrice
		err := api.NewClient(server.URL, http.DefaultClient).GetJSON(context.Background(), "/x", &out)
		assert.ErrorIs(t, err, apperr.ErrRemoteUnavailable)
		assert.Contains(t, err.Error(), "failed to decode body")
	})

	t.Run("transport failures are unavailable", func(t *testing.T) {
		client := api.NewClient("http://127.0.0.1:1", &http.Client{Timeout: 100 * time.Millisecond})

		err := client.GetJSON(context.Background(), "/x", nil)
		assert.ErrorIs(t, err, apperr.ErrRemoteUnavailable)
	})

	t.Run("session expiry passes through untouched", func(t *testing.T) {
		client := api.NewClient("http://unused", doerFunc(func(*http.Request) (*http.Response, error) {
			return nil, apperr.ErrSessionExpired
		}))

		err := client.GetJSON(context.Background(), "/x", nil)
		assert.ErrorIs(t, err, apperr.ErrSessionExpired)
		assert.NotErrorIs(t, err, apperr.ErrRemoteUnavailable)
	})
}

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(r *http.Request) (*http.Response, error) { return f(r) }
