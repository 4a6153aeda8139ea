package address_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/address"
	"storefront/internal/apperr"
)

func TestGoogleGeocoder(t *testing.T) {
	ctx := context.Background()

	t.Run("top result is returned", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, silomQuery, r.URL.Query().Get("address"))
			assert.Equal(t, "secret", r.URL.Query().Get("key"))
			assert.Equal(t, "th", r.URL.Query().Get("language"))

			w.Write([]byte(`{"status":"OK","results":[
				{"geometry":{"location":{"lat":13.7286,"lng":100.534}}},
				{"geometry":{"location":{"lat":1,"lng":1}}}
			]}`))
		}))
		defer server.Close()

		g := address.NewGoogleGeocoder(server.URL, "secret", "th", server.Client(), nil)
		loc, err := g.Geocode(ctx, silomQuery)
		require.NoError(t, err)
		assert.Equal(t, address.Coordinates{Lat: 13.7286, Lng: 100.534}, loc)
	})

	t.Run("zero results", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":"ZERO_RESULTS","results":[]}`))
		}))
		defer server.Close()

		g := address.NewGoogleGeocoder(server.URL, "secret", "th", server.Client(), nil)
		_, err := g.Geocode(ctx, "nowhere")
		assert.ErrorIs(t, err, address.ErrNoResult)
	})

	t.Run("server failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		g := address.NewGoogleGeocoder(server.URL, "secret", "th", server.Client(), nil)
		_, err := g.Geocode(ctx, silomQuery)
		assert.ErrorIs(t, err, apperr.ErrRemoteUnavailable)
	})

	t.Run("garbage body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>`))
		}))
		defer server.Close()

		g := address.NewGoogleGeocoder(server.URL, "secret", "th", server.Client(), nil)
		_, err := g.Geocode(ctx, silomQuery)
		assert.ErrorIs(t, err, apperr.ErrRemoteUnavailable)
	})
}
