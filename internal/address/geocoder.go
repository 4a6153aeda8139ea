package address

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"storefront/internal/api"
	"storefront/internal/apperr"
)

var ErrNoResult = errors.New("geocoder found no match")

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DefaultCenter is where the map rests before anything is located.
var DefaultCenter = Coordinates{Lat: 13.7563, Lng: 100.5018}

// Geocoder turns a free text query into its best matching location.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (Coordinates, error)
}

// GoogleGeocoder speaks the Google geocoding JSON contract.
type GoogleGeocoder struct {
	endpoint string
	key      string
	language string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker[Coordinates]
}

func NewGoogleGeocoder(endpoint, key, language string, client *http.Client, logger *zap.Logger) *GoogleGeocoder {
	if client == nil {
		client = http.DefaultClient
	}
	return &GoogleGeocoder{
		endpoint: endpoint,
		key:      key,
		language: language,
		client:   client,
		breaker:  api.NewBreaker[Coordinates]("geocode", logger),
	}
}

type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Geometry struct {
			Location Coordinates `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

func (g *GoogleGeocoder) Geocode(ctx context.Context, query string) (Coordinates, error) {
	return g.breaker.Execute(func() (Coordinates, error) {
		params := url.Values{}
		params.Set("address", query)
		params.Set("key", g.key)
		if g.language != "" {
			params.Set("language", g.language)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+params.Encode(), nil)
		if err != nil {
			return Coordinates{}, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := g.client.Do(req)
		if err != nil {
			return Coordinates{}, apperr.Unavailable("geocode", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return Coordinates{}, &apperr.RemoteError{Status: resp.StatusCode}
		}

		var body geocodeResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return Coordinates{}, apperr.Unavailable("geocode", err)
		}
		if body.Status != "OK" || len(body.Results) == 0 {
			return Coordinates{}, fmt.Errorf("%w: status %s", ErrNoResult, body.Status)
		}

		return body.Results[0].Geometry.Location, nil
	})
}
