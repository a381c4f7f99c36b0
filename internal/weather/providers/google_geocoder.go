package providers

import (
	"context"
	"errors"
	"sync"

	"github.com/kelvins/geocoder"

	"github.com/kisaansetu/kisaan-setu/internal/weather"
)

var errNoAddress = errors.New("no address for coordinates")

// GoogleReverseGeocoder names device coordinates using the Google Geocoding
// API. The underlying library keeps its key in a package variable, so calls
// are serialized.
type GoogleReverseGeocoder struct {
	mu      sync.Mutex
	apiKey  string
	reverse func(geocoder.Location) ([]geocoder.Address, error)
}

var _ weather.ReverseGeocoder = (*GoogleReverseGeocoder)(nil)

func NewGoogleReverseGeocoder(apiKey string) *GoogleReverseGeocoder {
	return &GoogleReverseGeocoder{
		apiKey:  apiKey,
		reverse: geocoder.GeocodingReverse,
	}
}

func (g *GoogleReverseGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (weather.Location, error) {
	if err := ctx.Err(); err != nil {
		return weather.Location{}, err
	}

	g.mu.Lock()
	geocoder.ApiKey = g.apiKey
	addrs, err := g.reverse(geocoder.Location{Latitude: lat, Longitude: lon})
	g.mu.Unlock()

	if err != nil {
		return weather.Location{}, err
	}

	for _, a := range addrs {
		if a.City == "" {
			continue
		}
		return weather.Location{
			Lat:     lat,
			Lon:     lon,
			Name:    a.City,
			State:   a.State,
			Country: a.Country,
		}, nil
	}
	return weather.Location{}, errNoAddress
}
