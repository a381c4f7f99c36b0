package climate

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrGeolocationUnsupported means the client has no geolocation capability.
	ErrGeolocationUnsupported = errors.New("geolocation not supported")
	// ErrPositionUnavailable means a position was requested but not obtained.
	ErrPositionUnavailable = errors.New("position unavailable")
)

// Position is a one-shot device fix.
type Position struct {
	Lat float64
	Lon float64
}

// Geolocator is the device's location capability.
type Geolocator interface {
	Supported() bool
	CurrentPosition(ctx context.Context) (Position, error)
}

// ReportedPosition is the outcome of a browser geolocation request, relayed
// by the client. A missing SupportedFlag means the browser has the capability.
type ReportedPosition struct {
	SupportedFlag *bool    `json:"supported"`
	Lat           *float64 `json:"lat"`
	Lon           *float64 `json:"lon"`
	Err           string   `json:"error"`
}

var _ Geolocator = ReportedPosition{}

func (p ReportedPosition) Supported() bool {
	return p.SupportedFlag == nil || *p.SupportedFlag
}

func (p ReportedPosition) CurrentPosition(ctx context.Context) (Position, error) {
	if err := ctx.Err(); err != nil {
		return Position{}, err
	}
	if p.Err != "" {
		return Position{}, fmt.Errorf("%w: %s", ErrPositionUnavailable, p.Err)
	}
	if p.Lat == nil || p.Lon == nil {
		return Position{}, ErrPositionUnavailable
	}
	return Position{Lat: *p.Lat, Lon: *p.Lon}, nil
}
