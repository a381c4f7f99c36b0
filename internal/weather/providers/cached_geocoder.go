package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kisaansetu/kisaan-setu/internal/cache"
	"github.com/kisaansetu/kisaan-setu/internal/logger"
	"github.com/kisaansetu/kisaan-setu/internal/weather"
)

// CachedGeocoder memoizes geocoding results. Cache failures are logged and
// fall through to the wrapped geocoder.
type CachedGeocoder struct {
	next  weather.Geocoder
	cache cache.Cache
	ttl   time.Duration
}

var _ weather.Geocoder = (*CachedGeocoder)(nil)

func NewCachedGeocoder(next weather.Geocoder, c cache.Cache, ttl time.Duration) *CachedGeocoder {
	return &CachedGeocoder{next: next, cache: c, ttl: ttl}
}

func (g *CachedGeocoder) Geocode(ctx context.Context, query string, limit int) ([]weather.Location, error) {
	log := logger.GetLogger()
	key := fmt.Sprintf("%d:%s", limit, strings.ToLower(strings.TrimSpace(query)))

	if raw, ok, err := g.cache.Get(ctx, key); err != nil {
		log.Warnw("Geocode cache read failed", "key", key, "error", err)
	} else if ok {
		var locs []weather.Location
		if err := json.Unmarshal(raw, &locs); err == nil {
			return locs, nil
		}
		log.Warnw("Discarding unreadable geocode cache entry", "key", key)
	}

	locs, err := g.next.Geocode(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(locs); err == nil {
		if err := g.cache.Set(ctx, key, raw, g.ttl); err != nil {
			log.Warnw("Geocode cache write failed", "key", key, "error", err)
		}
	}
	return locs, nil
}
