package climate

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kisaansetu/kisaan-setu/internal/weather"
)

// Registry holds one Dashboard per browser session.
type Registry struct {
	mu         sync.Mutex
	dashboards map[string]*Dashboard

	fetcher  ReportFetcher
	geocoder weather.Geocoder
	opts     []Option
	idleTTL  time.Duration
	now      func() time.Time
}

func NewRegistry(fetcher ReportFetcher, geocoder weather.Geocoder, idleTTL time.Duration, opts ...Option) *Registry {
	return &Registry{
		dashboards: make(map[string]*Dashboard),
		fetcher:    fetcher,
		geocoder:   geocoder,
		opts:       opts,
		idleTTL:    idleTTL,
		now:        time.Now,
	}
}

// GetOrCreate returns the dashboard for id, creating one under a fresh id
// when id is empty or unknown. The returned id is the one to hand back to
// the client.
func (r *Registry) GetOrCreate(id string) (string, *Dashboard) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.dashboards[id]; ok && id != "" {
		return id, d
	}

	id = uuid.NewString()
	d := NewDashboard(r.fetcher, r.geocoder, r.opts...)
	r.dashboards[id] = d
	return id, d
}

// Get returns an existing dashboard.
func (r *Registry) Get(id string) (*Dashboard, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.dashboards[id]
	return d, ok
}

// Len reports the number of live dashboards.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.dashboards)
}

// Sweep closes and drops dashboards idle for longer than the TTL. It returns
// how many were removed.
func (r *Registry) Sweep() int {
	if r.idleTTL <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, d := range r.dashboards {
		if d.LastActive().Before(cutoff) {
			d.Close()
			delete(r.dashboards, id)
			removed++
		}
	}
	return removed
}
