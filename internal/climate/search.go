package climate

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/kisaansetu/kisaan-setu/internal/debounce"
	"github.com/kisaansetu/kisaan-setu/internal/weather"
)

// DefaultSearchDebounce is the quiet period before a suggestion lookup runs.
const DefaultSearchDebounce = 500 * time.Millisecond

const searchTimeout = 10 * time.Second

// searchController owns the debounce timer and the lookup token for the
// suggestion box.
type searchController struct {
	geocoder  weather.Geocoder
	debouncer *debounce.Debouncer
	seq       atomic.Uint64
}

func newSearchController(g weather.Geocoder, delay time.Duration) *searchController {
	return &searchController{
		geocoder:  g,
		debouncer: debounce.New(delay),
	}
}

// schedule arms the debouncer. lookup receives the token issued for this
// query.
func (s *searchController) schedule(lookup func(token uint64)) {
	token := s.seq.Add(1)
	s.debouncer.Trigger(func() { lookup(token) })
}

// cancel drops a pending lookup and invalidates one already in flight.
func (s *searchController) cancel() {
	s.debouncer.Cancel()
	s.seq.Add(1)
}

func (s *searchController) current(token uint64) bool {
	return s.seq.Load() == token
}

func (s *searchController) lookup(query string) ([]weather.Location, error) {
	ctx, cancel := context.WithTimeout(context.Background(), searchTimeout)
	defer cancel()
	return s.geocoder.Geocode(ctx, query, weather.SuggestionLimit)
}
