package store

import (
	"errors"
	"sync"
	"time"

	"github.com/kisaansetu/kisaan-setu/internal/weather"
)

var (
	// ErrNotFound is returned when no data is available for a given location.
	ErrNotFound = errors.New("no weather data for location")
)

// ReportHistory holds a time-ordered list of climate reports for a location.
type ReportHistory struct {
	Reports []weather.ClimateReport
}

// MemoryStore is a concurrency-safe in-memory implementation of a report store.
type MemoryStore struct {
	mu sync.RWMutex

	// key: location key, value: history
	data map[string]*ReportHistory

	maxHistory int           // max number of reports per location
	maxAge     time.Duration // optional max age for reports
	now        func() time.Time
}

var _ weather.Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxHistory is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string]*ReportHistory),
		maxHistory: maxHistory,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// SaveReport appends a new report for a location and enforces retention.
func (s *MemoryStore) SaveReport(loc weather.Location, report weather.ClimateReport) {
	key := loc.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.data[key]
	if !ok {
		history = &ReportHistory{}
		s.data[key] = history
	}

	history.Reports = append(history.Reports, report)

	// Enforce retention by count.
	if s.maxHistory > 0 && len(history.Reports) > s.maxHistory {
		over := len(history.Reports) - s.maxHistory
		history.Reports = history.Reports[over:]
	}

	// Enforce retention by age.
	if s.maxAge > 0 {
		cutoff := s.now().Add(-s.maxAge)
		i := 0
		for ; i < len(history.Reports); i++ {
			if !history.Reports[i].FetchedAt.Before(cutoff) {
				break
			}
		}
		history.Reports = history.Reports[i:]
	}
}

// GetLatest returns the most recent report for a location.
func (s *MemoryStore) GetLatest(loc weather.Location) (weather.ClimateReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[loc.Key()]
	if !ok || len(history.Reports) == 0 {
		return weather.ClimateReport{}, ErrNotFound
	}
	return history.Reports[len(history.Reports)-1], nil
}

// GetRange returns all reports for a location fetched between from and to (inclusive).
func (s *MemoryStore) GetRange(loc weather.Location, from, to time.Time) ([]weather.ClimateReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[loc.Key()]
	if !ok || len(history.Reports) == 0 {
		return nil, ErrNotFound
	}

	var result []weather.ClimateReport
	for _, r := range history.Reports {
		if !r.FetchedAt.Before(from) && !r.FetchedAt.After(to) {
			result = append(result, r)
		}
	}

	if len(result) == 0 {
		return nil, ErrNotFound
	}
	return result, nil
}
