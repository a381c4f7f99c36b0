package weather

import "time"

const (
	// ForecastStep is the spacing of the provider's forecast timeline.
	ForecastStep = 3 * time.Hour
	// EntriesPerDay is how many timeline steps make one day.
	EntriesPerDay = 8
	// SuggestionLimit caps geocoding results.
	SuggestionLimit = 5
)

// Next24Hours returns the timeline entries at or before fetchedAt+24h, in
// their original order.
func Next24Hours(timeline []ForecastEntry, fetchedAt time.Time) []ForecastEntry {
	cutoff := fetchedAt.Add(24 * time.Hour)
	out := make([]ForecastEntry, 0, EntriesPerDay+1)
	for _, e := range timeline {
		if !e.Time.After(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// PeriodicForecast picks every EntriesPerDay-th entry (indices 0, 8, 16, ...),
// one reading per day at a fixed hour.
func PeriodicForecast(timeline []ForecastEntry) []ForecastEntry {
	out := make([]ForecastEntry, 0, len(timeline)/EntriesPerDay+1)
	for i := 0; i < len(timeline); i += EntriesPerDay {
		out = append(out, timeline[i])
	}
	return out
}

// AirQualityFromReadings takes the index from the first reading. Nil means
// the provider had no usable value.
func AirQualityFromReadings(readings []PollutionReading) *int {
	if len(readings) == 0 || readings[0].AQI == 0 {
		return nil
	}
	aqi := readings[0].AQI
	return &aqi
}
