package weather

import (
	"fmt"
	"strings"
	"time"
)

// Condition represents a normalized high-level weather condition.
type Condition string

const (
	ConditionUnknown Condition = "unknown"
	ConditionClear   Condition = "clear"
	ConditionCloudy  Condition = "cloudy"
	ConditionRain    Condition = "rain"
	ConditionSnow    Condition = "snow"
	ConditionStorm   Condition = "storm"
	ConditionMist    Condition = "mist"
)

// Location is a geocoded place or a raw device position.
type Location struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Name    string  `json:"name,omitempty"`
	State   string  `json:"state,omitempty"`
	Country string  `json:"country,omitempty"`
}

// Key returns a canonical string key for indexing this location in stores.
// Coordinates are rounded to roughly 10m so repeated lookups share a key.
func (l Location) Key() string {
	return fmt.Sprintf("%.4f:%.4f", l.Lat, l.Lon)
}

// DisplayName renders "Name, State, Country", skipping empty parts.
func (l Location) DisplayName() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{l.Name, l.State, l.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%.4f, %.4f", l.Lat, l.Lon)
	}
	return strings.Join(parts, ", ")
}

// WeatherSnapshot is a point-in-time reading of current conditions.
type WeatherSnapshot struct {
	ObservedAt     time.Time `json:"observedAt"` // always UTC
	Temperature    float64   `json:"temperatureC"`
	FeelsLike      float64   `json:"feelsLikeC"`
	Humidity       float64   `json:"humidityPercent"`
	Pressure       float64   `json:"pressureHpa"`
	WindSpeed      float64   `json:"windSpeedMs"`
	Sunrise        time.Time `json:"sunrise"`
	Sunset         time.Time `json:"sunset"`
	Description    string    `json:"description"`
	Icon           string    `json:"icon"`
	Condition      Condition `json:"condition"`
	TimezoneOffset int       `json:"timezoneOffsetSeconds"`
}

// WindSpeedKmh converts the m/s reading for display.
func (s WeatherSnapshot) WindSpeedKmh() float64 {
	return s.WindSpeed * 3.6
}

// Zone returns the location's fixed UTC offset as reported by the provider.
func (s WeatherSnapshot) Zone() *time.Location {
	return time.FixedZone("", s.TimezoneOffset)
}

// ForecastEntry is one step of the provider's forecast timeline.
type ForecastEntry struct {
	Time        time.Time `json:"time"`
	Temperature float64   `json:"temperatureC"`
	Description string    `json:"description"`
	Icon        string    `json:"icon,omitempty"`
	Condition   Condition `json:"condition"`
}

// PollutionReading is a single entry of the air pollution list.
type PollutionReading struct {
	Time time.Time `json:"time"`
	AQI  int       `json:"aqi"`
}

// ClimateReport is everything one successful fetch produces. Its fields are
// always replaced together.
type ClimateReport struct {
	Location    Location        `json:"location"`
	Current     WeatherSnapshot `json:"current"`
	AirQuality  *int            `json:"airQualityIndex"`
	Next24Hours []ForecastEntry `json:"next24Hours"`
	Periodic    []ForecastEntry `json:"periodicForecast"`
	Timeline    []ForecastEntry `json:"-"`
	FetchedAt   time.Time       `json:"fetchedAt"`
}

// DailySummary aggregates the forecast entries that fall on one local day.
type DailySummary struct {
	Date      string    `json:"date"`
	MinTemp   float64   `json:"minTemperatureC"`
	MaxTemp   float64   `json:"maxTemperatureC"`
	AvgTemp   float64   `json:"avgTemperatureC"`
	Condition Condition `json:"condition"`
	Entries   int       `json:"entries"`
}
