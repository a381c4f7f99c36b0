package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kisaansetu/kisaan-setu/internal/logger"
	"github.com/kisaansetu/kisaan-setu/internal/weather"
)

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Enabled reports whether Google sign-in is configured.
func (g GoogleConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

type EmailConfig struct {
	ResendAPIKey string
	FromAddress  string

	SMTPHost string
	SMTPPort int
	Username string
	Password string
}

const (
	ProviderOpenWeather = "openweather"
	ProviderOpenMeteo   = "openmeteo"
)

type AppConfig struct {
	// WeatherProvider selects the upstream source: openweather or openmeteo.
	WeatherProvider string

	OpenWeatherAPIKey  string
	OpenWeatherBaseURL string

	// HTTPTimeout bounds each outbound provider call.
	HTTPTimeout        time.Duration
	ProviderMaxRetries int

	// FetchInterval controls how often tracked farms are refreshed.
	FetchInterval time.Duration

	// Tracked farm locations.
	Locations []weather.Location

	// In-memory store retention.
	StoreMaxHistory int           // max number of reports per location (0 = unlimited)
	StoreMaxAge     time.Duration // max age of reports (0 = unlimited)

	SearchDebounce   time.Duration
	DashboardIdleTTL time.Duration

	Port        string
	FrontendURL string

	Google        GoogleConfig
	SessionSecret string
	SessionTTL    time.Duration

	Email EmailConfig

	GeminiAPIKey string
	GeminiModel  string

	GoogleGeocoderAPIKey string

	RedisURL        string
	GeocodeCacheTTL time.Duration

	DatabasePath string
}

// fileConfig is the optional YAML overlay named by CONFIG_FILE.
type fileConfig struct {
	Locations []struct {
		Name    string  `yaml:"name"`
		State   string  `yaml:"state"`
		Country string  `yaml:"country"`
		Lat     float64 `yaml:"lat"`
		Lon     float64 `yaml:"lon"`
	} `yaml:"locations"`
	FrontendURL string `yaml:"frontend_url"`
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		logger.GetLogger().Infow("No .env file found or error loading it", "error", err)
	}
	cfg := &AppConfig{}
	var err error

	cfg.WeatherProvider = strings.ToLower(getenvDefault("WEATHER_PROVIDER", ProviderOpenWeather))
	switch cfg.WeatherProvider {
	case ProviderOpenWeather, ProviderOpenMeteo:
	default:
		return nil, fmt.Errorf("unknown WEATHER_PROVIDER %q", cfg.WeatherProvider)
	}

	cfg.OpenWeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")
	if cfg.WeatherProvider == ProviderOpenWeather && cfg.OpenWeatherAPIKey == "" {
		return nil, errors.New("OPENWEATHER_API_KEY is required")
	}
	cfg.OpenWeatherBaseURL = os.Getenv("OPENWEATHER_BASE_URL")

	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	cfg.ProviderMaxRetries = getenvInt("PROVIDER_MAX_RETRIES", 0)

	if cfg.FetchInterval, err = getenvDuration("FETCH_INTERVAL", 15*time.Minute); err != nil {
		return nil, err
	}

	cfg.StoreMaxHistory = getenvInt("STORE_MAX_HISTORY", 96) // roughly 24h at 15-minute intervals
	if cfg.StoreMaxAge, err = getenvDuration("STORE_MAX_AGE", 24*time.Hour); err != nil {
		return nil, err
	}

	if cfg.SearchDebounce, err = getenvDuration("SEARCH_DEBOUNCE", 500*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.DashboardIdleTTL, err = getenvDuration("DASHBOARD_IDLE_TTL", 30*time.Minute); err != nil {
		return nil, err
	}

	cfg.Port = getenvDefault("PORT", "8080")
	cfg.FrontendURL = os.Getenv("FRONTEND_URL")

	cfg.Google = GoogleConfig{
		ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		RedirectURL:  getenvDefault("GOOGLE_REDIRECT_URL", "http://localhost:"+cfg.Port+"/auth/google/callback"),
	}
	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionTTL, err = getenvDuration("SESSION_TTL", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.Google.Enabled() && cfg.SessionSecret == "" {
		return nil, errors.New("SESSION_SECRET is required when Google sign-in is enabled")
	}

	cfg.Email = EmailConfig{
		ResendAPIKey: os.Getenv("RESEND_API_KEY"),
		FromAddress:  os.Getenv("EMAIL_FROM"),
		SMTPHost:     getenvDefault("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:     getenvInt("SMTP_PORT", 587),
		Username:     os.Getenv("EMAIL_USER"),
		Password:     os.Getenv("EMAIL_PASS"),
	}
	if cfg.Email.FromAddress == "" {
		cfg.Email.FromAddress = cfg.Email.Username
	}

	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.GeminiModel = getenvDefault("GEMINI_MODEL", "gemini-2.0-flash")
	cfg.GoogleGeocoderAPIKey = os.Getenv("GOOGLE_GEOCODER_API_KEY")

	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.GeocodeCacheTTL, err = getenvDuration("GEOCODE_CACHE_TTL", 24*time.Hour); err != nil {
		return nil, err
	}

	cfg.DatabasePath = getenvDefault("DATABASE_PATH", "kisaansetu.db")

	if err := cfg.loadFile(os.Getenv("CONFIG_FILE")); err != nil {
		return nil, err
	}

	if raw := os.Getenv("WEATHER_LOCATIONS"); raw != "" {
		locs, err := ParseLocations(raw)
		if err != nil {
			return nil, err
		}
		cfg.Locations = locs
	}

	if cfg.FrontendURL == "" {
		cfg.FrontendURL = "http://localhost:5173"
	}

	return cfg, nil
}

func (cfg *AppConfig) loadFile(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	for _, l := range fc.Locations {
		cfg.Locations = append(cfg.Locations, weather.Location{
			Lat:     l.Lat,
			Lon:     l.Lon,
			Name:    l.Name,
			State:   l.State,
			Country: l.Country,
		})
	}
	if cfg.FrontendURL == "" {
		cfg.FrontendURL = fc.FrontendURL
	}
	return nil
}

// ParseLocations reads "lat:lon:name;lat:lon:name" entries. The name is
// optional.
func ParseLocations(raw string) ([]weather.Location, error) {
	var locs []weather.Location
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		parts := strings.SplitN(entry, ":", 3)
		if len(parts) < 2 {
			return nil, fmt.Errorf("invalid WEATHER_LOCATIONS entry %q: want lat:lon[:name]", entry)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil || lat < -90 || lat > 90 {
			return nil, fmt.Errorf("invalid latitude in WEATHER_LOCATIONS entry %q", entry)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil || lon < -180 || lon > 180 {
			return nil, fmt.Errorf("invalid longitude in WEATHER_LOCATIONS entry %q", entry)
		}

		loc := weather.Location{Lat: lat, Lon: lon}
		if len(parts) == 3 {
			loc.Name = strings.TrimSpace(parts[2])
		}
		locs = append(locs, loc)
	}
	return locs, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
