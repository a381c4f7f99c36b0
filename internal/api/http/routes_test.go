package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/kisaansetu/kisaan-setu/internal/auth"
	"github.com/kisaansetu/kisaan-setu/internal/climate"
	"github.com/kisaansetu/kisaan-setu/internal/logger"
	"github.com/kisaansetu/kisaan-setu/internal/mail"
	"github.com/kisaansetu/kisaan-setu/internal/metrics"
	"github.com/kisaansetu/kisaan-setu/internal/shops"
	"github.com/kisaansetu/kisaan-setu/internal/store"
	"github.com/kisaansetu/kisaan-setu/internal/users"
	"github.com/kisaansetu/kisaan-setu/internal/weather"
)

const frontendURL = "https://kisaan-setu.example"

func init() {
	logger.IsTest = true
}

type stubSource struct {
	failForecast bool
}

func (s stubSource) CurrentWeather(_ context.Context, lat, lon float64) (weather.WeatherSnapshot, error) {
	return weather.WeatherSnapshot{
		ObservedAt:  time.Now().UTC(),
		Temperature: 31.5,
		Humidity:    40,
		Description: "clear sky",
		Condition:   weather.ConditionClear,
	}, nil
}

func (s stubSource) AirPollution(context.Context, float64, float64) ([]weather.PollutionReading, error) {
	return []weather.PollutionReading{{Time: time.Now().UTC(), AQI: 3}}, nil
}

func (s stubSource) Forecast(context.Context, float64, float64) ([]weather.ForecastEntry, error) {
	if s.failForecast {
		return nil, errors.New("forecast: status 502")
	}
	start := time.Now().UTC().Truncate(time.Hour)
	out := make([]weather.ForecastEntry, 0, 40)
	for i := 0; i < 40; i++ {
		out = append(out, weather.ForecastEntry{
			Time:        start.Add(time.Duration(i*3) * time.Hour),
			Temperature: 25 + float64(i%8),
			Condition:   weather.ConditionClear,
		})
	}
	return out, nil
}

type stubGeocoder struct{}

func (stubGeocoder) Geocode(_ context.Context, query string, limit int) ([]weather.Location, error) {
	return []weather.Location{{Name: query, State: "Maharashtra", Country: "IN", Lat: 18.52, Lon: 73.85}}, nil
}

type stubGenerator struct {
	reply string
	err   error
}

func (g stubGenerator) Generate(context.Context, string) (string, error) {
	return g.reply, g.err
}

type captureMailer struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (m *captureMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *captureMailer) last() mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[len(m.sent)-1]
}

type fixture struct {
	app     *fiber.App
	deps    Dependencies
	store   *store.MemoryStore
	mailer  *captureMailer
	metrics *prometheus.Registry
}

func newFixture(t *testing.T, src weather.Source) *fixture {
	t.Helper()

	memStore := store.NewMemoryStore(10, time.Hour)
	svc := weather.NewService(src, stubGeocoder{}, memStore)

	userStore, err := users.NewSQLiteStore(filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = userStore.Close() })
	mailer := &captureMailer{}

	sessions, err := auth.NewSessionManager("test-secret", time.Hour)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	metrics.New(reg)

	f := &fixture{
		store:   memStore,
		mailer:  mailer,
		metrics: reg,
		deps: Dependencies{
			Weather:     svc,
			Dashboards:  climate.NewRegistry(svc, svc, time.Hour, climate.WithDebounce(10*time.Millisecond)),
			Sessions:    sessions,
			Users:       users.NewService(userStore, mailer, frontendURL),
			Shops:       shops.NewFinder(stubGenerator{reply: `[{"name":"Sharma Electricals","latitude":18.5,"longitude":73.8,"link":"https://maps.example/s"}]`}),
			Gatherer:    reg,
			FrontendURL: frontendURL,
		},
	}
	f.app = newApp(f.deps)
	return f
}

func newApp(deps Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	RegisterRoutes(app, deps)
	return app
}

func do(t *testing.T, app *fiber.App, method, target string, body any, cookies ...*http.Cookie) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func cookieNamed(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

type errorBody struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

func TestGeocodeEndpoint(t *testing.T) {
	f := newFixture(t, stubSource{})

	resp := do(t, f.app, http.MethodGet, "/api/v1/climate/geocode", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.True(t, decode[errorBody](t, resp).Error)

	resp = do(t, f.app, http.MethodGet, "/api/v1/climate/geocode?q=Pune", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[struct {
		Results []weather.Location `json:"results"`
	}](t, resp)
	require.Len(t, body.Results, 1)
	assert.Equal(t, "Pune", body.Results[0].Name)
}

func TestReportEndpoint(t *testing.T) {
	f := newFixture(t, stubSource{})

	for _, q := range []string{"", "?lat=18.5", "?lat=abc&lon=73", "?lat=95&lon=73", "?lat=18&lon=200"} {
		resp := do(t, f.app, http.MethodGet, "/api/v1/climate/report"+q, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}

	resp := do(t, f.app, http.MethodGet, "/api/v1/climate/report?lat=18.52&lon=73.85", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	report := decode[weather.ClimateReport](t, resp)
	require.NotNil(t, report.AirQuality)
	assert.Equal(t, 3, *report.AirQuality)
	assert.Len(t, report.Periodic, 5)
	assert.NotEmpty(t, report.Next24Hours)
	assert.LessOrEqual(t, len(report.Next24Hours), 9)
}

func TestReportEndpointUpstreamFailure(t *testing.T) {
	f := newFixture(t, stubSource{failForecast: true})

	resp := do(t, f.app, http.MethodGet, "/api/v1/climate/report?lat=18.52&lon=73.85", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "failed to fetch weather data", decode[errorBody](t, resp).Message)
}

func TestDailyEndpoint(t *testing.T) {
	f := newFixture(t, stubSource{})

	resp := do(t, f.app, http.MethodGet, "/api/v1/climate/daily?lat=18.52&lon=73.85", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[struct {
		Days []weather.DailySummary `json:"days"`
	}](t, resp)
	assert.NotEmpty(t, body.Days)
}

func TestStoredWeatherEndpoints(t *testing.T) {
	f := newFixture(t, stubSource{})
	loc := weather.Location{Lat: 18.52, Lon: 73.85}

	resp := do(t, f.app, http.MethodGet, "/api/v1/weather/current?lat=18.52&lon=73.85", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	require.NoError(t, f.deps.Weather.FetchAndStore(context.Background(), loc))

	resp = do(t, f.app, http.MethodGet, "/api/v1/weather/current?lat=18.52&lon=73.85", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 31.5, decode[weather.ClimateReport](t, resp).Current.Temperature)

	resp = do(t, f.app, http.MethodGet, "/api/v1/weather/history?lat=18.52&lon=73.85", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	from := url.QueryEscape(time.Now().Add(-time.Hour).UTC().Format(time.RFC3339))
	to := url.QueryEscape(time.Now().Add(time.Hour).UTC().Format(time.RFC3339))
	resp = do(t, f.app, http.MethodGet, "/api/v1/weather/history?lat=18.52&lon=73.85&from="+from+"&to="+to, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[struct {
		Reports []weather.ClimateReport `json:"reports"`
	}](t, resp)
	assert.Len(t, body.Reports, 1)

	resp = do(t, f.app, http.MethodGet, "/api/v1/weather/history?lat=18.52&lon=73.85&from="+to+"&to="+from, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDashboardSessionFlow(t *testing.T) {
	f := newFixture(t, stubSource{})

	resp := do(t, f.app, http.MethodPost, "/api/v1/dashboard/fetch", map[string]float64{"lat": 18.52, "lon": 73.85})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cookie := cookieNamed(resp, dashboardCookie)
	require.NotNil(t, cookie)
	state := decode[climate.State](t, resp)
	require.NotNil(t, state.Current)
	assert.False(t, state.Loading)
	assert.False(t, state.Error)

	resp = do(t, f.app, http.MethodGet, "/api/v1/dashboard", nil, cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, cookieNamed(resp, dashboardCookie))
	assert.NotNil(t, decode[climate.State](t, resp).Current)

	resp = do(t, f.app, http.MethodPost, "/api/v1/dashboard/locate", map[string]bool{"supported": false}, cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	state = decode[climate.State](t, resp)
	assert.Equal(t, []string{climate.UnsupportedAlert}, state.Alerts)
	assert.False(t, state.Loading)

	resp = do(t, f.app, http.MethodDelete, "/api/v1/dashboard/alerts", nil, cookie)
	assert.Empty(t, decode[climate.State](t, resp).Alerts)

	resp = do(t, f.app, http.MethodPost, "/api/v1/dashboard/locate", map[string]any{"lat": 19.07, "lon": 72.88}, cookie)
	state = decode[climate.State](t, resp)
	assert.Equal(t, climate.CurrentLocationLabel, state.SelectedLocation)
}

func TestDashboardLocateBody(t *testing.T) {
	f := newFixture(t, stubSource{})

	resp := do(t, f.app, http.MethodPost, "/api/v1/dashboard/locate", map[string]bool{"supported": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	state := decode[climate.State](t, resp)
	assert.Equal(t, []string{climate.UnsupportedAlert}, state.Alerts)
	assert.False(t, state.Loading)
	assert.False(t, state.Error)
	assert.Nil(t, state.Current)

	resp = do(t, f.app, http.MethodPost, "/api/v1/dashboard/locate", map[string]any{"supported": true, "error": "User denied Geolocation"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	state = decode[climate.State](t, resp)
	assert.Empty(t, state.Alerts)
	assert.True(t, state.Error)
	assert.False(t, state.Loading)
}

func TestDashboardSearchAndSubmit(t *testing.T) {
	f := newFixture(t, stubSource{})

	resp := do(t, f.app, http.MethodPost, "/api/v1/dashboard/search", map[string]string{"query": "Pune"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	cookie := cookieNamed(resp, dashboardCookie)
	require.NotNil(t, cookie)
	assert.Equal(t, "Pune", decode[climate.State](t, resp).SearchTerm)

	assert.Eventually(t, func() bool {
		r := do(t, f.app, http.MethodGet, "/api/v1/dashboard", nil, cookie)
		return len(decode[climate.State](t, r).Suggestions) == 1
	}, time.Second, 10*time.Millisecond)

	resp = do(t, f.app, http.MethodPost, "/api/v1/dashboard/submit", nil, cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	state := decode[climate.State](t, resp)
	assert.Equal(t, "Pune, Maharashtra, IN", state.SelectedLocation)
	assert.Empty(t, state.SearchTerm)
	assert.Empty(t, state.Suggestions)
	assert.NotNil(t, state.Current)
}

func TestDashboardSelectValidation(t *testing.T) {
	f := newFixture(t, stubSource{})

	resp := do(t, f.app, http.MethodPost, "/api/v1/dashboard/select", map[string]any{
		"candidate": map[string]any{"name": "Nowhere", "lat": 120, "lon": 10},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, f.app, http.MethodPost, "/api/v1/dashboard/select", map[string]any{
		"candidate": map[string]any{"name": "Nashik", "country": "IN", "lat": 19.99, "lon": 73.78},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Nashik, IN", decode[climate.State](t, resp).SelectedLocation)
}

func TestDashboardFetchFailureSetsErrorFlag(t *testing.T) {
	f := newFixture(t, stubSource{failForecast: true})

	resp := do(t, f.app, http.MethodPost, "/api/v1/dashboard/fetch", map[string]float64{"lat": 18.52, "lon": 73.85})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	state := decode[climate.State](t, resp)
	assert.True(t, state.Error)
	assert.False(t, state.Loading)
	assert.Nil(t, state.Current)
}

func TestRegisterAndVerify(t *testing.T) {
	f := newFixture(t, stubSource{})

	resp := do(t, f.app, http.MethodPost, "/api/v1/users/register", map[string]string{"email": "not-an-email", "name": "A"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, f.app, http.MethodPost, "/api/v1/users/register", map[string]string{"email": "farmer@example.com", "name": "Farmer"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(t, f.app, http.MethodPost, "/api/v1/users/register", map[string]string{"email": "farmer@example.com", "name": "Farmer"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	f.deps.Users.Wait()
	_, token, ok := strings.Cut(f.mailer.last().Text, "token=")
	require.True(t, ok)

	resp = do(t, f.app, http.MethodGet, "/api/v1/users/verify?token=wrong", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, f.app, http.MethodGet, "/api/v1/users/verify?token="+url.QueryEscape(token), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[struct {
		Verified bool       `json:"verified"`
		User     users.User `json:"user"`
	}](t, resp)
	assert.True(t, body.Verified)
	assert.Equal(t, "farmer@example.com", body.User.Email)
}

func TestShopsEndpoint(t *testing.T) {
	f := newFixture(t, stubSource{})

	resp := do(t, f.app, http.MethodPost, "/api/v1/shops", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Location not provided", decode[errorBody](t, resp).Message)

	resp = do(t, f.app, http.MethodPost, "/api/v1/shops", map[string]string{"location": "Pune"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	found := decode[[]shops.Shop](t, resp)
	require.Len(t, found, 1)
	assert.Equal(t, "Sharma Electricals", found[0].Name)

	f.deps.Shops = shops.NewFinder(stubGenerator{err: errors.New("quota exceeded")})
	resp = do(t, newApp(f.deps), http.MethodPost, "/api/v1/shops", map[string]string{"location": "Pune"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Failed to retrieve data from Gemini.", decode[errorBody](t, resp).Message)

	f.deps.Shops = shops.NewFinder(stubGenerator{reply: "no idea"})
	resp = do(t, newApp(f.deps), http.MethodPost, "/api/v1/shops", map[string]string{"location": "Pune"})
	assert.Equal(t, "No valid JSON found in the response.", decode[errorBody](t, resp).Message)

	f.deps.Shops = nil
	resp = do(t, newApp(f.deps), http.MethodPost, "/api/v1/shops", map[string]string{"location": "Pune"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func newGoogleServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "access-1", "token_type": "Bearer", "expires_in": 3600})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"sub": "g-1", "email": "meena@example.com", "name": "Meena"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestGoogleSignInFlow(t *testing.T) {
	f := newFixture(t, stubSource{})

	resp := do(t, f.app, http.MethodGet, "/auth/google", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	srv := newGoogleServer(t)
	f.deps.Google = auth.NewGoogleProvider("client", "secret", "http://localhost/auth/google/callback",
		auth.WithEndpoint(oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token", AuthStyle: oauth2.AuthStyleInParams}),
		auth.WithUserInfoURL(srv.URL+"/userinfo"))
	app := newApp(f.deps)

	resp = do(t, app, http.MethodGet, "/auth/google", nil)
	require.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	stateCookie := cookieNamed(resp, auth.StateCookie)
	require.NotNil(t, stateCookie)
	consent, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, stateCookie.Value, consent.Query().Get("state"))

	// A mismatched state is sent back to the login page.
	resp = do(t, app, http.MethodGet, "/auth/google/callback?state=forged&code=c", nil, stateCookie)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	resp = do(t, app, http.MethodGet, "/auth/google/callback?error=access_denied", nil, stateCookie)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	resp = do(t, app, http.MethodGet, "/auth/google/callback?state="+stateCookie.Value+"&code=c", nil, stateCookie)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, frontendURL, resp.Header.Get("Location"))
	session := cookieNamed(resp, auth.SessionCookie)
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)

	resp = do(t, app, http.MethodGet, "/auth/me", nil, session)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "meena@example.com", decode[users.User](t, resp).Email)

	resp = do(t, app, http.MethodGet, "/auth/logout", nil, session)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, frontendURL, resp.Header.Get("Location"))
	cleared := cookieNamed(resp, auth.SessionCookie)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
}

func TestMeWithoutSession(t *testing.T) {
	f := newFixture(t, stubSource{})

	resp := do(t, f.app, http.MethodGet, "/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(t, f.app, http.MethodGet, "/auth/me", nil, &http.Cookie{Name: auth.SessionCookie, Value: "garbage"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, stubSource{})

	resp := do(t, f.app, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "kisaansetu_dashboards_active")
}

func TestDisabledWeather(t *testing.T) {
	app := newApp(Dependencies{FrontendURL: frontendURL})

	resp := do(t, app, http.MethodGet, "/api/v1/climate/report?lat=1&lon=1", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp = do(t, app, http.MethodGet, "/api/v1/dashboard", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
