package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	httpapi "github.com/kisaansetu/kisaan-setu/internal/api/http"
	"github.com/kisaansetu/kisaan-setu/internal/auth"
	"github.com/kisaansetu/kisaan-setu/internal/cache"
	"github.com/kisaansetu/kisaan-setu/internal/climate"
	"github.com/kisaansetu/kisaan-setu/internal/config"
	"github.com/kisaansetu/kisaan-setu/internal/logger"
	"github.com/kisaansetu/kisaan-setu/internal/mail"
	"github.com/kisaansetu/kisaan-setu/internal/metrics"
	"github.com/kisaansetu/kisaan-setu/internal/scheduler"
	"github.com/kisaansetu/kisaan-setu/internal/shops"
	"github.com/kisaansetu/kisaan-setu/internal/store"
	"github.com/kisaansetu/kisaan-setu/internal/users"
	"github.com/kisaansetu/kisaan-setu/internal/weather"
	"github.com/kisaansetu/kisaan-setu/internal/weather/providers"
)

const sweepInterval = time.Minute

func main() {
	// Load configuration before the logger is built so .env can set
	// LOG_LEVEL and ENVIRONMENT.
	cfg, err := config.Load()
	log := logger.GetLogger()
	defer logger.Close()
	if err != nil {
		log.Fatalw("failed to load config", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	// In-memory store with configured retention.
	memStore := store.NewMemoryStore(cfg.StoreMaxHistory, cfg.StoreMaxAge)

	// Upstream source with resilience (backoff + circuit breaker).
	var source interface {
		weather.Source
		weather.Geocoder
	}
	switch cfg.WeatherProvider {
	case config.ProviderOpenMeteo:
		source = providers.NewOpenMeteoProvider(httpClient, providers.WithOpenMeteoRetries(cfg.ProviderMaxRetries))
	default:
		owOpts := []providers.OpenWeatherOption{providers.WithMaxRetries(cfg.ProviderMaxRetries)}
		if cfg.OpenWeatherBaseURL != "" {
			owOpts = append(owOpts, providers.WithBaseURL(cfg.OpenWeatherBaseURL))
		}
		source = providers.NewOpenWeatherProvider(httpClient, cfg.OpenWeatherAPIKey, owOpts...)
	}
	log.Infow("Weather source selected", "provider", cfg.WeatherProvider)

	memCache := cache.NewMemoryCache()
	var geocodeCache cache.Cache = memCache
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedisCacheFromURL(ctx, cfg.RedisURL, "kisaansetu:geocode:")
		if err != nil {
			log.Warnw("Redis unavailable; using in-memory geocode cache", "error", err)
		} else {
			defer rc.Close()
			geocodeCache = rc
			memCache = nil
		}
	}
	geocoder := providers.NewCachedGeocoder(source, geocodeCache, cfg.GeocodeCacheTTL)

	// Core service orchestrating the source, geocoder and store.
	service := weather.NewService(source, geocoder, memStore, weather.WithObserver(m))

	dashOpts := []climate.Option{climate.WithDebounce(cfg.SearchDebounce)}
	if cfg.GoogleGeocoderAPIKey != "" {
		dashOpts = append(dashOpts, climate.WithReverseGeocoder(providers.NewGoogleReverseGeocoder(cfg.GoogleGeocoderAPIKey)))
	}
	dashboards := climate.NewRegistry(service, service, cfg.DashboardIdleTTL, dashOpts...)

	userStore, err := users.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		log.Fatalw("failed to open user database", "path", cfg.DatabasePath, "error", err)
	}
	defer userStore.Close()

	var mailer mail.Mailer
	switch {
	case cfg.Email.ResendAPIKey != "":
		mailer = mail.NewResendMailer(cfg.Email.ResendAPIKey, cfg.Email.FromAddress)
	case cfg.Email.Username != "":
		mailer = mail.NewSMTPMailer(mail.SMTPConfig{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
		})
	}
	if mailer != nil {
		mailer = mail.WithObserver(mailer, m)
	}
	userService := users.NewService(userStore, mailer, cfg.FrontendURL)

	deps := httpapi.Dependencies{
		Weather:      service,
		Dashboards:   dashboards,
		Users:        userService,
		Gatherer:     reg,
		FrontendURL:  cfg.FrontendURL,
		SecureCookie: os.Getenv("ENVIRONMENT") == "production",
	}

	if cfg.SessionSecret != "" {
		sessions, err := auth.NewSessionManager(cfg.SessionSecret, cfg.SessionTTL)
		if err != nil {
			log.Fatalw("failed to create session manager", "error", err)
		}
		deps.Sessions = sessions
	}
	if cfg.Google.Enabled() {
		deps.Google = auth.NewGoogleProvider(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURL)
	}

	if cfg.GeminiAPIKey != "" {
		gen, err := shops.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Warnw("Shop finder disabled", "error", err)
		} else {
			deps.Shops = shops.NewFinder(gen)
		}
	}

	// Scheduler that refreshes tracked farms and evicts idle dashboards and
	// expired geocode entries.
	schedOpts := []scheduler.Option{scheduler.WithSweeper(dashboards, sweepInterval, m.SetDashboards)}
	if memCache != nil {
		schedOpts = append(schedOpts, scheduler.WithCacheSweeper(memCache, sweepInterval))
	}
	sched := scheduler.New(cfg.Locations, cfg.FetchInterval, service, schedOpts...)
	if err := sched.Start(); err != nil {
		log.Fatalw("failed to start scheduler", "error", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "kisaansetu",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(fiberlogger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "kisaansetu",
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, deps)

	go func() {
		log.Infow("Starting server", "port", cfg.Port, "trackedFarms", len(cfg.Locations))
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Infow("fiber server stopped", "error", err)
		}
	}()

	// Wait for termination signal
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Errorw("error during shutdown", "error", err)
	}
	userService.Wait()
}
