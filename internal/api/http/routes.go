package httpapi

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kisaansetu/kisaan-setu/internal/auth"
	"github.com/kisaansetu/kisaan-setu/internal/climate"
	"github.com/kisaansetu/kisaan-setu/internal/logger"
	"github.com/kisaansetu/kisaan-setu/internal/shops"
	"github.com/kisaansetu/kisaan-setu/internal/users"
	"github.com/kisaansetu/kisaan-setu/internal/weather"
)

var validate = validator.New()

// Dependencies are the services the API exposes. Optional features are
// disabled (503) when their dependency is nil.
type Dependencies struct {
	Weather    *weather.Service
	Dashboards *climate.Registry

	Sessions *auth.SessionManager
	Google   *auth.GoogleProvider
	Users    *users.Service
	Shops    *shops.Finder

	Gatherer prometheus.Gatherer

	FrontendURL  string
	SecureCookie bool
}

// ErrorHandler renders every error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	if code >= fiber.StatusInternalServerError {
		logger.GetLogger().Errorw("Request failed", "path", c.Path(), "status", code, "error", err)
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Dependencies) {
	if deps.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	registerAuthRoutes(app, deps)

	v1 := app.Group("/api/v1")
	registerClimateRoutes(v1, deps)
	registerDashboardRoutes(v1, deps)
	registerUserRoutes(v1, deps)
	registerShopRoutes(v1, deps)
}

func unavailable(feature string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusServiceUnavailable, feature+" is not configured")
	}
}

// locationQuery holds query parameters for identifying a location.
type locationQuery struct {
	Lat float64 `validate:"latitude"`
	Lon float64 `validate:"longitude"`
}

func (l locationQuery) toLocation() weather.Location {
	return weather.Location{Lat: l.Lat, Lon: l.Lon}
}

func parseLocationQuery(c *fiber.Ctx) (locationQuery, error) {
	var q locationQuery

	latStr := strings.TrimSpace(c.Query("lat"))
	lonStr := strings.TrimSpace(c.Query("lon"))
	if latStr == "" || lonStr == "" {
		return q, errors.New("lat and lon query parameters are required")
	}

	var err error
	if q.Lat, err = strconv.ParseFloat(latStr, 64); err != nil {
		return q, errors.New("lat must be a number")
	}
	if q.Lon, err = strconv.ParseFloat(lonStr, 64); err != nil {
		return q, errors.New("lon must be a number")
	}

	if err := validate.Struct(q); err != nil {
		return q, err
	}
	return q, nil
}

// historyQuery holds query parameters for the history endpoint.
type historyQuery struct {
	Location locationQuery
	From     time.Time `validate:"required"`
	To       time.Time `validate:"required,gtefield=From"`
}

func (h *historyQuery) bind(c *fiber.Ctx) error {
	loc, err := parseLocationQuery(c)
	if err != nil {
		return err
	}
	h.Location = loc

	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}

	h.From = from
	h.To = to
	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
