package httpapi

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/kisaansetu/kisaan-setu/internal/climate"
	"github.com/kisaansetu/kisaan-setu/internal/logger"
	"github.com/kisaansetu/kisaan-setu/internal/weather"
)

const dashboardCookie = "ks_dash"

type searchRequest struct {
	Query string `json:"query"`
}

type coordinatesRequest struct {
	Lat *float64 `json:"lat" validate:"required,latitude"`
	Lon *float64 `json:"lon" validate:"required,longitude"`
}

type selectRequest struct {
	Candidate struct {
		coordinatesRequest
		Name    string `json:"name"`
		State   string `json:"state"`
		Country string `json:"country"`
	} `json:"candidate"`
}

func registerDashboardRoutes(v1 fiber.Router, deps Dependencies) {
	reg := deps.Dashboards
	if reg == nil {
		v1.Use("/dashboard", unavailable("dashboard"))
		return
	}

	// session resolves the caller's dashboard, issuing a cookie for new ones.
	session := func(c *fiber.Ctx) *climate.Dashboard {
		old := c.Cookies(dashboardCookie)
		id, d := reg.GetOrCreate(old)
		if id != old {
			c.Cookie(&fiber.Cookie{
				Name:     dashboardCookie,
				Value:    id,
				Path:     "/",
				HTTPOnly: true,
				Secure:   deps.SecureCookie,
				SameSite: fiber.CookieSameSiteLaxMode,
			})
		}
		return d
	}

	// respond renders the dashboard state. Fetch failures are carried by the
	// state's error flag, so they do not change the status code.
	respond := func(c *fiber.Ctx, d *climate.Dashboard, err error) error {
		if err != nil && !errors.Is(err, climate.ErrSuperseded) {
			logger.GetLogger().Debugw("Dashboard operation failed", "path", c.Path(), "error", err)
		}
		return c.JSON(d.State())
	}

	g := v1.Group("/dashboard")

	g.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(session(c).State())
	})

	g.Post("/search", func(c *fiber.Ctx) error {
		var req searchRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		d := session(c)
		d.Search(req.Query)
		return c.Status(fiber.StatusAccepted).JSON(d.State())
	})

	g.Post("/submit", func(c *fiber.Ctx) error {
		d := session(c)
		return respond(c, d, d.Submit(c.UserContext()))
	})

	g.Post("/select", func(c *fiber.Ctx) error {
		var req selectRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req.Candidate.coordinatesRequest); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		cand := weather.Location{
			Lat:     *req.Candidate.Lat,
			Lon:     *req.Candidate.Lon,
			Name:    strings.TrimSpace(req.Candidate.Name),
			State:   strings.TrimSpace(req.Candidate.State),
			Country: strings.TrimSpace(req.Candidate.Country),
		}
		d := session(c)
		return respond(c, d, d.SelectLocation(c.UserContext(), cand))
	})

	g.Post("/locate", func(c *fiber.Ctx) error {
		var pos climate.ReportedPosition
		if err := c.BodyParser(&pos); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		d := session(c)
		return respond(c, d, d.UseCurrentLocation(c.UserContext(), pos))
	})

	g.Post("/fetch", func(c *fiber.Ctx) error {
		var req coordinatesRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		d := session(c)
		return respond(c, d, d.FetchWeather(c.UserContext(), *req.Lat, *req.Lon))
	})

	g.Delete("/alerts", func(c *fiber.Ctx) error {
		d := session(c)
		d.DismissAlerts()
		return c.JSON(d.State())
	})
}
