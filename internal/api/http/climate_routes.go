package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/kisaansetu/kisaan-setu/internal/store"
	"github.com/kisaansetu/kisaan-setu/internal/weather"
)

func registerClimateRoutes(v1 fiber.Router, deps Dependencies) {
	service := deps.Weather
	if service == nil {
		v1.Use("/climate", unavailable("weather"))
		v1.Use("/weather", unavailable("weather"))
		return
	}

	v1.Get("/climate/geocode", func(c *fiber.Ctx) error {
		locs, err := service.Geocode(c.UserContext(), c.Query("q"), weather.SuggestionLimit)
		if err != nil {
			if errors.Is(err, weather.ErrEmptyQuery) {
				return fiber.NewError(fiber.StatusBadRequest, "q query parameter is required")
			}
			return fiber.NewError(fiber.StatusBadGateway, "geocoding failed")
		}
		if locs == nil {
			locs = []weather.Location{}
		}
		return c.JSON(fiber.Map{"query": c.Query("q"), "results": locs})
	})

	v1.Get("/climate/report", func(c *fiber.Ctx) error {
		locReq, err := parseLocationQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		report, err := service.FetchReport(c.UserContext(), locReq.toLocation())
		if err != nil {
			return fiber.NewError(fiber.StatusBadGateway, "failed to fetch weather data")
		}
		return c.JSON(report)
	})

	v1.Get("/climate/daily", func(c *fiber.Ctx) error {
		locReq, err := parseLocationQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		report, err := service.FetchReport(c.UserContext(), locReq.toLocation())
		if err != nil {
			return fiber.NewError(fiber.StatusBadGateway, "failed to fetch weather data")
		}
		return c.JSON(fiber.Map{
			"location":  report.Location,
			"fetchedAt": report.FetchedAt,
			"days":      service.DailySummaries(report),
		})
	})

	v1.Get("/weather/current", func(c *fiber.Ctx) error {
		locReq, err := parseLocationQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		report, err := service.GetLatest(locReq.toLocation())
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no weather data for requested location")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch weather data")
		}

		return c.JSON(report)
	})

	v1.Get("/weather/history", func(c *fiber.Ctx) error {
		var req historyQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		loc := req.Location.toLocation()
		reports, err := service.GetRange(loc, req.From, req.To)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no weather history for requested range")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch weather history")
		}

		return c.JSON(fiber.Map{
			"location": loc,
			"from":     req.From,
			"to":       req.To,
			"reports":  reports,
		})
	})
}
