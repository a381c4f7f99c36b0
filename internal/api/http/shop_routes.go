package httpapi

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/kisaansetu/kisaan-setu/internal/shops"
)

type shopRequest struct {
	Location string `json:"location"`
}

func registerShopRoutes(v1 fiber.Router, deps Dependencies) {
	if deps.Shops == nil {
		v1.Post("/shops", unavailable("shop finder"))
		return
	}

	v1.Post("/shops", func(c *fiber.Ctx) error {
		var req shopRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Location not provided")
		}

		found, err := deps.Shops.Find(c.UserContext(), req.Location)
		switch {
		case errors.Is(err, shops.ErrNoLocation):
			return fiber.NewError(fiber.StatusBadRequest, "Location not provided")
		case errors.Is(err, shops.ErrGeneration):
			return fiber.NewError(fiber.StatusInternalServerError, "Failed to retrieve data from Gemini.")
		case errors.Is(err, shops.ErrNoJSON):
			return fiber.NewError(fiber.StatusInternalServerError, "No valid JSON found in the response.")
		case err != nil:
			return fiber.NewError(fiber.StatusInternalServerError, fmt.Sprintf("Error processing data: %v", err))
		}

		return c.JSON(found)
	})
}
