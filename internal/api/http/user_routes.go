package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/kisaansetu/kisaan-setu/internal/users"
)

func registerUserRoutes(v1 fiber.Router, deps Dependencies) {
	if deps.Users == nil {
		v1.Use("/users", unavailable("user accounts"))
		return
	}

	v1.Post("/users/register", func(c *fiber.Ctx) error {
		var in users.RegisterInput
		if err := c.BodyParser(&in); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		u, err := deps.Users.Register(c.UserContext(), in)
		switch {
		case errors.Is(err, users.ErrInvalidInput):
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		case errors.Is(err, users.ErrEmailTaken):
			return fiber.NewError(fiber.StatusConflict, err.Error())
		case err != nil:
			return fiber.NewError(fiber.StatusInternalServerError, "failed to register user")
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"user":    u,
			"message": "verification email sent",
		})
	})

	v1.Get("/users/verify", func(c *fiber.Ctx) error {
		u, err := deps.Users.Verify(c.UserContext(), c.Query("token"))
		switch {
		case errors.Is(err, users.ErrInvalidInput):
			return fiber.NewError(fiber.StatusBadRequest, "token query parameter is required")
		case errors.Is(err, users.ErrNotFound):
			return fiber.NewError(fiber.StatusNotFound, "invalid or expired verification token")
		case err != nil:
			return fiber.NewError(fiber.StatusInternalServerError, "failed to verify user")
		}

		return c.JSON(fiber.Map{"verified": true, "user": u})
	})
}
