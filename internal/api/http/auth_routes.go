package httpapi

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/kisaansetu/kisaan-setu/internal/auth"
	"github.com/kisaansetu/kisaan-setu/internal/logger"
	"github.com/kisaansetu/kisaan-setu/internal/users"
)

const (
	loginPath     = "/login"
	stateLifetime = 10 * time.Minute
)

func registerAuthRoutes(app *fiber.App, deps Dependencies) {
	a := app.Group("/auth")

	if deps.Google == nil || deps.Users == nil || deps.Sessions == nil {
		a.Get("/google", unavailable("google sign-in"))
		a.Get("/google/callback", unavailable("google sign-in"))
	} else {
		a.Get("/google", func(c *fiber.Ctx) error {
			state := auth.NewState()
			c.Cookie(&fiber.Cookie{
				Name:     auth.StateCookie,
				Value:    state,
				Path:     "/auth",
				Expires:  time.Now().Add(stateLifetime),
				HTTPOnly: true,
				Secure:   deps.SecureCookie,
				SameSite: fiber.CookieSameSiteLaxMode,
			})
			return c.Redirect(deps.Google.AuthCodeURL(state), fiber.StatusTemporaryRedirect)
		})

		a.Get("/google/callback", func(c *fiber.Ctx) error {
			log := logger.GetLogger()
			expected := c.Cookies(auth.StateCookie)
			clearCookie(c, auth.StateCookie, "/auth", deps.SecureCookie)

			if reason := c.Query("error"); reason != "" {
				log.Warnw("Google sign-in declined", "reason", reason)
				return c.Redirect(loginPath)
			}
			if expected == "" || c.Query("state") != expected {
				log.Warnw("Google sign-in state mismatch")
				return c.Redirect(loginPath)
			}

			profile, err := deps.Google.Identify(c.UserContext(), c.Query("code"))
			if err != nil {
				log.Errorw("Google sign-in failed", "error", err)
				return c.Redirect(loginPath)
			}

			user, err := deps.Users.LoginWithGoogle(c.UserContext(), profile.Subject, profile.Email, profile.Name)
			if err != nil {
				log.Errorw("Failed to record Google user", "email", logger.MaskEmail(profile.Email), "error", err)
				return c.Redirect(loginPath)
			}

			token, err := deps.Sessions.Issue(user.ID, user.Email, user.Name)
			if err != nil {
				log.Errorw("Failed to issue session", "userID", user.ID, "error", err)
				return c.Redirect(loginPath)
			}

			c.Cookie(&fiber.Cookie{
				Name:     auth.SessionCookie,
				Value:    token,
				Path:     "/",
				Expires:  time.Now().Add(deps.Sessions.TTL()),
				HTTPOnly: true,
				Secure:   deps.SecureCookie,
				SameSite: fiber.CookieSameSiteLaxMode,
			})
			log.Infow("User signed in with Google", "userID", user.ID)
			return c.Redirect(deps.FrontendURL)
		})
	}

	a.Get("/logout", func(c *fiber.Ctx) error {
		clearCookie(c, auth.SessionCookie, "/", deps.SecureCookie)
		return c.Redirect(deps.FrontendURL)
	})

	a.Get("/me", func(c *fiber.Ctx) error {
		if deps.Sessions == nil || deps.Users == nil {
			return fiber.NewError(fiber.StatusUnauthorized, "not signed in")
		}
		claims, err := deps.Sessions.Parse(c.Cookies(auth.SessionCookie))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "not signed in")
		}
		user, err := deps.Users.Get(c.UserContext(), claims.UserID)
		if err != nil {
			if errors.Is(err, users.ErrNotFound) {
				return fiber.NewError(fiber.StatusUnauthorized, "not signed in")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load user")
		}
		return c.JSON(user)
	})
}

func clearCookie(c *fiber.Ctx, name, path string, secure bool) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HTTPOnly: true,
		Secure:   secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}
