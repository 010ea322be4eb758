// Package middleware provides request-scoped Fiber middleware: sessions, logging,
// tracing, metrics and rate limiting.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"diary/internal/auth"
	"diary/internal/models"

	"github.com/gofiber/fiber/v2"
)

const identityLocal = "identity"

// SessionToken returns the raw session token from the session cookie or,
// failing that, an "Authorization: Bearer" header.
func SessionToken(c *fiber.Ctx, cookieName string) string {
	if v := c.Cookies(cookieName); v != "" {
		return v
	}
	header := c.Get(fiber.HeaderAuthorization)
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// UserLookup resolves the account a session token names.
type UserLookup interface {
	GetUser(ctx context.Context, id uint) (*models.User, error)
}

// Session resolves the caller's identity and stores it in locals and the user context.
// A token only authenticates while its user still exists under the same username;
// a nil users skips that check. Session never rejects a request; handlers decide
// what an anonymous caller may do.
func Session(tokens *auth.TokenManager, users UserLookup, cookieName string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := SessionToken(c, cookieName)
		if raw == "" {
			return c.Next()
		}

		id, err := tokens.Verify(c.UserContext(), raw)
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidToken) && !errors.Is(err, auth.ErrTokenRevoked) {
				Logger.WarnContext(c.UserContext(), "session verification failed", slog.String("error", err.Error()))
			}
			return c.Next()
		}

		if users != nil {
			user, err := users.GetUser(c.UserContext(), id.UserID)
			switch {
			case models.IsNotFound(err):
				Logger.DebugContext(c.UserContext(), "session names an unknown user", slog.Uint64("user_id", uint64(id.UserID)))
				return c.Next()
			case err != nil:
				return models.NewInternalError(fmt.Errorf("resolve session user: %w", err))
			case user.Username != id.Username:
				Logger.DebugContext(c.UserContext(), "session username does not match account", slog.Uint64("user_id", uint64(id.UserID)))
				return c.Next()
			}
		}

		c.Locals(identityLocal, id)
		c.Locals("userID", id.UserID)
		c.SetUserContext(auth.WithIdentity(c.UserContext(), id))
		return c.Next()
	}
}

// CurrentIdentity returns the identity resolved by Session, or nil.
func CurrentIdentity(c *fiber.Ctx) *auth.Identity {
	id, _ := c.Locals(identityLocal).(*auth.Identity)
	return id
}

// RequireSession rejects requests that Session could not authenticate.
func RequireSession(c *fiber.Ctx) error {
	if CurrentIdentity(c) == nil {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Authentication required"))
	}
	return c.Next()
}
