// Package middleware provides the echo authentication middleware guarding
// protected routes.
package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/reviewpilot/crm-api/api"
	"github.com/reviewpilot/crm-api/cache"
	apperrors "github.com/reviewpilot/crm-api/errors"
	"github.com/reviewpilot/crm-api/services"
)

// userIDContextKey is the echo context key holding the authenticated user id.
const userIDContextKey = "auth.user_id"

// Authenticator turns a Bearer access token into an authenticated user id on
// the request context. Verified subjects are cached until the token expires,
// so repeat requests skip signature verification.
type Authenticator struct {
	auth     *services.AuthService
	subjects *cache.SubjectCache
}

// NewAuthenticator creates the middleware. The subject cache may be nil to
// disable caching.
func NewAuthenticator(auth *services.AuthService, subjects *cache.SubjectCache) *Authenticator {
	return &Authenticator{auth: auth, subjects: subjects}
}

// Middleware returns the echo middleware function.
func (a *Authenticator) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return renderUnauthenticated(c)
			}

			if a.subjects != nil {
				if subject, hit := a.subjects.Get(token); hit {
					c.Set(userIDContextKey, subject)
					return next(c)
				}
			}

			ident, err := a.auth.VerifyAccess(token)
			if err != nil {
				appErr := apperrors.From(err)
				return c.JSON(appErr.HTTPStatus, api.ErrorResponse{
					Code:    appErr.Code,
					Message: appErr.Message,
				})
			}

			if a.subjects != nil {
				a.subjects.Set(token, ident.UserID, ident.ExpiresAt)
			}
			c.Set(userIDContextKey, ident.UserID)
			return next(c)
		}
	}
}

// UserID returns the authenticated user id set by the middleware, or "".
func UserID(c echo.Context) string {
	id, _ := c.Get(userIDContextKey).(string)
	return id
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func renderUnauthenticated(c echo.Context) error {
	appErr := apperrors.Unauthenticated()
	return c.JSON(http.StatusUnauthorized, api.ErrorResponse{
		Code:    appErr.Code,
		Message: appErr.Message,
	})
}
