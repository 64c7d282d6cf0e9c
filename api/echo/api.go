// Package echo wires the service layer to HTTP routes and renders taxonomy
// errors uniformly.
package echo

import (
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/reviewpilot/crm-api/api"
	apperrors "github.com/reviewpilot/crm-api/errors"
	"github.com/reviewpilot/crm-api/services"
)

// API holds the HTTP handlers and their service dependencies.
type API struct {
	auth    *services.AuthService
	users   *services.UserService
	reviews *services.ReviewService
}

// NewAPI creates the HTTP surface over the given services.
func NewAPI(auth *services.AuthService, users *services.UserService, reviews *services.ReviewService) *API {
	return &API{auth: auth, users: users, reviews: reviews}
}

// RegisterRoutes mounts all routes. requireAuth guards the protected ones.
func (a *API) RegisterRoutes(e *echo.Echo, requireAuth echo.MiddlewareFunc) {
	e.POST("/auth/signup", a.Signup)
	e.POST("/auth/login", a.Login)
	e.POST("/auth/google", a.GoogleLogin)
	e.POST("/auth/refresh", a.Refresh)
	e.POST("/auth/logout", a.Logout)

	user := e.Group("/user", requireAuth)
	user.GET("/profile", a.GetProfile)
	user.PUT("/profile", a.UpdateProfile)
	user.POST("/password", a.ChangePassword)
	user.DELETE("/account", a.DeleteAccount)

	reviews := e.Group("/reviews", requireAuth)
	reviews.POST("/scrape", a.ScrapeReviews)
	reviews.GET("", a.ListReviews)
}

// renderError maps any error to the uniform response shape. Unclassified
// failures are logged with their cause and rendered as the generic
// internal_error; structural detail never reaches the client.
func renderError(c echo.Context, err error) error {
	appErr := apperrors.From(err)
	if !appErr.IsClientError() {
		log.Error().Err(appErr.Unwrap()).
			Str("path", c.Request().URL.Path).
			Msg("request failed")
	}
	return c.JSON(appErr.HTTPStatus, api.ErrorResponse{
		Code:    appErr.Code,
		Message: appErr.Message,
		Details: appErr.Details,
	})
}

func newAuthResponse(result *services.AuthResult, expiresIn int) api.AuthResponse {
	return api.AuthResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		TokenType:    "bearer",
		ExpiresIn:    expiresIn,
		User:         api.NewUserResponse(result.User),
	}
}
