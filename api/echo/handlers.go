package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/reviewpilot/crm-api/api"
	apperrors "github.com/reviewpilot/crm-api/errors"
	"github.com/reviewpilot/crm-api/middleware"
	"github.com/reviewpilot/crm-api/services"
)

// Signup registers a new password account.
func (a *API) Signup(c echo.Context) error {
	var req api.SignupRequest
	if err := c.Bind(&req); err != nil {
		return renderError(c, apperrors.ValidationFailed(""))
	}

	result, err := a.auth.Signup(c.Request().Context(), req.Email, req.Username, req.Password, c.RealIP())
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(http.StatusCreated, newAuthResponse(result, a.expiresIn()))
}

// Login authenticates with email and password.
func (a *API) Login(c echo.Context) error {
	var req api.LoginRequest
	if err := c.Bind(&req); err != nil {
		return renderError(c, apperrors.ValidationFailed(""))
	}

	result, err := a.auth.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(http.StatusOK, newAuthResponse(result, a.expiresIn()))
}

// GoogleLogin signs a user in from a Google ID token.
func (a *API) GoogleLogin(c echo.Context) error {
	var req api.GoogleLoginRequest
	if err := c.Bind(&req); err != nil {
		return renderError(c, apperrors.ValidationFailed(""))
	}

	result, err := a.auth.ProviderLogin(c.Request().Context(), "google", req.IDToken)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(http.StatusOK, newAuthResponse(result, a.expiresIn()))
}

// Refresh rotates a refresh token and issues a new pair.
func (a *API) Refresh(c echo.Context) error {
	var req api.RefreshRequest
	if err := c.Bind(&req); err != nil {
		return renderError(c, apperrors.ValidationFailed(""))
	}

	result, err := a.auth.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(http.StatusOK, newAuthResponse(result, a.expiresIn()))
}

// Logout revokes the presented refresh token. Always succeeds.
func (a *API) Logout(c echo.Context) error {
	var req api.LogoutRequest
	if err := c.Bind(&req); err != nil {
		return renderError(c, apperrors.ValidationFailed(""))
	}

	if err := a.auth.Logout(c.Request().Context(), req.RefreshToken); err != nil {
		return renderError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Successfully logged out"})
}

// GetProfile returns the authenticated user's profile.
func (a *API) GetProfile(c echo.Context) error {
	user, err := a.users.GetProfile(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(http.StatusOK, api.NewUserResponse(user))
}

// UpdateProfile applies a partial profile update.
func (a *API) UpdateProfile(c echo.Context) error {
	var req api.UpdateProfileRequest
	if err := c.Bind(&req); err != nil {
		return renderError(c, apperrors.ValidationFailed(""))
	}

	user, err := a.users.UpdateProfile(c.Request().Context(), middleware.UserID(c), services.UpdateProfileParams{
		Username:      req.Username,
		Phone:         req.Phone,
		Company:       req.Company,
		GoogleMapsURL: req.GoogleMapsURL,
	})
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(http.StatusOK, api.NewUserResponse(user))
}

// ChangePassword replaces the account password.
func (a *API) ChangePassword(c echo.Context) error {
	var req api.ChangePasswordRequest
	if err := c.Bind(&req); err != nil {
		return renderError(c, apperrors.ValidationFailed(""))
	}

	if err := a.users.ChangePassword(c.Request().Context(), middleware.UserID(c),
		req.CurrentPassword, req.NewPassword); err != nil {
		return renderError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Password updated successfully"})
}

// DeleteAccount removes the authenticated account and all its sessions.
func (a *API) DeleteAccount(c echo.Context) error {
	if err := a.users.DeleteAccount(c.Request().Context(), middleware.UserID(c)); err != nil {
		return renderError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ScrapeReviews triggers a scrape of the given listing URL.
func (a *API) ScrapeReviews(c echo.Context) error {
	var req api.ScrapeRequest
	if err := c.Bind(&req); err != nil {
		return renderError(c, apperrors.ValidationFailed(""))
	}

	reviews, err := a.reviews.Scrape(c.Request().Context(), middleware.UserID(c), req.URL, req.MaxReviews)
	if err != nil {
		return renderError(c, err)
	}

	out := make([]api.ReviewResponse, 0, len(reviews))
	for _, review := range reviews {
		out = append(out, api.NewReviewResponse(review))
	}
	return c.JSON(http.StatusOK, out)
}

// ListReviews returns the authenticated user's stored reviews.
func (a *API) ListReviews(c echo.Context) error {
	reviews, err := a.reviews.List(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return renderError(c, err)
	}

	out := make([]api.ReviewResponse, 0, len(reviews))
	for _, review := range reviews {
		out = append(out, api.NewReviewResponse(review))
	}
	return c.JSON(http.StatusOK, out)
}

func (a *API) expiresIn() int {
	return int(a.auth.AccessTokenTTL().Seconds())
}
