package marketecho

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"go.pilab.hu/market/domain"
	"go.pilab.hu/market/internal/federation"
)

const credentialsDetail = "Couldn't validate credentials"

type errorKind struct {
	target error
	status int
	// detail replaces the error text when set. Login failures must not say
	// whether the account exists.
	detail string
}

var errorKinds = []errorKind{
	{domain.ErrInvalidCredentials, http.StatusUnauthorized, credentialsDetail},
	{domain.ErrMissingToken, http.StatusUnauthorized, "Not authenticated"},
	{domain.ErrExpiredToken, http.StatusUnauthorized, "Token has expired"},
	{domain.ErrRevokedToken, http.StatusUnauthorized, "Token has been revoked"},
	{domain.ErrInvalidToken, http.StatusUnauthorized, "Invalid token"},
	{domain.ErrForbidden, http.StatusForbidden, "Not enough permissions"},
	{domain.ErrNotFound, http.StatusNotFound, ""},
	{domain.ErrConflict, http.StatusConflict, ""},
	{domain.ErrInvalidInput, http.StatusUnprocessableEntity, ""},
	{domain.ErrUnavailable, http.StatusServiceUnavailable, "Service temporarily unavailable"},
	{federation.ErrInvalidAuthState, http.StatusBadRequest,
		"Authentication failed due to security check (state mismatch). Please try logging in again."},
	{federation.ErrEmailNotVerified, http.StatusUnauthorized, credentialsDetail},
	{federation.ErrExchangeCodeFailed, http.StatusBadGateway, "Authentication with the provider failed"},
	{federation.ErrFetchUserInfoFailed, http.StatusServiceUnavailable, "Authentication with the provider failed"},
}

// statusFor maps an error to its HTTP status and client-facing detail.
func statusFor(err error) (int, string) {
	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			if k.detail != "" {
				return k.status, k.detail
			}
			return k.status, err.Error()
		}
	}
	return http.StatusInternalServerError, "Internal server error"
}

// ErrorHandler renders every error as {"detail": ...}. 401 responses carry a
// Bearer challenge.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var (
		status int
		detail string
		he     *echo.HTTPError
	)
	if errors.As(err, &he) {
		status = he.Code
		detail = http.StatusText(he.Code)
		if msg, ok := he.Message.(string); ok && msg != "" {
			detail = msg
		}
	} else {
		status, detail = statusFor(err)
	}

	req := c.Request()
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("method", req.Method).Str("path", req.URL.Path).Msg("Request failed")
	}
	if status == http.StatusUnauthorized {
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
	}

	if req.Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, ErrorResponse{Detail: detail})
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to write error response")
	}
}

func badRequest(msg string) error {
	return echo.NewHTTPError(http.StatusBadRequest, msg)
}
