package marketecho

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"go.pilab.hu/market/domain"
	"go.pilab.hu/market/internal/federation"
	"go.pilab.hu/market/middleware"
)

const (
	oauthStateCookie = "oauth_state"
	userRoleCookie   = "user_role"
	stateCookieTTL   = 5 * time.Minute
)

// Login exchanges username (or email) and password for a session token.
func (a *API) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid login request")
	}
	if req.Username == "" || req.Password == "" {
		return domain.ErrInvalidCredentials
	}

	session, err := a.auth.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newTokenResponse(session))
}

// Logout revokes the presented token. The token must still pass the gate.
func (a *API) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	p, err := a.gate.Authorize(ctx, requestToken(c))
	if err != nil {
		return err
	}
	if err := a.auth.Logout(ctx, p.Claims); err != nil {
		return err
	}
	a.clearSessionCookies(c)
	return c.JSON(http.StatusOK, MessageResponse{Message: "Successfully logged out"})
}

// RefreshToken revokes the presented token and returns its successor.
// Malformed and expired tokens are a bad request; a revoked token is 401.
func (a *API) RefreshToken(c echo.Context) error {
	raw := requestToken(c)
	if raw == "" {
		return domain.ErrMissingToken
	}
	session, err := a.auth.Refresh(c.Request().Context(), raw)
	switch {
	case errors.Is(err, domain.ErrExpiredToken):
		return badRequest("Token has expired")
	case errors.Is(err, domain.ErrInvalidToken):
		return badRequest("Invalid token")
	case err != nil:
		return err
	}
	return c.JSON(http.StatusOK, newTokenResponse(session))
}

// GoogleLogin redirects the browser to Google's consent page with a fresh
// state bound to a short-lived cookie.
func (a *API) GoogleLogin(c echo.Context) error {
	state, err := newState()
	if err != nil {
		return fmt.Errorf("generate oauth state: %w", err)
	}
	c.SetCookie(&http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int(stateCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return c.Redirect(http.StatusFound, a.google.AuthCodeURL(state))
}

// GoogleCallback completes the provider flow: the state must match the
// cookie, the code is exchanged, and the session is handed to the frontend
// through same-site cookies.
func (a *API) GoogleCallback(c echo.Context) error {
	stateCookie, err := c.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != c.QueryParam("state") {
		log.Warn().Str("ip", c.RealIP()).Msg("OAuth state mismatch")
		return federation.ErrInvalidAuthState
	}
	c.SetCookie(&http.Cookie{Name: oauthStateCookie, Value: "", Path: "/", MaxAge: -1})

	if errParam := c.QueryParam("error"); errParam != "" {
		log.Warn().Str("error", errParam).Msg("Provider returned an error")
		return federation.ErrExchangeCodeFailed
	}
	code := c.QueryParam("code")
	if code == "" {
		return badRequest("missing authorization code")
	}

	ctx := c.Request().Context()
	info, err := a.google.Exchange(ctx, code)
	if err != nil {
		return err
	}
	session, err := a.auth.LoginWithProvider(ctx, info)
	if err != nil {
		return err
	}

	c.SetCookie(a.sessionCookie(middleware.AccessTokenCookie, session.AccessToken))
	c.SetCookie(a.sessionCookie(userRoleCookie, string(session.Role)))
	return c.Redirect(http.StatusFound, a.frontendRedirect)
}

// sessionCookie is readable by the frontend, which moves it into the
// Authorization header.
func (a *API) sessionCookie(name, value string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(a.tokens.TTL().Seconds()),
		Secure:   a.secureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}

func (a *API) clearSessionCookies(c echo.Context) {
	for _, name := range []string{middleware.AccessTokenCookie, userRoleCookie} {
		if _, err := c.Cookie(name); err == nil {
			c.SetCookie(&http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1})
		}
	}
}

func newState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
