package marketecho

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.pilab.hu/market/domain"
)

// Register creates a customer or seller account. Public.
func (a *API) Register(role domain.Role) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req RegisterRequest
		if err := c.Bind(&req); err != nil {
			return badRequest("invalid account payload")
		}
		profile, err := a.accounts.Register(c.Request().Context(), role, req.toAccount(role))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, profile)
	}
}

// SetupAdmin creates the first admin account. It only succeeds while no
// admin exists.
func (a *API) SetupAdmin(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid account payload")
	}
	if _, err := a.accounts.SetupAdmin(c.Request().Context(), req.toAccount(domain.RoleAdmin)); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, MessageResponse{Message: "Admin account created successfully."})
}

func (a *API) GetMe(c echo.Context) error {
	return c.JSON(http.StatusOK, principal(c).Profile)
}

func (a *API) UpdateMe(c echo.Context) error {
	var req UpdateProfileRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid profile payload")
	}
	me := principal(c).Profile.Username
	profile, err := a.accounts.Update(c.Request().Context(), me, me, "", req.toUpdate())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, profile)
}

// DeleteMe removes the caller's account and revokes the token used.
func (a *API) DeleteMe(c echo.Context) error {
	ctx := c.Request().Context()
	p := principal(c)
	if err := a.accounts.Delete(ctx, p.Profile.Username, p.Profile.Username, ""); err != nil {
		return err
	}
	if err := a.auth.Logout(ctx, p.Claims); err != nil {
		return err
	}
	a.clearSessionCookies(c)
	return c.JSON(http.StatusOK, MessageResponse{Message: "The user account was deleted successfully."})
}

func (a *API) ChangePassword(c echo.Context) error {
	var req ChangePasswordRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid password payload")
	}
	me := principal(c).Profile.Username
	if err := a.accounts.ChangePassword(c.Request().Context(), me, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: "The password was updated."})
}

func (a *API) ChangeEmail(c echo.Context) error {
	var req ChangeEmailRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid email payload")
	}
	me := principal(c).Profile.Username
	profile, err := a.accounts.ChangeEmail(c.Request().Context(), me, req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, profile)
}

// GetUser reads one profile. An empty role searches every partition.
func (a *API) GetUser(role domain.Role) echo.HandlerFunc {
	return func(c echo.Context) error {
		profile, err := a.accounts.GetProfile(c.Request().Context(), c.Param("username"), role)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, profile)
	}
}

func (a *API) UpdateUser(role domain.Role) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req UpdateProfileRequest
		if err := c.Bind(&req); err != nil {
			return badRequest("invalid profile payload")
		}
		actor := principal(c).Profile.Username
		profile, err := a.accounts.Update(c.Request().Context(), actor, c.Param("username"), role, req.toUpdate())
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, profile)
	}
}

func (a *API) DeleteUser(role domain.Role) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor := principal(c).Profile.Username
		if err := a.accounts.Delete(c.Request().Context(), actor, c.Param("username"), role); err != nil {
			return err
		}
		return c.JSON(http.StatusOK, MessageResponse{Message: "The user account was deleted successfully."})
	}
}

// ListUsers lists one partition named by the :role path parameter.
func (a *API) ListUsers(c echo.Context) error {
	role, err := domain.ParseRole(c.Param("role"))
	if err != nil {
		return err
	}
	return a.ListRole(role)(c)
}

func (a *API) ListRole(role domain.Role) echo.HandlerFunc {
	return func(c echo.Context) error {
		offset, limit, err := pagination(c)
		if err != nil {
			return err
		}
		profiles, err := a.accounts.List(c.Request().Context(), role, offset, limit)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, profiles)
	}
}

func (a *API) Dashboard(c echo.Context) error {
	d, err := a.accounts.Dashboard(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

// ChangeRole moves a user to another partition. Tokens already issued keep
// working; the gate reads scopes from the migrated profile.
func (a *API) ChangeRole(c echo.Context) error {
	var req ChangeRoleRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid role payload")
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		return err
	}

	username := c.Param("username")
	actor := principal(c).Profile.Username
	profile, changed, err := a.accounts.ChangeRole(c.Request().Context(), actor, username, role)
	if err != nil {
		return err
	}
	if !changed {
		return c.JSON(http.StatusOK, MessageResponse{Message: fmt.Sprintf("User is already a %s", role)})
	}
	return c.JSON(http.StatusOK, profile)
}
