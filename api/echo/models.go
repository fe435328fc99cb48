package marketecho

import (
	"go.pilab.hu/market/domain"
	"go.pilab.hu/market/services"
)

// LoginRequest accepts form-encoded or JSON credentials.
type LoginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// TokenResponse is returned by login, refresh and the provider callback.
type TokenResponse struct {
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	Role        domain.Role     `json:"role"`
	Scopes      []string        `json:"scopes"`
	ExpiresAt   int64           `json:"expires_at"`
	Profile     *domain.Profile `json:"profile,omitempty"`
}

func newTokenResponse(s *services.Session) *TokenResponse {
	return &TokenResponse{
		AccessToken: s.AccessToken,
		TokenType:   s.TokenType,
		Role:        s.Role,
		Scopes:      domain.ScopeStrings(s.Scopes),
		ExpiresAt:   s.ExpiresAt,
		Profile:     s.Profile,
	}
}

// SellerFields are the business details a seller registers with.
type SellerFields struct {
	IdentityCard    string `json:"identity_card"`
	BusinessName    string `json:"business_name"`
	StorefrontName  string `json:"storefront_name"`
	Address         string `json:"address"`
	BusinessEmail   string `json:"business_email,omitempty"`
	BusinessAddress string `json:"business_address,omitempty"`
}

func (f SellerFields) toDomain() *domain.SellerDetails {
	return &domain.SellerDetails{
		IdentityCard:    f.IdentityCard,
		BusinessName:    f.BusinessName,
		StorefrontName:  f.StorefrontName,
		Address:         f.Address,
		BusinessEmail:   f.BusinessEmail,
		BusinessAddress: f.BusinessAddress,
	}
}

// RegisterRequest creates a customer, seller or the first admin. Seller
// fields are only read for sellers.
type RegisterRequest struct {
	Username   string `json:"username"`
	Email      string `json:"email,omitempty"`
	Password   string `json:"password"`
	FirstName  string `json:"first_name,omitempty"`
	MiddleName string `json:"middle_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	SellerFields
}

func (r *RegisterRequest) toAccount(role domain.Role) services.NewAccount {
	acc := services.NewAccount{
		Username:   r.Username,
		Email:      r.Email,
		Password:   r.Password,
		FirstName:  r.FirstName,
		MiddleName: r.MiddleName,
		LastName:   r.LastName,
	}
	if role == domain.RoleSeller {
		acc.Seller = r.SellerFields.toDomain()
	}
	return acc
}

// UpdateProfileRequest is a partial update; omitted fields are kept.
type UpdateProfileRequest struct {
	FirstName  *string       `json:"first_name"`
	MiddleName *string       `json:"middle_name"`
	LastName   *string       `json:"last_name"`
	Seller     *SellerFields `json:"seller"`
}

func (r *UpdateProfileRequest) toUpdate() services.AccountUpdate {
	upd := services.AccountUpdate{
		FirstName:  r.FirstName,
		MiddleName: r.MiddleName,
		LastName:   r.LastName,
	}
	if r.Seller != nil {
		upd.Seller = r.Seller.toDomain()
	}
	return upd
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type ChangeEmailRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ChangeRoleRequest struct {
	Role string `json:"role"`
}

type CategoryRequest struct {
	Name string `json:"name"`
}

type ProductRequest struct {
	Brand       string `json:"brand"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
}

type ProductUpdateRequest struct {
	Brand       *string `json:"brand"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Price       *int64  `json:"price"`
}

// MessageResponse acknowledges mutations that return no resource.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}
