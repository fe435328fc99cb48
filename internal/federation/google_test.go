package federation_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.pilab.hu/market/internal/federation"
	"golang.org/x/oauth2"
)

func newGoogleServer(t *testing.T, userinfo string, status int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"dummy-access-token","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/oauth2/v3/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer dummy-access-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(userinfo))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newProvider(t *testing.T, server *httptest.Server) *federation.GoogleProvider {
	t.Helper()
	provider, err := federation.NewGoogleProvider(federation.GoogleConfig{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		RedirectURL:  "http://localhost:8000/api/v1/auth/google/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:   server.URL + "/auth",
			TokenURL:  server.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		UserInfoURL: server.URL + "/oauth2/v3/userinfo",
	})
	require.NoError(t, err)
	return provider
}

func TestGoogleProvider_Exchange(t *testing.T) {
	server := newGoogleServer(t, `{
		"sub": "1234567890",
		"given_name": "Test",
		"family_name": "User",
		"picture": "https://example.com/avatar.jpg",
		"email": "test.user@example.com",
		"email_verified": true
	}`, http.StatusOK)
	provider := newProvider(t, server)

	userInfo, err := provider.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, "1234567890", userInfo.ProviderUserID)
	assert.Equal(t, "test.user@example.com", userInfo.Email)
	assert.Equal(t, "Test", userInfo.FirstName)
	assert.Equal(t, "User", userInfo.LastName)
}

func TestGoogleProvider_ExchangeBadCode(t *testing.T) {
	provider := newProvider(t, newGoogleServer(t, `{}`, http.StatusOK))

	_, err := provider.Exchange(context.Background(), "bad-code")
	assert.ErrorIs(t, err, federation.ErrExchangeCodeFailed)
}

func TestGoogleProvider_UnverifiedEmail(t *testing.T) {
	server := newGoogleServer(t, `{"sub":"1","email":"x@example.com","email_verified":false}`, http.StatusOK)
	provider := newProvider(t, server)

	_, err := provider.Exchange(context.Background(), "good-code")
	assert.ErrorIs(t, err, federation.ErrEmailNotVerified)
}

func TestGoogleProvider_UserInfoError(t *testing.T) {
	server := newGoogleServer(t, `{"error":"boom"}`, http.StatusInternalServerError)
	provider := newProvider(t, server)

	_, err := provider.Exchange(context.Background(), "good-code")
	assert.ErrorIs(t, err, federation.ErrFetchUserInfoFailed)
}

func TestGoogleProvider_AuthCodeURL(t *testing.T) {
	provider := newProvider(t, newGoogleServer(t, `{}`, http.StatusOK))

	raw := provider.AuthCodeURL("state-123")
	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "state-123", q.Get("state"))
	assert.Equal(t, "test-client-id", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Contains(t, q.Get("scope"), "openid")
	assert.Contains(t, q.Get("scope"), "userinfo.email")
}

func TestNewGoogleProvider_Misconfigured(t *testing.T) {
	_, err := federation.NewGoogleProvider(federation.GoogleConfig{ClientID: "id"})
	assert.ErrorIs(t, err, federation.ErrProviderMisconfigured)
}
