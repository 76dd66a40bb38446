package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coreos/go-oidc"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"flowportal/internal/config"
	"flowportal/internal/logging"
	"flowportal/pkg/models"
)

// MockKeySet satisfies oidc.KeySet to bypass signature verification
type MockKeySet struct{}

func (m *MockKeySet) VerifySignature(ctx context.Context, jwtToken string) ([]byte, error) {
	parts := strings.Split(jwtToken, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed jwt")
	}
	return base64.RawURLEncoding.DecodeString(parts[1])
}

func fakeToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	headerBytes, err := json.Marshal(map[string]any{
		"alg": "RS256",
		"typ": "JWT",
		"kid": "test-key",
	})
	require.NoError(t, err)
	payload, err := json.Marshal(claims)
	require.NoError(t, err)

	return base64.RawURLEncoding.EncodeToString(headerBytes) +
		"." + base64.RawURLEncoding.EncodeToString(payload) +
		"." + base64.RawURLEncoding.EncodeToString([]byte("fakesignature"))
}

func testVerifier(issuer, clientID string) *oidc.IDTokenVerifier {
	return oidc.NewVerifier(issuer, &MockKeySet{}, &oidc.Config{
		ClientID: clientID,
	})
}

func sessionClaims(issuer, clientID string) map[string]any {
	return map[string]any{
		"iss":   issuer,
		"aud":   clientID,
		"sub":   "test-user",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Add(-1 * time.Minute).Unix(),
		"email": "user@acme.com",
		"name":  "Test User",
		"roles": []string{"employee"},
	}
}

func newContext(req *http.Request) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestNew_DevBypass(t *testing.T) {
	a, err := New(context.Background(), &config.Config{
		Environment:   "DEV",
		DevModeBypass: true,
	}, logging.NewLogger())

	require.NoError(t, err)
	assert.True(t, a.authBypass)
	assert.Nil(t, a.verifier)
}

func TestNew_IncompleteConfig(t *testing.T) {
	_, err := New(context.Background(), &config.Config{
		Environment: "PROD",
	}, logging.NewLogger())

	assert.Error(t, err)
}

func TestRequireAuth_Bypass_SetsDevActor(t *testing.T) {
	a := &Auth{authBypass: true, logger: logging.NewLogger()}

	c, rec := newContext(httptest.NewRequest(http.MethodGet, "/leave-request/", nil))

	var actor models.Actor
	handler := a.RequireAuth(func(c echo.Context) error {
		actor, _ = c.Get("actor").(models.Actor)
		return c.NoContent(http.StatusOK)
	})

	require.NoError(t, handler(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dev@localhost", actor.Email)
	assert.True(t, actor.HasRole("employee"))
	assert.True(t, actor.HasRole("manager"))
}

func TestRequireAuth_ValidSession(t *testing.T) {
	issuer := "https://test-issuer.com"
	clientID := "test-client"
	a := &Auth{
		verifier: testVerifier(issuer, clientID),
		logger:   logging.NewLogger(),
	}

	req := httptest.NewRequest(http.MethodGet, "/leave-request/", nil)
	req.AddCookie(&http.Cookie{
		Name:  sessionCookie,
		Value: fakeToken(t, sessionClaims(issuer, clientID)),
	})
	c, rec := newContext(req)

	var actor models.Actor
	handler := a.RequireAuth(func(c echo.Context) error {
		actor, _ = c.Get("actor").(models.Actor)
		return c.NoContent(http.StatusOK)
	})

	require.NoError(t, handler(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user@acme.com", actor.Email)
	assert.Equal(t, "Test User", actor.Name)
	assert.Equal(t, []string{"employee"}, actor.Roles)
}

func TestRequireAuth_NoSession_RedirectsToLogin(t *testing.T) {
	a := &Auth{
		verifier: testVerifier("https://test-issuer.com", "test-client"),
		logger:   logging.NewLogger(),
	}

	c, rec := newContext(httptest.NewRequest(http.MethodGet, "/leave-request/", nil))

	handler := a.RequireAuth(func(c echo.Context) error {
		t.Fatal("next handler must not run")
		return nil
	})

	require.NoError(t, handler(c))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get(echo.HeaderLocation))
}

func TestRequireAuth_GarbageToken_RedirectsToLogin(t *testing.T) {
	a := &Auth{
		verifier: testVerifier("https://test-issuer.com", "test-client"),
		logger:   logging.NewLogger(),
	}

	req := httptest.NewRequest(http.MethodGet, "/leave-request/", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: "not-a-jwt"})
	c, rec := newContext(req)

	handler := a.RequireAuth(func(c echo.Context) error {
		t.Fatal("next handler must not run")
		return nil
	})

	require.NoError(t, handler(c))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get(echo.HeaderLocation))
}

func TestRequireAuth_MissingEmailClaim(t *testing.T) {
	issuer := "https://test-issuer.com"
	clientID := "test-client"
	a := &Auth{
		verifier: testVerifier(issuer, clientID),
		logger:   logging.NewLogger(),
	}

	claims := sessionClaims(issuer, clientID)
	delete(claims, "email")

	req := httptest.NewRequest(http.MethodGet, "/leave-request/", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: fakeToken(t, claims)})
	c, _ := newContext(req)

	handler := a.RequireAuth(func(c echo.Context) error {
		t.Fatal("next handler must not run")
		return nil
	})

	err := handler(c)
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
}

func TestLoginHandler_Bypass(t *testing.T) {
	a := &Auth{authBypass: true, logger: logging.NewLogger()}

	c, rec := newContext(httptest.NewRequest(http.MethodGet, "/login", nil))
	require.NoError(t, a.LoginHandler(c))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get(echo.HeaderLocation))
}

func TestLoginHandler_RedirectsToIssuer(t *testing.T) {
	a := &Auth{
		oauth2Config: &oauth2.Config{
			ClientID: "test-client",
			Endpoint: oauth2.Endpoint{AuthURL: "https://test-issuer.com/authorize"},
		},
		logger: logging.NewLogger(),
	}

	c, rec := newContext(httptest.NewRequest(http.MethodGet, "/login", nil))
	require.NoError(t, a.LoginHandler(c))

	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderLocation), "https://test-issuer.com/authorize")
	assert.Contains(t, rec.Header().Get("Set-Cookie"), "oauthstate=")
}

func TestCallbackHandler_RejectsBadState(t *testing.T) {
	a := &Auth{
		oauth2Config: &oauth2.Config{},
		logger:       logging.NewLogger(),
	}

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?state=other", nil)
	req.AddCookie(&http.Cookie{Name: "oauthstate", Value: "expected"})
	c, _ := newContext(req)

	err := a.CallbackHandler(c)
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.Code)
}

func TestLogoutHandler_ClearsSession(t *testing.T) {
	a := &Auth{logger: logging.NewLogger()}

	c, rec := newContext(httptest.NewRequest(http.MethodGet, "/logout", nil))
	require.NoError(t, a.LogoutHandler(c))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), sessionCookie+"=;")
}
