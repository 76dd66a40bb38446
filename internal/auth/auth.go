// Package auth performs OpenID Connect session authentication for the portal
// and injects the acting user into the request context.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc"
	"github.com/labstack/echo/v4"
	"golang.org/x/oauth2"

	"flowportal/internal/api"
	"flowportal/internal/config"
	"flowportal/internal/logging"
	"flowportal/pkg/models"
)

const sessionCookie = "id_token"

// Auth contains configuration and helpers for performing OpenID Connect
// authentication against the configured issuer.
type Auth struct {
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
	logger       *logging.Logger
	authBypass   bool
}

// New creates a new Auth object using values from the application
// configuration. It establishes a connection to the provider and prepares an
// ID token verifier. In a DEV environment with dev_mode_bypass set, every
// request is attributed to a local development actor instead.
func New(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*Auth, error) {
	isDev := strings.ToUpper(cfg.Environment) == "DEV"
	shouldBypass := isDev && cfg.DevModeBypass

	var oauth2Config *oauth2.Config
	var verifier *oidc.IDTokenVerifier

	if !shouldBypass {
		if cfg.Auth.Issuer == "" || cfg.Auth.ClientID == "" ||
			cfg.Auth.ClientSecret == "" || cfg.Auth.RedirectURL == "" {
			return nil, errors.New("auth configuration is incomplete")
		}

		provider, err := oidc.NewProvider(ctx, cfg.Auth.Issuer)
		if err != nil {
			return nil, err
		}

		oauth2Config = &oauth2.Config{
			ClientID:     cfg.Auth.ClientID,
			ClientSecret: cfg.Auth.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.Auth.RedirectURL,
			Scopes:       []string{ScopeOpenID, ScopeProfile, ScopeEmail},
		}

		verifier = provider.Verifier(&oidc.Config{ClientID: cfg.Auth.ClientID})
	}

	return &Auth{
		oauth2Config: oauth2Config,
		verifier:     verifier,
		logger:       logger,
		authBypass:   shouldBypass,
	}, nil
}

// LoginHandler initiates the OAuth2 authorization code flow by redirecting the
// user to the issuer's authorization endpoint. A random state value is stored
// in a cookie to mitigate CSRF attacks.
func (a *Auth) LoginHandler(c echo.Context) error {
	if a.authBypass {
		return c.Redirect(http.StatusSeeOther, "/")
	}

	state, err := generateState()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to generate state")
	}

	c.SetCookie(&http.Cookie{
		Name:     "oauthstate",
		Value:    state,
		HttpOnly: true,
		Path:     "/",
	})

	return c.Redirect(http.StatusTemporaryRedirect, a.oauth2Config.AuthCodeURL(state))
}

// CallbackHandler handles the redirect back from the issuer. It verifies the
// state parameter, exchanges the code for tokens, validates the ID token, and
// sets a session cookie containing the raw ID token.
func (a *Auth) CallbackHandler(c echo.Context) error {
	if a.authBypass {
		return c.Redirect(http.StatusSeeOther, "/")
	}

	cookie, err := c.Cookie("oauthstate")
	if err != nil || c.QueryParam("state") != cookie.Value {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid state")
	}

	token, err := a.oauth2Config.Exchange(c.Request().Context(), c.QueryParam("code"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "token exchange failed")
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "no id_token in token response")
	}

	if _, err := a.verifier.Verify(c.Request().Context(), rawIDToken); err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "failed to verify id token")
	}

	c.SetCookie(&http.Cookie{
		Name:     sessionCookie,
		Value:    rawIDToken,
		HttpOnly: true,
		Path:     "/",
	})

	return c.Redirect(http.StatusSeeOther, "/")
}

// LogoutHandler clears the session cookie and redirects to the home page.
func (a *Auth) LogoutHandler(c echo.Context) error {
	c.SetCookie(&http.Cookie{
		Name:   sessionCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	return c.Redirect(http.StatusSeeOther, "/")
}

// RequireAuth is middleware that ensures a valid session is present and
// stores the acting user on the request context. Unauthenticated browser
// requests are redirected to the login page.
func (a *Auth) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if a.authBypass {
			api.SetActor(c, models.Actor{
				Email: "dev@localhost",
				Name:  "Local Developer",
				Roles: []string{"employee", "manager"},
			})
			return next(c)
		}

		cookie, err := c.Cookie(sessionCookie)
		if err != nil {
			return c.Redirect(http.StatusSeeOther, "/login")
		}

		token, err := a.verifier.Verify(c.Request().Context(), cookie.Value)
		if err != nil {
			a.logger.Debug("session token rejected", "error", err)
			return c.Redirect(http.StatusSeeOther, "/login")
		}

		var claims struct {
			Email string   `json:"email"`
			Name  string   `json:"name"`
			Roles []string `json:"roles"`
		}
		if err := token.Claims(&claims); err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "failed to parse token claims")
		}
		if claims.Email == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "token carries no email claim")
		}

		api.SetActor(c, models.Actor{
			Email: claims.Email,
			Name:  claims.Name,
			Roles: claims.Roles,
		})
		return next(c)
	}
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
