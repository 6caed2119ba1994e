package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"designlab/config"
	"designlab/core"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const (
	stateCookie = "oauth_state"
	tokenTTL    = 7 * 24 * time.Hour
)

var ErrInvalidToken = errors.New("invalid token")

// AppClaims represents the custom claims for the JWT.
type AppClaims struct {
	jwt.RegisteredClaims
	Login     string `json:"login"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatarUrl"`
	Name      string `json:"name"`
	TenantID  string `json:"tenant"`
}

// OIDCClaims represents the claims from OIDC token
type OIDCClaims struct {
	Email             string `json:"email"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	Picture           string `json:"picture"`
	Sub               string `json:"sub"`
	Tenant            string `json:"tenant"`
}

// Authenticator issues and verifies session tokens and runs the login flow of the
// configured provider (OIDC first, then GitHub).
type Authenticator struct {
	secret        []byte
	defaultTenant string

	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
	provider string

	// fetchGitHubUser is swapped in tests.
	fetchGitHubUser func(ctx context.Context, client *http.Client) (*core.User, error)
}

// New builds an Authenticator from cfg. A provider that fails to initialize leaves login
// disabled but token verification working.
func New(ctx context.Context, cfg *config.Config) *Authenticator {
	a := &Authenticator{
		secret:          []byte(cfg.JWTSecret),
		defaultTenant:   cfg.DefaultTenant,
		fetchGitHubUser: fetchGitHubUser,
	}
	if len(a.secret) == 0 {
		logrus.Warn("JWT_SECRET is not set. Authentication will not work.")
	}

	oidcConfigured := cfg.OIDCIssuerURL != "" && cfg.OIDCClientID != ""
	githubConfigured := cfg.GitHubClientID != "" && cfg.GitHubClientSecret != ""

	switch {
	case oidcConfigured:
		logrus.Info("Initializing OIDC authentication provider.")
		provider, err := oidc.NewProvider(ctx, cfg.OIDCIssuerURL)
		if err != nil {
			logrus.WithError(err).Error("Failed to create OIDC provider")
			return a
		}
		a.provider = "oidc"
		a.oauth = &oauth2.Config{
			ClientID:     cfg.OIDCClientID,
			ClientSecret: cfg.OIDCClientSecret,
			RedirectURL:  cfg.OIDCRedirectURL,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
			Endpoint:     provider.Endpoint(),
		}
		a.verifier = provider.Verifier(&oidc.Config{ClientID: cfg.OIDCClientID})
	case githubConfigured:
		logrus.Info("Initializing GitHub authentication provider.")
		a.provider = "github"
		a.oauth = &oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  cfg.GitHubRedirectURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		}
	default:
		logrus.Warn("No authentication provider configured.")
	}
	return a
}

// NewWithSecret returns an Authenticator that only issues and verifies tokens.
func NewWithSecret(secret, defaultTenant string) *Authenticator {
	return &Authenticator{secret: []byte(secret), defaultTenant: defaultTenant, fetchGitHubUser: fetchGitHubUser}
}

func (a *Authenticator) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if a.oauth == nil {
		http.Error(w, "Authentication not configured", http.StatusInternalServerError)
		return
	}

	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		http.Error(w, "Failed to generate login state", http.StatusInternalServerError)
		return
	}
	state := hex.EncodeToString(b)

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Minute),
		HttpOnly: true,
		Secure:   r.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
	})

	var opts []oauth2.AuthCodeOption
	if a.provider == "oidc" {
		opts = append(opts, oauth2.AccessTypeOffline)
	}
	http.Redirect(w, r, a.oauth.AuthCodeURL(state, opts...), http.StatusTemporaryRedirect)
}

func (a *Authenticator) HandleCallback(w http.ResponseWriter, r *http.Request) {
	if a.oauth == nil {
		http.Error(w, "Authentication not configured", http.StatusInternalServerError)
		return
	}

	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != r.FormValue("state") {
		logrus.Warn("OAuth state mismatch")
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	code := r.FormValue("code")
	if code == "" {
		logrus.Error("no code in callback")
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	token, err := a.oauth.Exchange(r.Context(), code)
	if err != nil {
		logrus.WithError(err).Error("failed to exchange token")
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	var user *core.User
	if a.provider == "oidc" {
		user, err = a.oidcUser(r.Context(), token)
	} else {
		user, err = a.fetchGitHubUser(r.Context(), a.oauth.Client(r.Context(), token))
	}
	if err != nil {
		logrus.WithError(err).Error("failed to resolve user")
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	jwtToken, err := a.IssueToken(user)
	if err != nil {
		logrus.WithError(err).Error("failed to create JWT")
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	// Redirect to frontend with token
	http.Redirect(w, r, "/?token="+url.QueryEscape(jwtToken), http.StatusTemporaryRedirect)
}

func (a *Authenticator) oidcUser(ctx context.Context, token *oauth2.Token) (*core.User, error) {
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, errors.New("no id_token in token response")
	}
	idToken, err := a.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims OIDCClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to extract claims from ID token: %w", err)
	}

	user := &core.User{
		Subject:   claims.Sub,
		Login:     claims.PreferredUsername,
		Email:     claims.Email,
		AvatarURL: claims.Picture,
		Name:      claims.Name,
		TenantID:  claims.Tenant,
	}
	// If preferred_username is not available, use email
	if user.Login == "" && user.Email != "" {
		user.Login = user.Email
	}
	return user, nil
}

func fetchGitHubUser(ctx context.Context, client *http.Client) (*core.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.github.com/user", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get user from github: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read github response body: %w", err)
	}

	var githubUser struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		AvatarURL string `json:"avatar_url"`
		Name      string `json:"name"`
	}
	if err := json.Unmarshal(body, &githubUser); err != nil {
		return nil, fmt.Errorf("failed to unmarshal github user: %w", err)
	}

	return &core.User{
		Subject:   fmt.Sprintf("github:%d", githubUser.ID),
		Login:     githubUser.Login,
		AvatarURL: githubUser.AvatarURL,
		Name:      githubUser.Name,
	}, nil
}

// IssueToken signs a session token for user. Users without a tenant land in the default one.
func (a *Authenticator) IssueToken(user *core.User) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("JWT_SECRET is not set")
	}
	tenant := user.TenantID
	if tenant == "" {
		tenant = a.defaultTenant
	}
	now := time.Now()
	claims := AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Login:     user.Login,
		Email:     user.Email,
		AvatarURL: user.AvatarURL,
		Name:      user.Name,
		TenantID:  tenant,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *Authenticator) ParseJWT(tokenString string) (*AppClaims, error) {
	if len(a.secret) == 0 {
		return nil, ErrInvalidToken
	}
	token, err := jwt.ParseWithClaims(tokenString, &AppClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*AppClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	if claims.TenantID == "" {
		claims.TenantID = a.defaultTenant
	}
	return claims, nil
}

// User converts verified claims back into the identity they were issued for.
func (c *AppClaims) User() core.User {
	return core.User{
		Subject:   c.Subject,
		Login:     c.Login,
		Email:     c.Email,
		AvatarURL: c.AvatarURL,
		Name:      c.Name,
		TenantID:  c.TenantID,
	}
}
