// Copyright The Vibe Broker Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package oidcauth is a reference auth.Authenticator that delegates
// credential verification to an external OIDC provider via an
// authorization-code flow, registering itself under the name "oidc".
// Once the provider redirects back with a code, the resolved principal
// rides the same broker-local opaque-cookie session table localauth
// uses (pkg/broker/auth/cookiesession), so AuthzGate treats the two
// backends identically.
package oidcauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gorilla/securecookie"
	"golang.org/x/oauth2"

	"vibe-broker/pkg/broker/auth"
	"vibe-broker/pkg/broker/auth/cookiesession"
)

func init() {
	auth.RegisterFactory("oidc", func(params map[string]string) (auth.Authenticator, error) {
		return New(context.Background(), params)
	})
}

const (
	defaultSessionTTL = 24 * time.Hour
	stateCookieName   = "vibe_oidc_state"
	stateTTL          = 10 * time.Minute
)

// Authenticator is the oidcauth reference Authenticator.
type Authenticator struct {
	provider     *oidc.Provider
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
	usernameAttr string
	adminGroup   string

	sessions    *cookiesession.Store
	stateCookie *securecookie.SecureCookie

	adminsMu sync.Mutex
	admins   map[string]bool
}

type stateValue struct {
	State string
	Next  string
}

// New builds an Authenticator from factory params: issuer, client_id,
// client_secret, redirect_url are required; username_claim (default
// "preferred_username") and admin_group (optional) are read from the
// provider's claims to resolve the principal and admin flag.
func New(ctx context.Context, params map[string]string) (*Authenticator, error) {
	issuer := params["issuer"]
	clientID := params["client_id"]
	clientSecret := params["client_secret"]
	redirectURL := params["redirect_url"]

	if issuer == "" || clientID == "" || clientSecret == "" || redirectURL == "" {
		return nil, fmt.Errorf("oidcauth: issuer, client_id, client_secret, and redirect_url are required")
	}

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidcauth: creating provider: %w", err)
	}

	usernameAttr := params["username_claim"]
	if usernameAttr == "" {
		usernameAttr = "preferred_username"
	}

	hashKey := make([]byte, 64)
	if _, err := rand.Read(hashKey); err != nil {
		return nil, fmt.Errorf("oidcauth: generating state signing key: %w", err)
	}

	blockKey := make([]byte, 32)
	if _, err := rand.Read(blockKey); err != nil {
		return nil, fmt.Errorf("oidcauth: generating session key: %w", err)
	}

	sessionHashKey := make([]byte, 64)
	if _, err := rand.Read(sessionHashKey); err != nil {
		return nil, fmt.Errorf("oidcauth: generating session key: %w", err)
	}

	return &Authenticator{
		provider: provider,
		oauth2Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email", "groups"},
		},
		verifier:     provider.Verifier(&oidc.Config{ClientID: clientID}),
		usernameAttr: usernameAttr,
		adminGroup:   params["admin_group"],
		sessions:     cookiesession.New(sessionHashKey, blockKey, defaultSessionTTL),
		stateCookie:  securecookie.New(hashKey, nil),
		admins:       make(map[string]bool),
	}, nil
}

// Authenticate is a no-op for oidcauth: the browser authorization-code
// redirect owns credential verification, not a direct username/password
// exchange.
func (a *Authenticator) Authenticate(principal, secret string) bool {
	return false
}

// Validate resolves the vibe_session cookie value to a principal.
func (a *Authenticator) Validate(cookie string) (string, bool) {
	return a.sessions.Validate(cookie)
}

// CreateSession mints a new opaque, signed session cookie for principal.
func (a *Authenticator) CreateSession(principal string) (string, error) {
	return a.sessions.Create(principal)
}

// DestroySession invalidates cookie.
func (a *Authenticator) DestroySession(cookie string) {
	a.sessions.Destroy(cookie)
}

// PurgeExpired drops expired sessions.
func (a *Authenticator) PurgeExpired() int {
	return a.sessions.PurgeExpired()
}

// IsEnabled is always true: oidcauth only exists when configured.
func (a *Authenticator) IsEnabled() bool {
	return true
}

// SessionTTL returns the configured session lifetime.
func (a *Authenticator) SessionTTL() time.Duration {
	return a.sessions.TTL()
}

// IsAdmin reports whether principal's last-seen group claim included
// the configured admin group. Unset admin_group means nobody is admin.
func (a *Authenticator) IsAdmin(principal string) bool {
	a.adminsMu.Lock()
	defer a.adminsMu.Unlock()

	return a.admins[principal]
}

// BeginLogin starts the authorization-code flow: it stashes a signed
// state value (CSRF nonce plus the post-login redirect target) in a
// short-lived cookie and redirects the browser to the provider.
func (a *Authenticator) BeginLogin(w http.ResponseWriter, r *http.Request, next string) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		http.Error(w, "failed to generate state", http.StatusInternalServerError)

		return
	}

	state := base64.RawURLEncoding.EncodeToString(raw)

	encoded, err := a.stateCookie.Encode(stateCookieName, stateValue{State: state, Next: next})
	if err != nil {
		http.Error(w, "failed to encode state", http.StatusInternalServerError)

		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(stateTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, a.oauth2Config.AuthCodeURL(state), http.StatusFound)
}

// FinishLogin completes the authorization-code flow from the provider's
// callback: verifies state, exchanges the code, verifies the ID token,
// resolves the principal from usernameAttr, and mints a broker session
// cookie. Returns the principal, the signed session cookie value, and
// the next-URL to redirect to.
func (a *Authenticator) FinishLogin(ctx context.Context, r *http.Request) (principal, cookie, next string, err error) {
	stateCookie, cerr := r.Cookie(stateCookieName)
	if cerr != nil {
		return "", "", "", fmt.Errorf("oidcauth: missing state cookie: %w", cerr)
	}

	var sv stateValue
	if err := a.stateCookie.Decode(stateCookieName, stateCookie.Value, &sv); err != nil {
		return "", "", "", fmt.Errorf("oidcauth: invalid state cookie: %w", err)
	}

	if got := r.URL.Query().Get("state"); got == "" || got != sv.State {
		return "", "", "", fmt.Errorf("oidcauth: state mismatch")
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		return "", "", "", fmt.Errorf("oidcauth: missing authorization code")
	}

	token, err := a.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return "", "", "", fmt.Errorf("oidcauth: exchanging code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return "", "", "", fmt.Errorf("oidcauth: no id_token in token response")
	}

	idToken, err := a.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return "", "", "", fmt.Errorf("oidcauth: verifying id_token: %w", err)
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return "", "", "", fmt.Errorf("oidcauth: parsing claims: %w", err)
	}

	username, _ := claims[a.usernameAttr].(string)
	if username == "" {
		return "", "", "", fmt.Errorf("oidcauth: claim %q missing or empty", a.usernameAttr)
	}

	if a.adminGroup != "" {
		a.rememberAdmin(username, claims)
	}

	sessionCookie, err := a.sessions.Create(username)
	if err != nil {
		return "", "", "", fmt.Errorf("oidcauth: creating session: %w", err)
	}

	if sv.Next == "" {
		sv.Next = "/"
	}

	return username, sessionCookie, sv.Next, nil
}

// rememberAdmin records whether username's groups claim includes the
// configured admin group, so later IsAdmin calls (which carry only the
// principal, not the claims) can answer without a second token fetch.
func (a *Authenticator) rememberAdmin(username string, claims map[string]interface{}) {
	isAdmin := false

	groups, _ := claims["groups"].([]interface{})
	for _, g := range groups {
		if s, ok := g.(string); ok && strings.EqualFold(s, a.adminGroup) {
			isAdmin = true

			break
		}
	}

	a.adminsMu.Lock()
	a.admins[username] = isAdmin
	a.adminsMu.Unlock()
}
