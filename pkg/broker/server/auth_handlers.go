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

package server

import (
	"context"
	"net/http"

	"vibe-broker/pkg/broker/auth"
	"vibe-broker/pkg/broker/monitor"
)

// oidcLoginner is implemented by oidcauth.Authenticator. It is declared
// here, not in package auth, because BeginLogin/FinishLogin are specific
// to the browser-redirect flow and are not part of every Authenticator
// backend's contract -- localauth has no use for them.
type oidcLoginner interface {
	BeginLogin(w http.ResponseWriter, r *http.Request, next string)
	FinishLogin(ctx context.Context, r *http.Request) (principal, cookie, next string, err error)
}

// handleIndex implements GET /: an anonymous deployment gets the landing
// page without a login prompt; a caller with a valid cookie on an
// authenticated deployment goes to /my/sessions; everything else gets
// the landing page with a login prompt.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.authn == nil || !s.authn.IsEnabled() {
		renderIndexPage(w, false)

		return
	}

	if cookie, err := r.Cookie(auth.SessionCookieName); err == nil {
		if _, ok := s.authn.Validate(cookie.Value); ok {
			http.Redirect(w, r, "/my/sessions", http.StatusFound)

			return
		}
	}

	renderIndexPage(w, true)
}

// handleLoginPage implements GET /login. An OIDC-backed Authenticator
// skips the form entirely and redirects straight into the provider's
// authorization endpoint.
func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if s.authn == nil {
		http.Redirect(w, r, "/", http.StatusFound)

		return
	}

	next := auth.SafeRedirectTarget(r.URL.Query().Get("next"))

	if oidc, ok := s.authn.(oidcLoginner); ok {
		oidc.BeginLogin(w, r, next)

		return
	}

	renderLoginPage(w, next, "")
}

// handleOIDCCallback implements GET /login/callback: the authorization
// code redirect target. It is a no-op for any Authenticator that does
// not implement oidcLoginner.
func (s *Server) handleOIDCCallback(w http.ResponseWriter, r *http.Request) {
	oidc, ok := s.authn.(oidcLoginner)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)

		return
	}

	principal, cookie, next, err := oidc.FinishLogin(r.Context(), r)
	if err != nil {
		monitor.MetricsLoginFailures.WithLabelValues("oidc_callback").Inc()
		http.Error(w, "login failed", http.StatusUnauthorized)

		return
	}

	logger.Infof("oidc login succeeded for principal %s", principal)

	http.SetCookie(w, s.sessionCookie(cookie))
	http.Redirect(w, r, next, http.StatusFound)
}

// handleLoginSubmit implements POST /login: the local credential form
// path. OIDC-backed deployments never reach this with valid credentials
// (Authenticate always returns false there); they authenticate through
// the redirect dance the OIDC package's own BeginLogin/FinishLogin
// methods drive, reached through this router's GET /login and
// GET /login/callback handlers.
func (s *Server) handleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	if s.authn == nil {
		http.Redirect(w, r, "/", http.StatusFound)

		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)

		return
	}

	principal := r.FormValue("username")
	secret := r.FormValue("password")
	next := auth.SafeRedirectTarget(r.FormValue("next"))

	address := auth.ClientAddress(r)

	if s.limiter.IsBlocked(principal, address) {
		monitor.MetricsLoginFailures.WithLabelValues("rate_limited").Inc()
		renderLoginPage(w, next, "too many attempts, try again later")

		return
	}

	if !s.authn.Authenticate(principal, secret) {
		s.limiter.RecordFailure(principal, address)
		monitor.MetricsLoginFailures.WithLabelValues("bad_credentials").Inc()
		renderLoginPage(w, next, "invalid username or password")

		return
	}

	s.limiter.ClearOnSuccess(principal, address)

	cookie, err := s.authn.CreateSession(principal)
	if err != nil {
		http.Error(w, "failed to create session", http.StatusInternalServerError)

		return
	}

	http.SetCookie(w, s.sessionCookie(cookie))
	http.Redirect(w, r, next, http.StatusFound)
}

// handleLogout implements GET /logout.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if s.authn != nil {
		if cookie, err := r.Cookie(auth.SessionCookieName); err == nil {
			s.authn.DestroySession(cookie.Value)
		}
	}

	http.SetCookie(w, s.expiredSessionCookie())
	http.Redirect(w, r, "/login", http.StatusFound)
}

// sessionCookie builds the vibe_session cookie with the attributes
// the design note fixes: HttpOnly, Secure, SameSite=Strict,
// Path=/, Max-Age = Authenticator.SessionTTL(). Secure is unconditional;
// a local test harness must inject a proxy or use a dedicated test hook
// rather than relax this in production code.
func (s *Server) sessionCookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(s.authn.SessionTTL().Seconds()),
	}
}

func (s *Server) expiredSessionCookie() *http.Cookie {
	return &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
	}
}
