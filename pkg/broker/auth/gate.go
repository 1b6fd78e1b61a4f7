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

package auth

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// SessionCookieName is the cookie carrying the opaque session token, per
// the design note.
const SessionCookieName = "vibe_session"

type principalKey struct{}

// PrincipalFromContext returns the request's resolved principal, set by
// Gate.Authenticate.
func PrincipalFromContext(ctx context.Context) (string, bool) {
	p, ok := ctx.Value(principalKey{}).(string)

	return p, ok
}

// OwnerLookup resolves a session_id to its owning principal, satisfied by
// *ownerstore.Store; declared here as an interface to avoid a dependency
// cycle between auth and ownerstore.
type OwnerLookup interface {
	Get(sid string) (string, bool)
}

// Gate is AuthzGate from the design: it resolves the calling
// principal and, for any request naming a session, enforces ownership.
type Gate struct {
	authenticator Authenticator // nil means authentication disabled
	owners        OwnerLookup
}

// NewGate builds a Gate. authenticator may be nil, meaning
// authentication is disabled and every request is AnonymousPrincipal.
func NewGate(authenticator Authenticator, owners OwnerLookup) *Gate {
	return &Gate{authenticator: authenticator, owners: owners}
}

// Authenticate implements stage 1 of the design: resolve the
// principal from the session cookie, or accept AnonymousPrincipal when
// authentication is disabled. isUpgrade controls whether a failure
// returns 401 (websocket upgrades) or a redirect to /login (regular
// requests).
func (g *Gate) Authenticate(w http.ResponseWriter, r *http.Request, isUpgrade bool) (string, bool) {
	if g.authenticator == nil || !g.authenticator.IsEnabled() {
		return AnonymousPrincipal, true
	}

	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		g.rejectUnauthenticated(w, r, isUpgrade)

		return "", false
	}

	principal, ok := g.authenticator.Validate(cookie.Value)
	if !ok {
		g.rejectUnauthenticated(w, r, isUpgrade)

		return "", false
	}

	return principal, true
}

func (g *Gate) rejectUnauthenticated(w http.ResponseWriter, r *http.Request, isUpgrade bool) {
	if isUpgrade {
		http.Error(w, "unauthorized", http.StatusUnauthorized)

		return
	}

	next := SafeRedirectTarget(r.URL.RequestURI())
	http.Redirect(w, r, "/login?next="+url.QueryEscape(next), http.StatusFound)
}

// AuthorizeSession implements stage 2 of the design: look up sid's
// owner and compare against principal. Returns (true, 0) on success, or
// (false, status) with the status to write (404 for an unowned session,
// 403 for a mismatched principal).
func (g *Gate) AuthorizeSession(principal, sid string) (bool, int) {
	owner, ok := g.owners.Get(sid)
	if !ok {
		return false, http.StatusNotFound
	}

	if owner != principal {
		return false, http.StatusForbidden
	}

	return true, 0
}

// SafeRedirectTarget validates next by design: only same-origin
// relative paths are accepted -- must begin with "/", must not begin
// with "//", and must have no scheme or host. Anything else falls back
// to "/".
func SafeRedirectTarget(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return "/"
	}

	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}

	return next
}

// WithPrincipal returns a context carrying principal, so downstream
// handlers can retrieve it via PrincipalFromContext.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}
