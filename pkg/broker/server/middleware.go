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

	"github.com/gorilla/mux"

	"vibe-broker/pkg/broker/auth"
)

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)

	return id, ok
}

// requireAuth wraps a handler with AuthzGate's stage 1 only: resolve the
// principal, or reject per Gate.Authenticate. isUpgrade picks between a
// 401 and a redirect to /login.
func (s *Server) requireAuth(next func(w http.ResponseWriter, r *http.Request, principal string), isUpgrade bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := s.gate.Authenticate(w, r, isUpgrade)
		if !ok {
			return
		}

		next(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
	}
}

// requireSession wraps a handler with both AuthzGate stages: resolve the
// principal, then verify it owns the {sid} path variable.
func (s *Server) requireSession(next func(w http.ResponseWriter, r *http.Request, principal, sid string)) http.HandlerFunc {
	return s.requireAuth(func(w http.ResponseWriter, r *http.Request, principal string) {
		sid := mux.Vars(r)["sid"]

		if ok, status := s.gate.AuthorizeSession(principal, sid); !ok {
			http.Error(w, http.StatusText(status), status)

			return
		}

		next(w, r, principal, sid)
	}, false)
}

// requireSessionUpgrade is requireSession for the websocket upgrade
// route: an unauthenticated caller gets the plain 401 response that
// Gate.Authenticate writes for upgrade requests, and an authenticated
// caller who may not use the session gets a closure code instead of an
// HTTP error, since there is no browser navigation to redirect.
func (s *Server) requireSessionUpgrade(next func(w http.ResponseWriter, r *http.Request, principal, sid string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := s.gate.Authenticate(w, r, true)
		if !ok {
			return
		}

		sid := mux.Vars(r)["sid"]

		ok, status := s.gate.AuthorizeSession(principal, sid)
		if !ok {
			s.rejectUpgrade(w, r, status)

			return
		}

		next(w, r, principal, sid)
	}
}
