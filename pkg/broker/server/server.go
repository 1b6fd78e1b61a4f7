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

// Package server wires every external collaborator -- the session
// manager, the Authenticator, the two transports, and the workspace
// archive helpers -- into the HTTP surface: one place that owns the
// router and delegates everything else.
package server

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"vibe-broker/pkg/broker/auth"
	"vibe-broker/pkg/broker/monitor"
	"vibe-broker/pkg/broker/ownerstore"
	"vibe-broker/pkg/broker/session"
	"vibe-broker/pkg/broker/transport/polling"
	"vibe-broker/pkg/common/logutil"
)

var logger = logutil.GetLogger("server")

// Server owns the router and every handler's dependencies. Handlers are
// plain methods on *Server so they share its fields without a context
// blob. A session's host port lives on the Session itself, so the
// transport handlers never need a separate agent-port configuration
// value here.
type Server struct {
	sessions *session.Manager
	owners   *ownerstore.Store
	authn    auth.Authenticator // nil means authentication disabled
	limiter  *auth.RateLimiter
	gate     *auth.Gate
	polling  *polling.Table
}

// New builds a Server. authn may be nil (anonymous deployment).
func New(sessions *session.Manager, owners *ownerstore.Store, authn auth.Authenticator, pollingTable *polling.Table) *Server {
	return &Server{
		sessions: sessions,
		owners:   owners,
		authn:    authn,
		limiter:  auth.NewRateLimiter(),
		gate:     auth.NewGate(authn, owners),
		polling:  pollingTable,
	}
}

// Router builds the complete mux.Router: every route of the design,
// wrapped in request-correlation logging and Prometheus instrumentation.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)

	r.HandleFunc("/login", s.handleLoginPage).Methods(http.MethodGet)
	r.HandleFunc("/login", s.handleLoginSubmit).Methods(http.MethodPost)
	r.HandleFunc("/login/callback", s.handleOIDCCallback).Methods(http.MethodGet)
	r.HandleFunc("/logout", s.handleLogout).Methods(http.MethodGet, http.MethodPost)

	r.HandleFunc("/session/new", s.requireAuth(s.handleNewSession, false)).Methods(http.MethodPost)
	r.HandleFunc("/session/{sid}/status", s.requireSession(s.handleSessionStatus)).Methods(http.MethodGet)
	r.HandleFunc("/session/{sid}", s.requireSession(s.handleDeleteSession)).Methods(http.MethodDelete)

	r.HandleFunc("/terminal/{sid}", s.requireSession(s.handleTerminalPage)).Methods(http.MethodGet)
	r.HandleFunc("/terminal/{sid}/ws", s.requireSessionUpgrade(s.handleSocket)).Methods(http.MethodGet)
	r.HandleFunc("/terminal/{sid}/connect", s.requireSession(s.handlePollConnect)).Methods(http.MethodPost)
	r.HandleFunc("/terminal/{sid}/poll", s.requireSession(s.handlePoll)).Methods(http.MethodGet)
	r.HandleFunc("/terminal/{sid}/input", s.requireSession(s.handlePollInput)).Methods(http.MethodPost)
	r.HandleFunc("/terminal/{sid}/resize", s.requireSession(s.handlePollResize)).Methods(http.MethodPost)
	r.HandleFunc("/terminal/{sid}/disconnect", s.requireSession(s.handlePollDisconnect)).Methods(http.MethodPost)

	r.HandleFunc("/workspace/{sid}/download", s.requireSession(s.handleWorkspaceDownload)).Methods(http.MethodGet)
	r.HandleFunc("/workspace/{sid}/upload", s.requireSession(s.handleWorkspaceUpload)).Methods(http.MethodPost)

	r.HandleFunc("/my/sessions", s.requireAuth(s.handleMySessions, false)).Methods(http.MethodGet)
	r.HandleFunc("/sessions", s.requireAuth(s.handleAdminSessions, false)).Methods(http.MethodGet)

	r.Use(requestIDMiddleware)

	return monitor.WrapPrometheus(r)
}

type requestIDKey struct{}

// requestIDMiddleware stamps every request with a correlation id. A
// fresh uuid rather than r.RemoteAddr, since the multi-tenant surface
// wants an id a client can't spoof.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(withRequestID(r.Context(), id)))
	})
}

func requestLogger(r *http.Request) *logutilEntry {
	id, _ := requestIDFromContext(r.Context())

	return newEntry(id, r.Method, r.URL.Path)
}

// logutilEntry is a tiny indirection over logrus's WithFields so handler
// files don't each import logrus directly.
type logutilEntry struct {
	id, method, path string
}

func newEntry(id, method, path string) *logutilEntry {
	return &logutilEntry{id: id, method: method, path: path}
}

func (e *logutilEntry) Infof(format string, args ...interface{}) {
	logger.WithField("request_id", e.id).WithField("method", e.method).WithField("path", e.path).Infof(format, args...)
}

func (e *logutilEntry) Warnf(format string, args ...interface{}) {
	logger.WithField("request_id", e.id).WithField("method", e.method).WithField("path", e.path).Warnf(format, args...)
}
