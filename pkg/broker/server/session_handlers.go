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
	"encoding/json"
	"net/http"

	"vibe-broker/pkg/broker/brokererr"
	"vibe-broker/pkg/broker/monitor"
	"vibe-broker/pkg/broker/session"
)

type newSessionResponse struct {
	SessionID string `json:"session_id"`
	Redirect  string `json:"redirect"`
}

// handleNewSession implements POST /session/new.
func (s *Server) handleNewSession(w http.ResponseWriter, r *http.Request, principal string) {
	sid, err := session.NewSessionID()
	if err != nil {
		http.Error(w, "failed to allocate session id", http.StatusInternalServerError)

		return
	}

	if _, err := s.sessions.GetOrCreate(r.Context(), principal, sid); err != nil {
		status := brokererr.HTTPStatus(err)
		monitor.MetricsSessionsCreated.WithLabelValues("error").Inc()
		requestLogger(r).Warnf("session creation for principal %s failed: %v", principal, err)
		http.Error(w, err.Error(), status)

		return
	}

	monitor.MetricsSessionsCreated.WithLabelValues("ok").Inc()
	monitor.MetricsSessionsActive.Set(float64(len(s.sessions.List())))

	writeJSON(w, http.StatusOK, newSessionResponse{
		SessionID: sid,
		Redirect:  "/terminal/" + sid,
	})
}

type sessionStatusResponse struct {
	Status         string `json:"status"`
	CreatedAt      string `json:"created_at"`
	LastAccessedAt string `json:"last_accessed_at"`
}

// handleSessionStatus implements GET /session/{sid}/status.
func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request, _ string, sid string) {
	sess := s.sessions.Get(sid)
	if sess == nil {
		http.Error(w, "session not found", http.StatusNotFound)

		return
	}

	snap := sess.Snapshot()

	writeJSON(w, http.StatusOK, sessionStatusResponse{
		Status:         snap.State.String(),
		CreatedAt:      snap.CreatedAt.Format(httpTimeFormat),
		LastAccessedAt: snap.LastAccessedAt.Format(httpTimeFormat),
	})
}

type deleteSessionResponse struct {
	Status string `json:"status"`
}

// handleDeleteSession implements DELETE /session/{sid}. A request
// without ?force=true that hits a session still in use (ref_count>0)
// returns 409, per the end-to-end scenario. The ownership check already
// happened in requireSession; an owned sid with no table entry is an
// orphaned ownership row, which is removed and answered as deleted. A
// false return from Delete therefore means the session is still
// referenced or not READY, never "not owned".
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request, _ string, sid string) {
	force := r.URL.Query().Get("force") == "true"

	if s.sessions.Get(sid) == nil {
		if err := s.owners.Remove(sid); err != nil {
			requestLogger(r).Warnf("removing orphaned ownership row %s failed: %v", sid, err)
		}

		writeJSON(w, http.StatusOK, deleteSessionResponse{Status: "deleted"})

		return
	}

	if ok := s.sessions.Delete(r.Context(), sid, force); !ok {
		monitor.MetricsSessionsDeleted.WithLabelValues("false").Inc()
		requestLogger(r).Infof("refusing to delete session %s: still referenced", sid)
		http.Error(w, "session still in use", http.StatusConflict)

		return
	}

	monitor.MetricsSessionsDeleted.WithLabelValues(boolLabel(force)).Inc()
	monitor.MetricsSessionsActive.Set(float64(len(s.sessions.List())))

	writeJSON(w, http.StatusOK, deleteSessionResponse{Status: "deleted"})
}

type mySessionEntry struct {
	SessionID      string `json:"session_id"`
	Status         string `json:"status"`
	CreatedAt      string `json:"created_at"`
	LastAccessedAt string `json:"last_accessed_at"`
}

// handleMySessions implements GET /my/sessions: list principal's owned
// sessions, dropping (and forgetting) any ownership row whose session
// has no live table entry -- the lightweight per-request counterpart to
// the reconciler's periodic orphan sweep.
func (s *Server) handleMySessions(w http.ResponseWriter, r *http.Request, principal string) {
	var out []mySessionEntry

	for _, sid := range s.owners.ListBy(principal) {
		sess := s.sessions.Get(sid)
		if sess == nil {
			if err := s.owners.Remove(sid); err != nil {
				requestLogger(r).Warnf("dropping stale ownership row %s failed: %v", sid, err)
			}

			continue
		}

		snap := sess.Snapshot()
		out = append(out, mySessionEntry{
			SessionID:      sid,
			Status:         snap.State.String(),
			CreatedAt:      snap.CreatedAt.Format(httpTimeFormat),
			LastAccessedAt: snap.LastAccessedAt.Format(httpTimeFormat),
		})
	}

	writeJSON(w, http.StatusOK, out)
}

type adminSessionEntry struct {
	Principal      string `json:"principal"`
	Status         string `json:"status"`
	CreatedAt      string `json:"created_at"`
	LastAccessedAt string `json:"last_accessed_at"`
	RefCount       int    `json:"ref_count"`
}

// handleAdminSessions implements GET /sessions: admin-only, and per
// the design the listing never exposes session ids, only ownership and
// lifecycle state.
func (s *Server) handleAdminSessions(w http.ResponseWriter, r *http.Request, principal string) {
	if s.authn == nil || !s.authn.IsAdmin(principal) {
		http.Error(w, "forbidden", http.StatusForbidden)

		return
	}

	all := s.owners.AllSids()

	out := make([]adminSessionEntry, 0, len(all))

	for sid := range all {
		sess := s.sessions.Get(sid)
		if sess == nil {
			continue
		}

		owner, _ := s.owners.Get(sid)
		snap := sess.Snapshot()

		out = append(out, adminSessionEntry{
			Principal:      owner,
			Status:         snap.State.String(),
			CreatedAt:      snap.CreatedAt.Format(httpTimeFormat),
			LastAccessedAt: snap.LastAccessedAt.Format(httpTimeFormat),
			RefCount:       snap.RefCount,
		})
	}

	writeJSON(w, http.StatusOK, out)
}

// handleTerminalPage implements GET /terminal/{sid}: the terminal page
// shell. Ownership has already been verified by requireSession.
func (s *Server) handleTerminalPage(w http.ResponseWriter, r *http.Request, _ string, sid string) {
	renderTerminalPage(w, sid)
}

const httpTimeFormat = "2006-01-02T15:04:05Z07:00"

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}

	return "false"
}
