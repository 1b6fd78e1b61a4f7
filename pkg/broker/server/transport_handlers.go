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
	"net/http"

	"vibe-broker/pkg/broker/transport/socket"
)

// handleSocket implements GET /terminal/{sid}/ws: the full-duplex
// upgrade. Ownership has already been verified by requireSessionUpgrade;
// socket.Handle owns the rest of the transport's lifecycle.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request, _ string, sid string) {
	sess := s.sessions.Get(sid)
	if sess == nil {
		s.rejectUpgrade(w, r, http.StatusNotFound)

		return
	}

	socket.Handle(w, r, s.sessions, sid, sess.HostPort)
}

// rejectUpgrade completes the websocket handshake just far enough to
// send the closure code the design names, then closes -- there is no
// HTTP status to return once the upgrade has started.
func (s *Server) rejectUpgrade(w http.ResponseWriter, r *http.Request, httpStatus int) {
	code := socket.CloseSessionNotFound

	switch httpStatus {
	case http.StatusUnauthorized:
		code = socket.CloseUnauthorized
	case http.StatusForbidden:
		code = socket.CloseForbidden
	}

	conn, err := socket.Upgrade(w, r)
	if err != nil {
		return
	}

	socket.CloseWithCode(conn, code, http.StatusText(httpStatus))
}

// handlePollConnect implements POST /terminal/{sid}/connect.
func (s *Server) handlePollConnect(w http.ResponseWriter, r *http.Request, _ string, sid string) {
	sess := s.sessions.Get(sid)
	if sess == nil {
		http.Error(w, "session not found", http.StatusNotFound)

		return
	}

	s.polling.Connect(w, r, sid, sess.HostPort)
}

// handlePoll implements GET /terminal/{sid}/poll.
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request, _ string, sid string) {
	s.polling.Poll(w, r, sid)
}

// handlePollInput implements POST /terminal/{sid}/input.
func (s *Server) handlePollInput(w http.ResponseWriter, r *http.Request, _ string, sid string) {
	s.polling.Input(w, r, sid)
}

// handlePollResize implements POST /terminal/{sid}/resize.
func (s *Server) handlePollResize(w http.ResponseWriter, r *http.Request, _ string, sid string) {
	s.polling.Resize(w, r, sid)
}

// handlePollDisconnect implements POST /terminal/{sid}/disconnect.
func (s *Server) handlePollDisconnect(w http.ResponseWriter, r *http.Request, _ string, sid string) {
	s.polling.Disconnect(w, r, sid)
}
