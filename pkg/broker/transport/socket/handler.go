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

package socket

import (
	"fmt"
	"net/http"
	"strconv"

	"vibe-broker/pkg/broker/session"
)

const defaultCols, defaultRows = 80, 24

// SessionManager is the subset of *session.Manager the socket transport
// needs; declared as an interface so handler tests can use a fake.
type SessionManager interface {
	AcquireRef(sid string) (*session.Session, error)
	ReleaseRef(s *session.Session)
}

// Handle implements the per-session socket upgrade route of the design
// The caller (pkg/broker/server) has already run AuthzGate and resolved
// sid's ownership; Handle only deals with the transport lifecycle:
// acquire a reference, dial the agent, bridge, and always release the
// reference on the way out.
func Handle(w http.ResponseWriter, r *http.Request, mgr SessionManager, sid string, agentPort int) {
	s, err := mgr.AcquireRef(sid)
	if err != nil {
		client, upErr := Upgrade(w, r)
		if upErr == nil {
			CloseWithCode(client, CloseSessionNotFound, "session not found")
		}

		return
	}

	defer mgr.ReleaseRef(s)

	client, err := Upgrade(w, r)
	if err != nil {
		logger.Warnf("socket upgrade failed for session %s: %v", sid, err)

		return
	}
	defer client.Close()

	cols, rows := parseInitialSize(r)

	agentAddr := fmt.Sprintf("127.0.0.1:%d", agentPort)

	agent, err := Dial(agentAddr, cols, rows)
	if err != nil {
		logger.Warnf("dial agent for session %s failed: %v", sid, err)
		CloseWithCode(client, CloseSessionNotFound, "agent unreachable")

		return
	}
	defer agent.Close()

	Bridge(client, agent)
}

func parseInitialSize(r *http.Request) (cols, rows int) {
	cols, rows = defaultCols, defaultRows

	if v := r.URL.Query().Get("cols"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cols = n
		}
	}

	if v := r.URL.Query().Get("rows"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			rows = n
		}
	}

	return cols, rows
}
