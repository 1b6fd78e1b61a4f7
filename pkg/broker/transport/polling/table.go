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

package polling

import (
	"fmt"
	"time"

	"github.com/sasha-s/go-deadlock"

	"vibe-broker/pkg/broker/session"
)

// SessionManager is the subset of *session.Manager the polling transport
// needs; an interface so tests can substitute a fake.
type SessionManager interface {
	AcquireRef(sid string) (*session.Session, error)
	ReleaseRef(s *session.Session)
}

// Table is the process-wide polling-transport table: one Transport per
// attached session, keyed by session_id. Its mutex is independent of
// SessionManager's L_mgr/L_s; by design, no component acquires L_t
// while holding L_mgr or L_s, and this table's own mutex is held only
// around map mutation, never across I/O.
type Table struct {
	mgr       SessionManager
	agentPort int

	mu          deadlock.Mutex
	transports  map[string]*Transport
	refHeldFor  map[string]*session.Session
}

// NewTable builds a Table bridging through mgr, dialing the agent's fixed
// internal port on 127.0.0.1:<session host_port>.
func NewTable(mgr SessionManager, agentPort int) *Table {
	return &Table{
		mgr:        mgr,
		agentPort:  agentPort,
		transports: make(map[string]*Transport),
		refHeldFor: make(map[string]*session.Session),
	}
}

// Attach implements the attach semantics: reuse a live
// transport if one exists (just resizing it), replace a dead one, or
// create a fresh one -- acquiring a session reference for the lifetime
// of the transport entry.
func (tb *Table) Attach(sid string, hostPort, cols, rows int) error {
	tb.mu.Lock()
	existing := tb.transports[sid]
	tb.mu.Unlock()

	if existing != nil {
		if existing.alive() {
			return existing.resize(cols, rows)
		}

		tb.Remove(sid)
	}

	s, err := tb.mgr.AcquireRef(sid)
	if err != nil {
		return err
	}

	agentAddr := fmt.Sprintf("127.0.0.1:%d", hostPort)

	t, err := newTransport(sid, agentAddr, cols, rows)
	if err != nil {
		tb.mgr.ReleaseRef(s)

		return err
	}

	tb.mu.Lock()
	tb.transports[sid] = t
	tb.refHeldFor[sid] = s
	tb.mu.Unlock()

	return nil
}

// Get returns the transport for sid, or nil.
func (tb *Table) Get(sid string) *Transport {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	return tb.transports[sid]
}

// Remove tears down and drops sid's transport, releasing its session
// reference. Idempotent.
func (tb *Table) Remove(sid string) {
	tb.mu.Lock()
	t := tb.transports[sid]
	s := tb.refHeldFor[sid]
	delete(tb.transports, sid)
	delete(tb.refHeldFor, sid)
	tb.mu.Unlock()

	if t != nil {
		t.close()
	}

	if s != nil {
		tb.mgr.ReleaseRef(s)
	}
}

// Sids returns every session_id with a live table entry, a snapshot safe
// to range over outside the lock -- used by the reconciler's reaper
// sweep.
func (tb *Table) Sids() []string {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	out := make([]string, 0, len(tb.transports))
	for sid := range tb.transports {
		out = append(out, sid)
	}

	return out
}

// ReapIfStale removes sid's transport if it is idle past idleTimeout or
// its upstream is no longer alive. Returns whether it reaped anything.
func (tb *Table) ReapIfStale(sid string) bool {
	t := tb.Get(sid)
	if t == nil {
		return false
	}

	stale := !t.alive() || time.Since(t.buf.idleSince()) > idleTimeout
	if stale {
		tb.Remove(sid)
	}

	return stale
}
