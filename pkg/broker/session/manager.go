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

package session

import (
	"fmt"

	"github.com/sasha-s/go-deadlock"

	"vibe-broker/pkg/broker/brokererr"
	"vibe-broker/pkg/broker/ownerstore"
	"vibe-broker/pkg/broker/ports"
	"vibe-broker/pkg/broker/runtime"
	"vibe-broker/pkg/common/logutil"
)

var logger = logutil.GetLogger("session")

// Config is everything the Manager needs to spawn and place a session's
// container. It is the session-relevant subset of cmd/vibe-broker/app's
// root Option.
type Config struct {
	ContainerImage        string
	ContainerInternalPort int
	WorkspaceRoot         string
	MaxSessionsPerUser    int
	MemoryBytes           int64
	CPUQuota              int64 // 0 means unlimited
}

// Manager holds every live Session. mu is L_mgr; each
// Session's own mutex is L_s. Ordering is always mu before a Session's
// mutex, never the other way, and neither is ever held across runtime or
// disk I/O.
type Manager struct {
	cfg    Config
	rt     runtime.ContainerRuntime
	owners *ownerstore.Store
	ports  *ports.Allocator

	mu       deadlock.Mutex
	sessions map[string]*Session

	creationMu    deadlock.Mutex
	creationLocks map[string]*deadlock.Mutex
}

// New constructs a Manager. portLow/portHigh define the allocator's range.
func New(cfg Config, rt runtime.ContainerRuntime, owners *ownerstore.Store, portLow, portHigh int) *Manager {
	return &Manager{
		cfg:           cfg,
		rt:            rt,
		owners:        owners,
		ports:         ports.New(portLow, portHigh),
		sessions:      make(map[string]*Session),
		creationLocks: make(map[string]*deadlock.Mutex),
	}
}

// Get returns the in-memory session for sid, or nil if none exists. It
// does not consult the runtime.
func (m *Manager) Get(sid string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.sessions[sid]
}

// List returns a snapshot of every session currently in the table.
func (m *Manager) List() []Snapshot {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	out := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.snapshot())
	}

	return out
}

// AcquireRef increments sid's reference count if it is READY. Called by a
// transport on attach.
func (m *Manager) AcquireRef(sid string) (*Session, error) {
	s := m.Get(sid)
	if s == nil {
		return nil, brokererr.NotFound(fmt.Sprintf("session %s not found", sid))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady {
		return nil, brokererr.NotFound(fmt.Sprintf("session %s is not ready", sid))
	}

	s.refCount++

	return s, nil
}

// ReleaseRef decrements s's reference count, clamped at zero. Called by a
// transport on detach, always, even on abnormal termination.
func (m *Manager) ReleaseRef(s *Session) {
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refCount == 0 {
		logger.Errorf("FatalInvariantViolation: releaseRef on session %s with ref_count already zero", s.SessionID)

		return
	}

	s.refCount--
}

// creationLockFor returns (creating if absent) the per-principal mutex
// used to serialize getOrCreate calls so the MAX_SESSIONS_PER_USER check
// is atomic with the insert.
func (m *Manager) creationLockFor(principal string) *deadlock.Mutex {
	m.creationMu.Lock()
	defer m.creationMu.Unlock()

	l, ok := m.creationLocks[principal]
	if !ok {
		l = &deadlock.Mutex{}
		m.creationLocks[principal] = l
	}

	return l
}

func (m *Manager) insertLocked(s *Session) {
	m.sessions[s.SessionID] = s
}

func (m *Manager) removeLocked(sid string) {
	delete(m.sessions, sid)
}
