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

// Package session implements the SessionManager: the state machine that
// owns session_id -> container mappings, their host port, their
// reference count, and the serialization around creating and tearing them
// down. This is the largest single component in the broker.
package session

import (
	"time"

	"github.com/sasha-s/go-deadlock"
)

// State is a Session's position in the CREATING -> READY -> DELETING
// lifecycle.
type State int

const (
	StateCreating State = iota
	StateReady
	StateDeleting
)

func (s State) String() string {
	switch s {
	case StateCreating:
		return "creating"
	case StateReady:
		return "ready"
	case StateDeleting:
		return "deleting"
	default:
		return "unknown"
	}
}

// containerNamePrefix is prepended to the first 12 characters of a
// session_id to derive its container name deterministically, so recovery
// can reassociate a container with its session without a label.
const containerNamePrefix = "vibe-session-"

// ContainerName derives the deterministic container name for sid.
func ContainerName(sid string) string {
	n := len(sid)
	if n > 12 {
		n = 12
	}

	return containerNamePrefix + sid[:n]
}

// Session is one principal's live terminal session. SessionID, HostPort,
// WorkspacePath, and CreatedAt are immutable after construction.
// ContainerHandle is set once during creation/recovery before the session
// leaves CREATING, but is still read from other goroutines (List,
// Inspect) while that happens, so it lives under mu (L_s) along with the
// rest of the mutable state.
type Session struct {
	SessionID     string
	HostPort      int
	WorkspacePath string
	CreatedAt     time.Time

	mu              deadlock.Mutex
	state           State
	refCount        int
	lastAccessedAt  time.Time
	containerHandle string
}

func newSession(sid, containerHandle, workspacePath string, hostPort int, now time.Time) *Session {
	return &Session{
		SessionID:       sid,
		HostPort:        hostPort,
		WorkspacePath:   workspacePath,
		CreatedAt:       now,
		state:           StateCreating,
		lastAccessedAt:  now,
		containerHandle: containerHandle,
	}
}

// State returns the current lifecycle state under L_s.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// RefCount returns the current reference count under L_s.
func (s *Session) RefCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.refCount
}

// LastAccessedAt returns the last-accessed timestamp under L_s.
func (s *Session) LastAccessedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastAccessedAt
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastAccessedAt = now
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = st
}

// ContainerHandle returns the runtime-specific container identifier under
// L_s.
func (s *Session) ContainerHandle() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.containerHandle
}

func (s *Session) setContainerHandle(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.containerHandle = id
}

// Snapshot is an immutable copy of a Session's fields, safe to hand to
// callers outside any lock.
type Snapshot struct {
	SessionID       string
	ContainerHandle string
	HostPort        int
	WorkspacePath   string
	CreatedAt       time.Time
	LastAccessedAt  time.Time
	State           State
	RefCount        int
}

// Snapshot returns an immutable copy of s's fields, safe to read outside
// any lock. Exported for the server package's status/listing handlers.
func (s *Session) Snapshot() Snapshot {
	return s.snapshot()
}

func (s *Session) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		SessionID:       s.SessionID,
		ContainerHandle: s.containerHandle,
		HostPort:        s.HostPort,
		WorkspacePath:   s.WorkspacePath,
		CreatedAt:       s.CreatedAt,
		LastAccessedAt:  s.lastAccessedAt,
		State:           s.state,
		RefCount:        s.refCount,
	}
}
