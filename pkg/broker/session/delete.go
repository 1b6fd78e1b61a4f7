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
	"context"
	"os"
)

// Delete implements the delete algorithm. With force=false it
// only tears down a session that is READY with no live references,
// returning false otherwise without mutating anything. With force=true
// it skips that check entirely. Container and workspace removal are
// always best-effort: a failure there is logged but never turns a
// successful teardown into an error, per the cleanup policy.
func (m *Manager) Delete(ctx context.Context, sid string, force bool) bool {
	s, ok := m.takeForDelete(sid, force)
	if !ok {
		return false
	}

	if handle := s.ContainerHandle(); handle != "" {
		if err := m.rt.Remove(ctx, handle); err != nil {
			logger.Warnf("best-effort container removal for session %s failed: %v", sid, err)
		}
	}

	if s.WorkspacePath != "" {
		if err := os.RemoveAll(s.WorkspacePath); err != nil {
			logger.Warnf("best-effort workspace removal for session %s failed: %v", sid, err)
		}
	}

	if err := m.owners.Remove(sid); err != nil {
		logger.Warnf("best-effort ownership removal for session %s failed: %v", sid, err)
	}

	return true
}

// takeForDelete takes L_mgr then L_s, checks the force=false precondition,
// and if it proceeds, removes the entry from the table and releases its
// port -- all still under the locks, per the spec's lock-ordering rule.
func (m *Manager) takeForDelete(sid string, force bool) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sid]
	if !ok {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !force && !(s.state == StateReady && s.refCount == 0) {
		return nil, false
	}

	s.state = StateDeleting

	m.removeLocked(sid)
	m.ports.Release(s.HostPort)

	return s, true
}
