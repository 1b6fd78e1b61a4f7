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
	"fmt"
	"path/filepath"
	"time"

	"vibe-broker/pkg/broker/brokererr"
	"vibe-broker/pkg/broker/runtime"
	"vibe-broker/pkg/common/fsutil"
)

const (
	agentStartupSettle = 2 * time.Second
	extraHostEntry     = "host.docker.internal:host-gateway"
	containerEnvTerm   = "TERM=xterm-256color"
	restartPolicy      = "unless-stopped"
)

// GetOrCreate implements the getOrCreate algorithm: fast path
// on an existing READY session backed by a running container, slow path
// spawning a fresh one, all creation for one principal serialized on that
// principal's lock to make the MAX_SESSIONS_PER_USER check atomic.
func (m *Manager) GetOrCreate(ctx context.Context, principal, sid string) (*Session, error) {
	if existing := m.fastPath(ctx, sid); existing != nil {
		return existing, nil
	}

	lock := m.creationLockFor(principal)
	lock.Lock()
	defer lock.Unlock()

	// Double-check: another goroutine may have created it while we
	// waited for the creation lock.
	if existing := m.fastPath(ctx, sid); existing != nil {
		return existing, nil
	}

	if m.owners.CountBy(principal) >= m.cfg.MaxSessionsPerUser {
		return nil, brokererr.QuotaExceeded(fmt.Sprintf("principal %s is at its session quota", principal))
	}

	s, port, err := m.reserveSlot(sid)
	if err != nil {
		return nil, err
	}

	if err := m.spawnUnlocked(ctx, s, port); err != nil {
		m.abortCreate(s.SessionID, port)

		return nil, err
	}

	s.setState(StateReady)

	if err := m.owners.Assign(sid, principal); err != nil {
		logger.Errorf("ownership assign for %s failed after successful create: %v", sid, err)
	}

	return s, nil
}

// fastPath returns the existing session if it is READY and the runtime
// confirms its container is still running, updating last_accessed_at.
// Any other existing entry (CREATING/DELETING, or a stale READY entry
// whose container died) returns nil so the caller falls through to the
// slow path / drops it there.
func (m *Manager) fastPath(ctx context.Context, sid string) *Session {
	s := m.Get(sid)
	if s == nil || s.State() != StateReady {
		return nil
	}

	info, err := m.rt.Inspect(ctx, s.ContainerHandle())
	if err != nil || info.Status != runtime.StatusRunning {
		return nil
	}

	s.touch(time.Now())

	return s
}

// reserveSlot takes L_mgr, drops any stale entry for sid, allocates a
// port, and inserts a CREATING placeholder -- all under the lock, per the
// spec's "reserve slot under lock, do I/O unlocked" discipline.
func (m *Manager) reserveSlot(sid string) (*Session, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if stale, ok := m.sessions[sid]; ok {
		m.ports.Release(stale.HostPort)
		m.removeLocked(sid)
	}

	port, err := m.ports.Acquire()
	if err != nil {
		return nil, 0, err
	}

	workspace := filepath.Join(m.cfg.WorkspaceRoot, sid)
	s := newSession(sid, "", workspace, port, time.Now())
	m.insertLocked(s)

	return s, port, nil
}

// spawnUnlocked performs every suspension point of session creation
// outside both L_mgr and L_s: workspace provisioning, removing any
// leftover container with the derived name, container create/start, and
// the agent-startup settle sleep.
func (m *Manager) spawnUnlocked(ctx context.Context, s *Session, port int) error {
	if err := fsutil.EnsureWorkspaceDir(s.WorkspacePath); err != nil {
		return brokererr.TransientRuntimeFailure("create workspace directory", err)
	}

	name := ContainerName(s.SessionID)

	// Best-effort: a container with this deterministic name may be left
	// over from a previous failed attempt.
	if existing, err := m.rt.Inspect(ctx, name); err == nil {
		_ = m.rt.Remove(ctx, existing.ID)
	}

	spec := runtime.CreateSpec{
		Name:  name,
		Image: m.cfg.ContainerImage,
		Env:   []string{containerEnvTerm},
		Ports: []runtime.PortBinding{{
			ContainerPort: m.cfg.ContainerInternalPort,
			HostIP:        "127.0.0.1",
			HostPort:      port,
		}},
		BindMountSource: s.WorkspacePath,
		BindMountTarget: workspaceContainerPath,
		ExtraHosts:      []string{extraHostEntry},
		MemoryBytes:     m.cfg.MemoryBytes,
		CPUQuota:        m.cfg.CPUQuota,
		RestartPolicy:   restartPolicy,
	}

	id, err := m.rt.Create(ctx, spec)
	if err != nil {
		return brokererr.TransientRuntimeFailure("create container", err)
	}

	s.setContainerHandle(id)

	if err := m.rt.Start(ctx, id); err != nil {
		return brokererr.TransientRuntimeFailure("start container", err)
	}

	time.Sleep(agentStartupSettle)

	return nil
}

// abortCreate undoes a failed create: drop the table entry and release
// the port, under L_mgr.
func (m *Manager) abortCreate(sid string, port int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeLocked(sid)
	m.ports.Release(port)
}

// workspaceContainerPath is the in-container home directory the
// workspace is bind-mounted to.
const workspaceContainerPath = "/home/vibe"
