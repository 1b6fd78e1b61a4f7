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
	"path/filepath"
	"time"

	"vibe-broker/pkg/broker/runtime"
)

// Recover implements the recover algorithm. It is meant to
// run once at startup, before the broker serves any request: it lists
// every container matching the session name prefix, derives each one's
// session_id from its workspace bind-mount host path, restarts any that
// aren't running, and drops anything it can't reconcile. Calling it again
// is a no-op if nothing changed underneath (the design).
func (m *Manager) Recover(ctx context.Context) {
	containers, err := m.rt.ListByNamePrefix(ctx, containerNamePrefix)
	if err != nil {
		logger.Errorf("recover: list containers by prefix failed: %v", err)

		return
	}

	for _, c := range containers {
		m.recoverOne(ctx, c)
	}
}

func (m *Manager) recoverOne(ctx context.Context, c runtime.ContainerInfo) {
	workspaceSource, ok := c.BindMounts[workspaceContainerPath]
	if !ok {
		logger.Warnf("recover: container %s has no workspace bind mount, removing", c.Name)
		m.removeOrphan(ctx, c.ID)

		return
	}

	sid := filepath.Base(workspaceSource)
	if sid == "" || sid == "." || sid == string(filepath.Separator) {
		logger.Warnf("recover: container %s has a malformed workspace path %q, removing", c.Name, workspaceSource)
		m.removeOrphan(ctx, c.ID)

		return
	}

	if m.Get(sid) != nil {
		return
	}

	status := c.Status
	if status != runtime.StatusRunning {
		if err := m.rt.Start(ctx, c.ID); err != nil {
			logger.Warnf("recover: starting container %s failed, removing: %v", c.Name, err)
			m.removeOrphan(ctx, c.ID)

			return
		}

		time.Sleep(agentStartupSettle)

		info, err := m.rt.Inspect(ctx, c.ID)
		if err != nil || info.Status != runtime.StatusRunning {
			logger.Warnf("recover: container %s still not running after start, removing", c.Name)
			m.removeOrphan(ctx, c.ID)

			return
		}

		c = info
	}

	port, ok := derivePort(c)
	if !ok {
		logger.Warnf("recover: container %s has no usable port binding, removing", c.Name)
		m.removeOrphan(ctx, c.ID)

		return
	}

	now := time.Now()
	s := newSession(sid, c.ID, workspaceSource, port, now)
	s.setState(StateReady)

	m.mu.Lock()
	m.insertLocked(s)
	m.ports.MarkAllocated(port)
	m.mu.Unlock()

	logger.Infof("recover: reassociated container %s with session %s on port %d", c.Name, sid, port)
}

func derivePort(c runtime.ContainerInfo) (int, bool) {
	for _, p := range c.Ports {
		if p.HostPort != 0 {
			return p.HostPort, true
		}
	}

	return 0, false
}

func (m *Manager) removeOrphan(ctx context.Context, containerID string) {
	if err := m.rt.Remove(ctx, containerID); err != nil {
		logger.Warnf("recover: removing orphan container %s failed: %v", containerID, err)
	}
}
