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

	"vibe-broker/pkg/broker/runtime"
)

// DriftSweep implements the session-drift half of the reconciler's
// first sub-loop: for each READY session, inspect its container; a
// container that exited or died is restarted, and a restart that fails
// force-deletes the session. It also walks the ownership store for rows
// whose session_id is not in the manager's table, dropping any whose
// container genuinely no longer exists (one still mid-recovery is left
// for the next recovery pass).
func (m *Manager) DriftSweep(ctx context.Context) {
	for _, snap := range m.List() {
		if snap.State != StateReady {
			continue
		}

		info, err := m.rt.Inspect(ctx, snap.ContainerHandle)
		if err != nil {
			logger.Warnf("drift sweep: inspecting session %s container failed: %v", snap.SessionID, err)

			continue
		}

		if info.Status == runtime.StatusRunning {
			continue
		}

		logger.Warnf("drift sweep: session %s container is %s, attempting restart", snap.SessionID, info.Status)

		if err := m.rt.Start(ctx, snap.ContainerHandle); err != nil {
			logger.Warnf("drift sweep: restart failed for session %s, force-deleting: %v", snap.SessionID, err)
			m.Delete(ctx, snap.SessionID, true)
		}
	}

	m.sweepOrphanOwnership(ctx)
}

func (m *Manager) sweepOrphanOwnership(ctx context.Context) {
	for sid := range m.owners.AllSids() {
		if m.Get(sid) != nil {
			continue
		}

		containers, err := m.rt.ListByNamePrefix(ctx, ContainerName(sid))
		if err != nil {
			logger.Warnf("drift sweep: listing containers for orphan ownership row %s failed: %v", sid, err)

			continue
		}

		if len(containers) == 0 {
			if err := m.owners.Remove(sid); err != nil {
				logger.Warnf("drift sweep: dropping orphan ownership row %s failed: %v", sid, err)
			}
		}
	}
}
