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

// Package ports hands out host TCP ports for session containers from a
// fixed range, guarding against both double-allocation within the broker
// and ports another process already holds.
package ports

import (
	"errors"
	"sync"

	"vibe-broker/pkg/common/fsutil"
)

// ErrNoPortsAvailable is returned by Acquire when every port in range is
// either allocated or observed bound by something outside the broker.
var ErrNoPortsAvailable = errors.New("ports: no ports available in range")

// Allocator hands out ports in [Low, High) guarded by L_mgr in the
// session manager -- callers are expected to serialize Acquire/Release
// themselves; Allocator's own mutex protects its bookkeeping set and is
// also held across the OS probe in Acquire.
type Allocator struct {
	low  int
	high int

	mu        sync.Mutex
	allocated map[int]struct{}
}

// New creates an Allocator over the half-open range [low, high).
func New(low, high int) *Allocator {
	return &Allocator{
		low:       low,
		high:      high,
		allocated: make(map[int]struct{}),
	}
}

// Acquire scans the range in ascending order, skipping ports already
// handed out and ports the OS reports as bound, and marks the first free
// one allocated.
func (a *Allocator) Acquire() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for p := a.low; p < a.high; p++ {
		if _, taken := a.allocated[p]; taken {
			continue
		}

		if !fsutil.ProbePortFree(p) {
			continue
		}

		a.allocated[p] = struct{}{}

		return p, nil
	}

	return 0, ErrNoPortsAvailable
}

// Release returns port to the pool. Idempotent.
func (a *Allocator) Release(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.allocated, port)
}

// MarkAllocated records port as already in use, for recovery at startup
// when a session's port is read back from a running container's bindings
// rather than freshly acquired.
func (a *Allocator) MarkAllocated(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.allocated[port] = struct{}{}
}
