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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vibe-broker/pkg/broker/brokererr"
	"vibe-broker/pkg/broker/ownerstore"
	"vibe-broker/pkg/broker/runtime"
)

// fakeRuntime is an in-memory ContainerRuntime good enough to drive the
// manager's state machine without a real Docker daemon.
type fakeRuntime struct {
	mu         sync.Mutex
	containers map[string]runtime.ContainerInfo
	nextID     int
	failCreate bool
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{containers: make(map[string]runtime.ContainerInfo)}
}

func (f *fakeRuntime) Create(_ context.Context, spec runtime.CreateSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failCreate {
		return "", fmt.Errorf("simulated create failure")
	}

	f.nextID++
	id := fmt.Sprintf("container-%d", f.nextID)

	mounts := map[string]string{}
	if spec.BindMountSource != "" {
		mounts[spec.BindMountTarget] = spec.BindMountSource
	}

	f.containers[id] = runtime.ContainerInfo{
		ID:         id,
		Name:       spec.Name,
		Status:     runtime.StatusRunning,
		Ports:      spec.Ports,
		BindMounts: mounts,
	}

	return id, nil
}

func (f *fakeRuntime) Start(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.containers[id]
	if !ok {
		return fmt.Errorf("no such container %s", id)
	}

	c.Status = runtime.StatusRunning
	f.containers[id] = c

	return nil
}

func (f *fakeRuntime) Stop(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.containers[id]
	if !ok {
		return nil
	}

	c.Status = runtime.StatusExited
	f.containers[id] = c

	return nil
}

func (f *fakeRuntime) Remove(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.containers, id)

	return nil
}

func (f *fakeRuntime) Inspect(_ context.Context, id string) (runtime.ContainerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.containers[id]
	if !ok {
		return runtime.ContainerInfo{}, fmt.Errorf("no such container %s", id)
	}

	return c, nil
}

func (f *fakeRuntime) ListByNamePrefix(_ context.Context, prefix string) ([]runtime.ContainerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []runtime.ContainerInfo

	for _, c := range f.containers {
		if len(c.Name) >= len(prefix) && c.Name[:len(prefix)] == prefix {
			out = append(out, c)
		}
	}

	return out, nil
}

func newTestManager(t *testing.T, rt *fakeRuntime) *Manager {
	t.Helper()

	dir := t.TempDir()

	owners, err := ownerstore.Open(filepath.Join(dir, "owners.json"))
	require.NoError(t, err)

	cfg := Config{
		ContainerImage:        "vibe-agent:latest",
		ContainerInternalPort: 7777,
		WorkspaceRoot:         dir,
		MaxSessionsPerUser:    2,
		MemoryBytes:           1 << 30,
	}

	return New(cfg, rt, owners, 21000, 21100)
}

func TestGetOrCreateThenFastPath(t *testing.T) {
	rt := newFakeRuntime()
	m := newTestManager(t, rt)

	ctx := context.Background()

	s1, err := m.GetOrCreate(ctx, "alice", "sid1")
	require.NoError(t, err)
	assert.Equal(t, StateReady, s1.State())

	s2, err := m.GetOrCreate(ctx, "alice", "sid1")
	require.NoError(t, err)
	assert.Same(t, s1, s2)
}

func TestGetOrCreateQuotaExceeded(t *testing.T) {
	rt := newFakeRuntime()
	m := newTestManager(t, rt)
	ctx := context.Background()

	_, err := m.GetOrCreate(ctx, "alice", "sid1")
	require.NoError(t, err)
	_, err = m.GetOrCreate(ctx, "alice", "sid2")
	require.NoError(t, err)

	_, err = m.GetOrCreate(ctx, "alice", "sid3")
	require.Error(t, err)

	be, ok := err.(*brokererr.Error)
	require.True(t, ok)
	assert.Equal(t, brokererr.KindQuotaExceeded, be.Kind)
}

func TestGetOrCreateFailurePropagatesAndReleasesPort(t *testing.T) {
	rt := newFakeRuntime()
	rt.failCreate = true
	m := newTestManager(t, rt)
	ctx := context.Background()

	_, err := m.GetOrCreate(ctx, "alice", "sid1")
	require.Error(t, err)

	assert.Nil(t, m.Get("sid1"))

	rt.failCreate = false

	port, err := m.ports.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 21000, port)
}

func TestAcquireReleaseRef(t *testing.T) {
	rt := newFakeRuntime()
	m := newTestManager(t, rt)
	ctx := context.Background()

	s, err := m.GetOrCreate(ctx, "alice", "sid1")
	require.NoError(t, err)

	ref, err := m.AcquireRef("sid1")
	require.NoError(t, err)
	assert.Equal(t, 1, ref.RefCount())

	m.ReleaseRef(ref)
	assert.Equal(t, 0, s.RefCount())
}

func TestDeleteRefusesWhileReferenced(t *testing.T) {
	rt := newFakeRuntime()
	m := newTestManager(t, rt)
	ctx := context.Background()

	_, err := m.GetOrCreate(ctx, "alice", "sid1")
	require.NoError(t, err)

	ref, err := m.AcquireRef("sid1")
	require.NoError(t, err)

	assert.False(t, m.Delete(ctx, "sid1", false))

	m.ReleaseRef(ref)
	assert.True(t, m.Delete(ctx, "sid1", false))
	assert.False(t, m.Delete(ctx, "sid1", false))
}

func TestDeleteForceTwiceReturnsTrueThenFalse(t *testing.T) {
	rt := newFakeRuntime()
	m := newTestManager(t, rt)
	ctx := context.Background()

	_, err := m.GetOrCreate(ctx, "alice", "sid1")
	require.NoError(t, err)

	assert.True(t, m.Delete(ctx, "sid1", true))
	assert.False(t, m.Delete(ctx, "sid1", true))
}
