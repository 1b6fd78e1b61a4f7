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

package reconciler

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeSessions struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeSessions) DriftSweep(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
}

type fakeAuth struct {
	purged int
}

func (f *fakeAuth) PurgeExpired() int {
	return f.purged
}

type fakePolling struct {
	sids    []string
	reaped  map[string]bool
	checked []string
}

func (f *fakePolling) Sids() []string {
	return f.sids
}

func (f *fakePolling) ReapIfStale(sid string) bool {
	f.checked = append(f.checked, sid)

	return f.reaped[sid]
}

func TestDriftSweepOnceInvokesSessions(t *testing.T) {
	fs := &fakeSessions{}
	r := New(fs, &fakeAuth{}, &fakePolling{})

	r.driftSweepOnce(context.Background())

	fs.mu.Lock()
	defer fs.mu.Unlock()
	assert.Equal(t, 1, fs.calls)
}

func TestAuthPurgeOnceHandlesNilAuth(t *testing.T) {
	r := New(&fakeSessions{}, nil, &fakePolling{})

	assert.NotPanics(t, func() {
		r.authPurgeOnce(context.Background())
	})
}

func TestPollingReapOnceReapsStaleSids(t *testing.T) {
	fp := &fakePolling{
		sids:   []string{"a", "b"},
		reaped: map[string]bool{"a": true, "b": false},
	}
	r := New(&fakeSessions{}, &fakeAuth{}, fp)

	assert.NotPanics(t, func() {
		r.pollingReapOnce(context.Background())
	})
	assert.ElementsMatch(t, []string{"a", "b"}, fp.checked)
}

func TestRunOnceSafelyRecoversFromPanic(t *testing.T) {
	r := New(&fakeSessions{}, &fakeAuth{}, &fakePolling{})

	assert.NotPanics(t, func() {
		r.runOnceSafely(context.Background(), "test", func(context.Context) {
			panic("boom")
		})
	})
}
