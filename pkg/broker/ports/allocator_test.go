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

package ports

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireSkipsAllocated(t *testing.T) {
	a := New(20000, 20003)

	p1, err := a.Acquire()
	require.NoError(t, err)

	p2, err := a.Acquire()
	require.NoError(t, err)

	assert.NotEqual(t, p1, p2)
}

func TestAcquireExhaustion(t *testing.T) {
	a := New(20010, 20011)

	_, err := a.Acquire()
	require.NoError(t, err)

	_, err = a.Acquire()
	assert.ErrorIs(t, err, ErrNoPortsAvailable)
}

func TestReleaseIsIdempotentAndReusable(t *testing.T) {
	a := New(20020, 20021)

	p, err := a.Acquire()
	require.NoError(t, err)

	a.Release(p)
	a.Release(p)

	p2, err := a.Acquire()
	require.NoError(t, err)
	assert.Equal(t, p, p2)
}

func TestMarkAllocatedBlocksReuse(t *testing.T) {
	a := New(20030, 20032)
	a.MarkAllocated(20030)

	p, err := a.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 20031, p)
}
