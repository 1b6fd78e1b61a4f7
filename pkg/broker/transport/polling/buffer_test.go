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

package polling

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadAtReturnsImmediateData(t *testing.T) {
	b := newRingBuffer()
	b.append([]byte("hello"))

	res, ok := b.readAt(0)
	require.True(t, ok)
	assert.Equal(t, "hello", string(res.data))
	assert.Equal(t, int64(5), res.cursor)
	assert.False(t, res.missed)
}

func TestReadAtParksWhenNoData(t *testing.T) {
	b := newRingBuffer()
	b.append([]byte("hello"))

	_, ok := b.readAt(5)
	assert.False(t, ok)
}

func TestReadAtWhenNotAliveReturnsGone(t *testing.T) {
	b := newRingBuffer()
	b.markDisconnected()

	res, ok := b.readAt(0)
	require.True(t, ok)
	assert.True(t, res.gone)
}

func TestEvictionAdvancesHeadAndSignalsMissed(t *testing.T) {
	b := newRingBuffer()

	overflow := bytes.Repeat([]byte("x"), bufferCap+100)
	b.append(overflow)

	res, ok := b.readAt(0)
	require.True(t, ok)
	assert.True(t, res.missed)
	assert.Equal(t, int64(100), b.head)
	assert.Len(t, b.data, bufferCap)
}

func TestParkWakesOnAppend(t *testing.T) {
	b := newRingBuffer()

	waiter := b.park()

	done := make(chan struct{})
	go func() {
		<-waiter
		close(done)
	}()

	b.append([]byte("more"))

	<-done
}

func TestConcatenatedPollsReconstructStream(t *testing.T) {
	b := newRingBuffer()
	b.append([]byte("abc"))

	res1, ok := b.readAt(0)
	require.True(t, ok)

	b.append([]byte("def"))

	res2, ok := b.readAt(res1.cursor)
	require.True(t, ok)

	assert.Equal(t, "abcdef", string(res1.data)+string(res2.data))
}
