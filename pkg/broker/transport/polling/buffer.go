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
	"time"

	"github.com/sasha-s/go-deadlock"
)

// bufferCap is the replay buffer's bound, fixed at 256 KiB.
const bufferCap = 256 * 1024

// ringBuffer is the per-session output buffer plus absolute cursor and
// waiter list. mu is L_t: held only around buffer mutation and waiter
// bookkeeping, never across I/O.
type ringBuffer struct {
	mu deadlock.Mutex

	data []byte
	head int64 // absolute offset of data[0]

	alive          bool
	lastActivityAt time.Time
	waiters        []chan struct{}
}

func newRingBuffer() *ringBuffer {
	return &ringBuffer{
		alive:          true,
		lastActivityAt: time.Now(),
	}
}

// tailLocked returns the absolute offset just past the last byte in the
// buffer.
func (b *ringBuffer) tailLocked() int64 {
	return b.head + int64(len(b.data))
}

// append adds p to the buffer, evicting from the head if it now exceeds
// bufferCap, and wakes every parked waiter.
func (b *ringBuffer) append(p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.data = append(b.data, p...)

	if over := len(b.data) - bufferCap; over > 0 {
		b.data = b.data[over:]
		b.head += int64(over)
	}

	b.wakeAllLocked()
}

func (b *ringBuffer) wakeAllLocked() {
	for _, w := range b.waiters {
		close(w)
	}

	b.waiters = nil
}

// markDisconnected marks the buffer dead and wakes every waiter so
// parked polls return 410 Gone.
func (b *ringBuffer) markDisconnected() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.alive = false
	b.wakeAllLocked()
}

func (b *ringBuffer) isAlive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.alive
}

func (b *ringBuffer) touch() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastActivityAt = time.Now()
}

func (b *ringBuffer) idleSince() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.lastActivityAt
}

// pollResult is what a poll resolves to, mirroring the JSON response
// shape of the design
type pollResult struct {
	cursor int64
	data   []byte
	missed bool
	gone   bool
}

// readAt computes the immediate response for cursor K under the
// absolute-cursor semantics, without parking: K_eff = max(K,
// C_head); if K_eff < C_tail there is data to return now.
func (b *ringBuffer) readAt(cursor int64) (pollResult, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.alive {
		return pollResult{gone: true}, true
	}

	kEff := cursor
	if b.head > kEff {
		kEff = b.head
	}

	tail := b.tailLocked()
	if kEff >= tail {
		return pollResult{}, false
	}

	out := make([]byte, tail-kEff)
	copy(out, b.data[kEff-b.head:])

	return pollResult{cursor: tail, data: out, missed: cursor < b.head}, true
}

// park registers a waiter and returns a channel that closes when new
// data arrives or the buffer is marked disconnected.
func (b *ringBuffer) park() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan struct{})
	b.waiters = append(b.waiters, ch)

	return ch
}
