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

package auth

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsBlockedAfterMaxAttempts(t *testing.T) {
	rl := NewRateLimiter()

	for i := 0; i < rateLimitMaxAttempts; i++ {
		assert.False(t, rl.IsBlocked("alice", "10.0.0.1"))
		rl.RecordFailure("alice", "10.0.0.1")
	}

	assert.True(t, rl.IsBlocked("alice", "10.0.0.1"))
}

func TestIsBlockedByIPEvenWithDifferentUsers(t *testing.T) {
	rl := NewRateLimiter()

	for i := 0; i < rateLimitMaxAttempts; i++ {
		rl.RecordFailure("user-a", "10.0.0.1")
	}

	assert.True(t, rl.IsBlocked("user-b", "10.0.0.1"))
}

func TestClearOnSuccessResetsBothKeys(t *testing.T) {
	rl := NewRateLimiter()

	for i := 0; i < rateLimitMaxAttempts-1; i++ {
		rl.RecordFailure("alice", "10.0.0.1")
	}

	rl.ClearOnSuccess("alice", "10.0.0.1")

	assert.False(t, rl.IsBlocked("alice", "10.0.0.1"))
	assert.Empty(t, rl.attempts)
}

func TestUsernameKeyIsCaseInsensitive(t *testing.T) {
	rl := NewRateLimiter()

	for i := 0; i < rateLimitMaxAttempts; i++ {
		rl.RecordFailure("Alice", "10.0.0.1")
	}

	assert.True(t, rl.IsBlocked("alice", "192.168.1.1"))
}

func TestClientAddressPrefersForwardedFor(t *testing.T) {
	r, err := http.NewRequest(http.MethodPost, "/login", nil)
	assert.NoError(t, err)

	r.RemoteAddr = "192.168.1.1:54321"
	r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")

	assert.Equal(t, "203.0.113.5", ClientAddress(r))
}

func TestClientAddressFallsBackToRemoteAddr(t *testing.T) {
	r, err := http.NewRequest(http.MethodPost, "/login", nil)
	assert.NoError(t, err)

	r.RemoteAddr = "192.168.1.1:54321"

	assert.Equal(t, "192.168.1.1:54321", ClientAddress(r))
}
