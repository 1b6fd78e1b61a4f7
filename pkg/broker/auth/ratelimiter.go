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
	"strings"
	"sync"
	"time"
)

const (
	rateLimitMaxAttempts = 50
	rateLimitWindow      = 15 * time.Minute
)

// RateLimiter is the login-path brute-force guard: a sliding window of
// failed-attempt timestamps kept per key, where every failure is
// recorded under both a "user:<principal>" key and an "ip:<address>"
// key, and either key hitting the cap blocks the attempt.
type RateLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
}

// NewRateLimiter builds an empty RateLimiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{attempts: make(map[string][]time.Time)}
}

func userKey(principal string) string {
	return "user:" + strings.ToLower(principal)
}

func ipKey(addr string) string {
	return "ip:" + addr
}

// cleanupLocked drops attempts older than the sliding window for key,
// must be called with mu held.
func (r *RateLimiter) cleanupLocked(key string, now time.Time) {
	cutoff := now.Add(-rateLimitWindow)

	kept := r.attempts[key][:0]

	for _, t := range r.attempts[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) == 0 {
		delete(r.attempts, key)
	} else {
		r.attempts[key] = kept
	}
}

// IsBlocked reports whether principal or address has hit the attempt cap
// within the current window.
func (r *RateLimiter) IsBlocked(principal, address string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	uk := userKey(principal)
	r.cleanupLocked(uk, now)

	if len(r.attempts[uk]) >= rateLimitMaxAttempts {
		return true
	}

	ik := ipKey(address)
	r.cleanupLocked(ik, now)

	return len(r.attempts[ik]) >= rateLimitMaxAttempts
}

// RecordFailure records a failed login attempt under both keys.
func (r *RateLimiter) RecordFailure(principal, address string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	uk := userKey(principal)
	ik := ipKey(address)

	r.cleanupLocked(uk, now)
	r.cleanupLocked(ik, now)

	r.attempts[uk] = append(r.attempts[uk], now)
	r.attempts[ik] = append(r.attempts[ik], now)
}

// ClearOnSuccess drops both keys' recorded attempts after a successful
// login.
func (r *RateLimiter) ClearOnSuccess(principal, address string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.attempts, userKey(principal))
	delete(r.attempts, ipKey(address))
}

// ClientAddress derives the client address the way the design
// specifies: the first element of X-Forwarded-For if present, else the
// direct peer address.
func ClientAddress(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")

		return strings.TrimSpace(parts[0])
	}

	return r.RemoteAddr
}
