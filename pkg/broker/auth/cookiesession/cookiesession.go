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

// Package cookiesession holds the opaque broker-local session table that
// localauth and oidcauth both sit on top of: a random token mapped to a
// principal and a creation time, signed with gorilla/securecookie before
// it ever leaves the process as a cookie value.
package cookiesession

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	"github.com/gorilla/securecookie"
)

const tokenName = "vibe-session-token"

type entry struct {
	principal string
	createdAt time.Time
}

// Store is the shared in-memory session table. Restarting the process
// invalidates every session.
type Store struct {
	sc  *securecookie.SecureCookie
	ttl time.Duration

	mu       sync.Mutex
	sessions map[string]entry
}

// New builds a Store. hashKey/blockKey are the securecookie signing and
// encryption keys; ttl is the session lifetime (SessionTTL).
func New(hashKey, blockKey []byte, ttl time.Duration) *Store {
	return &Store{
		sc:       securecookie.New(hashKey, blockKey),
		ttl:      ttl,
		sessions: make(map[string]entry),
	}
}

// Create mints a new session for principal and returns the signed cookie
// value to set on vibe_session.
func (s *Store) Create(principal string) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}

	token := base64.RawURLEncoding.EncodeToString(raw)

	s.mu.Lock()
	s.sessions[token] = entry{principal: principal, createdAt: time.Now()}
	s.mu.Unlock()

	return s.sc.Encode(tokenName, token)
}

// Validate unsigns cookie and resolves it to a still-live principal.
func (s *Store) Validate(cookie string) (string, bool) {
	var token string
	if err := s.sc.Decode(tokenName, cookie, &token); err != nil {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[token]
	if !ok {
		return "", false
	}

	if time.Since(e.createdAt) > s.ttl {
		delete(s.sessions, token)

		return "", false
	}

	return e.principal, true
}

// Destroy invalidates cookie's session, if any.
func (s *Store) Destroy(cookie string) {
	var token string
	if err := s.sc.Decode(tokenName, cookie, &token); err != nil {
		return
	}

	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

// PurgeExpired drops every session older than the TTL and returns how
// many were removed.
func (s *Store) PurgeExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0

	for token, e := range s.sessions {
		if time.Since(e.createdAt) > s.ttl {
			delete(s.sessions, token)
			removed++
		}
	}

	return removed
}

// TTL returns the configured session lifetime.
func (s *Store) TTL() time.Duration {
	return s.ttl
}
