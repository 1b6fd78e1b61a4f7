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

// Package localauth is a reference auth.Authenticator backed by a local
// user table of bcrypt password hashes. It registers itself under the
// name "local" through auth.RegisterFactory.
package localauth

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/crypto/bcrypt"

	"vibe-broker/pkg/broker/auth"
	"vibe-broker/pkg/broker/auth/cookiesession"
)

func init() {
	auth.RegisterFactory("local", func(params map[string]string) (auth.Authenticator, error) {
		return New(params)
	})
}

// dummyHash lets authenticate() spend bcrypt time on unknown usernames
// too, so a timing difference can't be used to enumerate valid users.
const dummyHash = "$2a$12$000000000000000000000uKoqMVCTTroULWJLFy6UaGfYXMqNJSdq"

const defaultSessionTimeoutHours = 24

type userRecord struct {
	PasswordHash string `toml:"password_hash"`
	Admin        bool   `toml:"admin"`
}

type userFile struct {
	SessionTimeoutHours int                   `toml:"session_timeout_hours"`
	Users               map[string]userRecord `toml:"users"`
}

// Authenticator is the localauth reference Authenticator.
type Authenticator struct {
	users    map[string]userRecord
	sessions *cookiesession.Store
}

// New builds an Authenticator from factory params. params["users_file"]
// names a TOML file matching userFile; params["hash_key"]/["block_key"]
// seed the securecookie signer, generated randomly when absent (sessions
// then do not survive a restart, which is fine for a single-process
// in-memory session table).
func New(params map[string]string) (*Authenticator, error) {
	path := params["users_file"]
	if path == "" {
		return nil, fmt.Errorf("localauth: users_file is required")
	}

	var uf userFile
	if _, err := toml.DecodeFile(path, &uf); err != nil {
		return nil, fmt.Errorf("localauth: loading %s: %w", path, err)
	}

	ttlHours := uf.SessionTimeoutHours
	if ttlHours <= 0 {
		ttlHours = defaultSessionTimeoutHours
	}

	hashKey, err := keyFromParam(params["hash_key"], 64)
	if err != nil {
		return nil, err
	}

	blockKey, err := keyFromParam(params["block_key"], 32)
	if err != nil {
		return nil, err
	}

	return &Authenticator{
		users:    uf.Users,
		sessions: cookiesession.New(hashKey, blockKey, time.Duration(ttlHours)*time.Hour),
	}, nil
}

func keyFromParam(v string, size int) ([]byte, error) {
	if v == "" {
		b := make([]byte, size)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("localauth: generating key: %w", err)
		}

		return b, nil
	}

	if len(v) < size {
		return nil, fmt.Errorf("localauth: key must be at least %d bytes, got %d", size, len(v))
	}

	return []byte(v)[:size], nil
}

// Authenticate checks principal/secret against the local user table,
// using a dummy bcrypt comparison for unknown users so the response
// time does not leak which usernames exist.
func (a *Authenticator) Authenticate(principal, secret string) bool {
	if principal == "" || secret == "" {
		bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte("dummy"))

		return false
	}

	rec, ok := a.users[principal]
	if !ok {
		bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(secret))

		return false
	}

	return bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(secret)) == nil
}

// Validate resolves the vibe_session cookie value to a principal.
func (a *Authenticator) Validate(cookie string) (string, bool) {
	return a.sessions.Validate(cookie)
}

// CreateSession mints a new opaque, signed session cookie for principal.
func (a *Authenticator) CreateSession(principal string) (string, error) {
	return a.sessions.Create(principal)
}

// DestroySession invalidates cookie.
func (a *Authenticator) DestroySession(cookie string) {
	a.sessions.Destroy(cookie)
}

// PurgeExpired drops expired sessions.
func (a *Authenticator) PurgeExpired() int {
	return a.sessions.PurgeExpired()
}

// IsEnabled is always true: localauth only exists when configured.
func (a *Authenticator) IsEnabled() bool {
	return true
}

// SessionTTL returns the configured session lifetime.
func (a *Authenticator) SessionTTL() time.Duration {
	return a.sessions.TTL()
}

// IsAdmin reports the configured user's admin flag.
func (a *Authenticator) IsAdmin(principal string) bool {
	return a.users[principal].Admin
}
