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

// Package ownerstore is the durable session_id -> principal mapping. Every
// mutation is persisted atomically to a single JSON file on disk (temp
// file, fsync, rename) so a crash between mutations never leaves a
// half-written file behind.
package ownerstore

import (
	"encoding/json"
	"os"
	"sync"

	"vibe-broker/pkg/common/fsutil"
	"vibe-broker/pkg/common/logutil"
)

var logger = logutil.GetLogger("ownerstore")

const filePerm = 0o644

// Store is safe for concurrent use; it has its own lock, independent of
// the session manager's L_mgr/L_s, per the lock-ordering rule that
// ownership mutations never happen while holding a session lock.
type Store struct {
	path string

	mu   sync.Mutex
	rows map[string]string // session_id -> principal
}

// Open loads path if it exists, or starts empty. A corrupt file is logged
// and treated as empty rather than failing startup.
func Open(path string) (*Store, error) {
	s := &Store{path: path, rows: make(map[string]string)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}

		return nil, err
	}

	if len(data) == 0 {
		return s, nil
	}

	if err := json.Unmarshal(data, &s.rows); err != nil {
		logger.Errorf("ownerstore file %s is corrupt, resetting to empty: %v", path, err)

		s.rows = make(map[string]string)
	}

	return s, nil
}

// Assign records principal as the owner of sid, overwriting any prior
// owner, and persists the result.
func (s *Store) Assign(sid, principal string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows[sid] = principal

	return s.persistLocked()
}

// Remove drops sid's ownership row, if any, and persists the result.
func (s *Store) Remove(sid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rows[sid]; !ok {
		return nil
	}

	delete(s.rows, sid)

	return s.persistLocked()
}

// Get returns the owning principal and whether a row exists for sid.
func (s *Store) Get(sid string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.rows[sid]

	return p, ok
}

// ListBy returns every session_id owned by principal.
func (s *Store) ListBy(principal string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sids []string

	for sid, p := range s.rows {
		if p == principal {
			sids = append(sids, sid)
		}
	}

	return sids
}

// CountBy returns the number of sessions owned by principal, used to
// enforce the per-principal session quota.
func (s *Store) CountBy(principal string) int {
	return len(s.ListBy(principal))
}

// AllSids returns every session_id with an ownership row.
func (s *Store) AllSids() map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]struct{}, len(s.rows))

	for sid := range s.rows {
		out[sid] = struct{}{}
	}

	return out
}

func (s *Store) persistLocked() error {
	data, err := json.Marshal(s.rows)
	if err != nil {
		return err
	}

	return fsutil.WriteFileAtomic(s.path, data, filePerm)
}
