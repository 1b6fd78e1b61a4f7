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

package ownerstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignRemoveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "owners.json")

	s, err := Open(path)
	require.NoError(t, err)

	before := s.AllSids()

	require.NoError(t, s.Assign("sid1", "alice"))

	p, ok := s.Get("sid1")
	assert.True(t, ok)
	assert.Equal(t, "alice", p)

	require.NoError(t, s.Remove("sid1"))

	_, ok = s.Get("sid1")
	assert.False(t, ok)
	assert.Equal(t, before, s.AllSids())
}

func TestListByAndCountBy(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "owners.json"))
	require.NoError(t, err)

	require.NoError(t, s.Assign("sid1", "alice"))
	require.NoError(t, s.Assign("sid2", "alice"))
	require.NoError(t, s.Assign("sid3", "bob"))

	assert.Equal(t, 2, s.CountBy("alice"))
	assert.Equal(t, 1, s.CountBy("bob"))
	assert.ElementsMatch(t, []string{"sid1", "sid2"}, s.ListBy("alice"))
}

func TestOpenPersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "owners.json")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Assign("sid1", "alice"))

	s2, err := Open(path)
	require.NoError(t, err)

	p, ok := s2.Get("sid1")
	assert.True(t, ok)
	assert.Equal(t, "alice", p)
}

func TestOpenRecoversFromCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "owners.json")

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s, err := Open(path)
	require.NoError(t, err)
	assert.Empty(t, s.AllSids())
}
