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

package localauth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func writeUsersFile(t *testing.T, contents string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "users.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	return path
}

func hashOf(t *testing.T, password string) string {
	t.Helper()

	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	return string(h)
}

func TestAuthenticateValidCredentials(t *testing.T) {
	pass := hashOf(t, "s3cret")
	path := writeUsersFile(t, `
[users.alice]
password_hash = "`+pass+`"
admin = true
`)

	a, err := New(map[string]string{"users_file": path})
	require.NoError(t, err)

	assert.True(t, a.Authenticate("alice", "s3cret"))
	assert.False(t, a.Authenticate("alice", "wrong"))
	assert.False(t, a.Authenticate("bob", "s3cret"))
	assert.True(t, a.IsAdmin("alice"))
	assert.False(t, a.IsAdmin("bob"))
}

func TestSessionLifecycle(t *testing.T) {
	pass := hashOf(t, "s3cret")
	path := writeUsersFile(t, `
[users.alice]
password_hash = "`+pass+`"
`)

	a, err := New(map[string]string{"users_file": path})
	require.NoError(t, err)

	cookie, err := a.CreateSession("alice")
	require.NoError(t, err)

	principal, ok := a.Validate(cookie)
	require.True(t, ok)
	assert.Equal(t, "alice", principal)

	a.DestroySession(cookie)

	_, ok = a.Validate(cookie)
	assert.False(t, ok)
}

func TestValidateRejectsTamperedCookie(t *testing.T) {
	pass := hashOf(t, "s3cret")
	path := writeUsersFile(t, `
[users.alice]
password_hash = "`+pass+`"
`)

	a, err := New(map[string]string{"users_file": path})
	require.NoError(t, err)

	cookie, err := a.CreateSession("alice")
	require.NoError(t, err)

	_, ok := a.Validate(cookie + "tampered")
	assert.False(t, ok)
}
