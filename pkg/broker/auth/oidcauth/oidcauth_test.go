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

package oidcauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRememberAdminMatchesConfiguredGroup(t *testing.T) {
	a := &Authenticator{adminGroup: "vibe-admins", admins: make(map[string]bool)}

	a.rememberAdmin("alice", map[string]interface{}{
		"groups": []interface{}{"everyone", "vibe-admins"},
	})
	a.rememberAdmin("bob", map[string]interface{}{
		"groups": []interface{}{"everyone"},
	})

	assert.True(t, a.IsAdmin("alice"))
	assert.False(t, a.IsAdmin("bob"))
	assert.False(t, a.IsAdmin("carol"))
}

func TestAuthenticateAlwaysFalse(t *testing.T) {
	a := &Authenticator{admins: make(map[string]bool)}

	assert.False(t, a.Authenticate("alice", "anything"))
}
