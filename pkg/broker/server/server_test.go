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

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vibe-broker/pkg/broker/auth"
	"vibe-broker/pkg/broker/ownerstore"
	"vibe-broker/pkg/broker/runtime"
	"vibe-broker/pkg/broker/session"
	"vibe-broker/pkg/broker/transport/polling"
)

// fakeRuntime is a minimal in-memory runtime.ContainerRuntime, the same
// shape session's own tests use, so server tests can drive a real
// *session.Manager without a container engine.
type fakeRuntime struct {
	mu     sync.Mutex
	nextID int
}

func (f *fakeRuntime) Create(_ context.Context, spec runtime.CreateSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++

	return fmt.Sprintf("container-%d", f.nextID), nil
}

func (f *fakeRuntime) Start(context.Context, string) error { return nil }
func (f *fakeRuntime) Stop(context.Context, string) error  { return nil }
func (f *fakeRuntime) Remove(context.Context, string) error {
	return nil
}

func (f *fakeRuntime) Inspect(_ context.Context, id string) (runtime.ContainerInfo, error) {
	return runtime.ContainerInfo{ID: id, Status: runtime.StatusRunning}, nil
}

func (f *fakeRuntime) ListByNamePrefix(context.Context, string) ([]runtime.ContainerInfo, error) {
	return nil, nil
}

// fakeAuthenticator is a trivial Authenticator: any principal named in
// validCookies is accepted, "admin" is the sole admin.
type fakeAuthenticator struct {
	validCookies map[string]string
}

func (a *fakeAuthenticator) Validate(cookie string) (string, bool) {
	p, ok := a.validCookies[cookie]

	return p, ok
}

func (a *fakeAuthenticator) Authenticate(principal, secret string) bool {
	return secret == "correct-password"
}

func (a *fakeAuthenticator) CreateSession(principal string) (string, error) {
	cookie := "cookie-" + principal
	a.validCookies[cookie] = principal

	return cookie, nil
}

func (a *fakeAuthenticator) DestroySession(cookie string) {
	delete(a.validCookies, cookie)
}

func (a *fakeAuthenticator) PurgeExpired() int { return 0 }
func (a *fakeAuthenticator) IsEnabled() bool    { return true }
func (a *fakeAuthenticator) SessionTTL() time.Duration {
	return time.Hour
}

func (a *fakeAuthenticator) IsAdmin(principal string) bool {
	return principal == "admin"
}

func newTestServer(t *testing.T, authn auth.Authenticator) (*Server, *session.Manager) {
	t.Helper()

	dir := t.TempDir()

	owners, err := ownerstore.Open(filepath.Join(dir, "owners.json"))
	require.NoError(t, err)

	cfg := session.Config{
		ContainerImage:        "vibe/session:latest",
		ContainerInternalPort: 8022,
		WorkspaceRoot:         filepath.Join(dir, "workspaces"),
		MaxSessionsPerUser:    3,
	}

	mgr := session.New(cfg, &fakeRuntime{}, owners, 17000, 18000)
	pollingTable := polling.NewTable(mgr, cfg.ContainerInternalPort)

	return New(mgr, owners, authn, pollingTable), mgr
}

func TestHandleNewSessionAndStatus(t *testing.T) {
	authn := &fakeAuthenticator{validCookies: map[string]string{"cookie-alice": "alice"}}
	srv, _ := newTestServer(t, authn)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodPost, "/session/new", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: "cookie-alice"})
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp newSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, "/terminal/"+resp.SessionID, resp.Redirect)

	statusReq := httptest.NewRequest(http.MethodGet, "/session/"+resp.SessionID+"/status", nil)
	statusReq.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: "cookie-alice"})
	statusRec := httptest.NewRecorder()

	router.ServeHTTP(statusRec, statusReq)
	assert.Equal(t, http.StatusOK, statusRec.Code)
}

func TestSessionRouteRejectsNonOwner(t *testing.T) {
	authn := &fakeAuthenticator{validCookies: map[string]string{
		"cookie-alice": "alice",
		"cookie-mallory": "mallory",
	}}
	srv, mgr := newTestServer(t, authn)
	router := srv.Router()

	ctx := context.Background()
	_, err := mgr.GetOrCreate(ctx, "alice", "sid-owned-by-alice")
	require.NoError(t, err)
	require.NoError(t, srv.owners.Assign("sid-owned-by-alice", "alice"))

	req := httptest.NewRequest(http.MethodGet, "/session/sid-owned-by-alice/status", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: "cookie-mallory"})
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDeleteSessionReturns409WhenReferenced(t *testing.T) {
	authn := &fakeAuthenticator{validCookies: map[string]string{"cookie-alice": "alice"}}
	srv, mgr := newTestServer(t, authn)
	router := srv.Router()

	ctx := context.Background()
	sess, err := mgr.GetOrCreate(ctx, "alice", "sid1")
	require.NoError(t, err)
	require.NoError(t, srv.owners.Assign("sid1", "alice"))

	_, err = mgr.AcquireRef(sess.SessionID)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodDelete, "/session/sid1", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: "cookie-alice"})
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAdminSessionsRejectsNonAdmin(t *testing.T) {
	authn := &fakeAuthenticator{validCookies: map[string]string{"cookie-alice": "alice"}}
	srv, _ := newTestServer(t, authn)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: "cookie-alice"})
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLoginSubmitRejectsBadCredentials(t *testing.T) {
	authn := &fakeAuthenticator{validCookies: map[string]string{}}
	srv, _ := newTestServer(t, authn)
	router := srv.Router()

	form := "username=alice&password=wrong"
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid username or password")
}
