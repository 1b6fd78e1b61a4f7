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
	"fmt"
	"net/http"

	"vibe-broker/pkg/broker/workspace"
)

// handleWorkspaceDownload implements GET /workspace/{sid}/download:
// streams the session's workspace directory as a zip archive.
func (s *Server) handleWorkspaceDownload(w http.ResponseWriter, r *http.Request, _ string, sid string) {
	sess := s.sessions.Get(sid)
	if sess == nil {
		http.Error(w, "session not found", http.StatusNotFound)

		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.zip"`, sid))

	if err := workspace.Archive(w, sess.WorkspacePath); err != nil {
		logger.Warnf("workspace archive for session %s failed: %v", sid, err)
	}
}

// handleWorkspaceUpload implements POST /workspace/{sid}/upload: writes
// a single uploaded file into the session's workspace directory.
func (s *Server) handleWorkspaceUpload(w http.ResponseWriter, r *http.Request, _ string, sid string) {
	sess := s.sessions.Get(sid)
	if sess == nil {
		http.Error(w, "session not found", http.StatusNotFound)

		return
	}

	name, err := workspace.Upload(r, sess.WorkspacePath)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"filename": name})
}
