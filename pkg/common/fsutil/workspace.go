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

package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// WorkspaceUID/WorkspaceGID are the in-container non-root user the agent
// image runs as; bind-mounted workspace directories are chowned to this
// pair so the container's process can write into them.
const (
	WorkspaceUID = 1000
	WorkspaceGID = 1000

	workspaceDirMode  = 0o755
	workspaceFileMode = 0o644
)

// EnsureWorkspaceDir creates dir (and any missing parents) and chowns the
// leaf directory to WorkspaceUID/WorkspaceGID so it is writable by the
// session container's default user.
func EnsureWorkspaceDir(dir string) error {
	if err := os.MkdirAll(dir, workspaceDirMode); err != nil {
		return fmt.Errorf("mkdir workspace %s: %w", dir, err)
	}

	if err := os.Chmod(dir, workspaceDirMode); err != nil {
		return fmt.Errorf("chmod workspace %s: %w", dir, err)
	}

	if err := os.Chown(dir, WorkspaceUID, WorkspaceGID); err != nil {
		return fmt.Errorf("chown workspace %s: %w", dir, err)
	}

	return nil
}

// ChownWorkspaceTree walks root and chowns every entry to
// WorkspaceUID/WorkspaceGID, applying workspaceDirMode to directories and
// workspaceFileMode to regular files, so the container's user owns
// everything under root. Nothing in the broker calls it at present.
func ChownWorkspaceTree(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		mode := os.FileMode(workspaceFileMode)
		if info.IsDir() {
			mode = workspaceDirMode
		}

		if err := os.Chmod(path, mode); err != nil {
			return fmt.Errorf("chmod %s: %w", path, err)
		}

		if err := os.Chown(path, WorkspaceUID, WorkspaceGID); err != nil {
			return fmt.Errorf("chown %s: %w", path, err)
		}

		return nil
	})
}
