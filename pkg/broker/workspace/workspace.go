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

// Package workspace is the thin archive/upload surface: simple
// streaming I/O over an authenticated path. It streams a session's
// workspace directory down as a zip archive over archive/zip, and
// streams a single uploaded file back up into it over mime/multipart.
package workspace

import (
	"archive/zip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"vibe-broker/pkg/common/fsutil"
)

// maxUploadBytes bounds a single upload; the workspace is a terminal
// scratch directory, not a file store.
const maxUploadBytes = 256 << 20

// Archive streams root's contents as a zip archive to w. Each entry's
// name is root-relative, so the receiving end doesn't see the host's
// absolute workspace path.
func Archive(w io.Writer, root string) error {
	zw := zip.NewWriter(w)
	defer zw.Close()

	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		entry, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(entry, f)

		return err
	})
}

// Upload reads a single multipart file field named "file" from r and
// writes it into root under its original base name, rejecting any name
// that would escape root via path traversal.
func Upload(r *http.Request, root string) (string, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return "", fmt.Errorf("workspace: parsing upload: %w", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return "", fmt.Errorf("workspace: reading file field: %w", err)
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if name == "" || name == "." || name == string(filepath.Separator) || strings.Contains(header.Filename, "..") {
		return "", fmt.Errorf("workspace: invalid upload filename %q", header.Filename)
	}

	dest := filepath.Join(root, name)

	if err := fsutil.EnsureWorkspaceDir(root); err != nil {
		return "", fmt.Errorf("workspace: preparing destination: %w", err)
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("workspace: creating %s: %w", dest, err)
	}
	defer out.Close()

	if _, err := io.CopyN(out, file, maxUploadBytes); err != nil && err != io.EOF {
		return "", fmt.Errorf("workspace: writing %s: %w", dest, err)
	}

	if err := os.Chown(dest, fsutil.WorkspaceUID, fsutil.WorkspaceGID); err != nil {
		return "", fmt.Errorf("workspace: chowning %s: %w", dest, err)
	}

	return name, nil
}
