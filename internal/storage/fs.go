// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package storage keeps uploaded sources and generated artifacts on the
// local filesystem, one directory per job.
package storage

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidHandle is returned for handles that escape the storage root.
var ErrInvalidHandle = errors.New("invalid storage handle")

// FS is a filesystem artifact store. Handles are paths relative to the
// root, of the form "<job id>/<name>".
type FS struct {
	root string
}

// New creates the root directory if needed and returns a store over it.
func New(root string) (*FS, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create storage root %s: %w", root, err)
	}
	slog.Info("artifact storage initialised", "root", root)
	return &FS{root: root}, nil
}

// Put stores r as <jobID>/<name> and returns its handle.
func (s *FS) Put(jobID, name string, r io.Reader) (string, error) {
	return s.Write(jobID, name, func(w io.Writer) error {
		_, err := io.Copy(w, r)
		return err
	})
}

// Write stores the output of fn as <jobID>/<name>. The file is written to a
// temporary name and renamed into place, so readers never see a partial
// artifact.
func (s *FS) Write(jobID, name string, fn func(w io.Writer) error) (string, error) {
	handle, err := s.handle(jobID, name)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(s.root, jobID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create job dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := fn(tmp); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write %s: %w", handle, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("sync %s: %w", handle, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", handle, err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.root, handle)); err != nil {
		return "", fmt.Errorf("rename %s: %w", handle, err)
	}
	return handle, nil
}

// Open opens a stored artifact for reading.
func (s *FS) Open(handle string) (io.ReadCloser, error) {
	path, err := s.resolve(handle)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open artifact %s: %w", handle, err)
	}
	return f, nil
}

// Remove deletes a single artifact. A missing file is not an error.
func (s *FS) Remove(handle string) error {
	path, err := s.resolve(handle)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove artifact %s: %w", handle, err)
	}
	return nil
}

// RemoveJob deletes every artifact of a job. A missing directory is not an
// error.
func (s *FS) RemoveJob(jobID string) error {
	if !validSegment(jobID) {
		return ErrInvalidHandle
	}
	if err := os.RemoveAll(filepath.Join(s.root, jobID)); err != nil {
		return fmt.Errorf("remove job dir %s: %w", jobID, err)
	}
	return nil
}

func (s *FS) handle(jobID, name string) (string, error) {
	if !validSegment(jobID) || !validSegment(name) {
		return "", fmt.Errorf("%w: %q/%q", ErrInvalidHandle, jobID, name)
	}
	return jobID + "/" + name, nil
}

func (s *FS) resolve(handle string) (string, error) {
	parts := strings.Split(handle, "/")
	if len(parts) != 2 || !validSegment(parts[0]) || !validSegment(parts[1]) {
		return "", fmt.Errorf("%w: %q", ErrInvalidHandle, handle)
	}
	return filepath.Join(s.root, parts[0], parts[1]), nil
}

func validSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}
