// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package stagingdir stages output files in a temporary directory and moves
// them into place atomically once they are complete.
package stagingdir

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// ErrInvalid is returned when operating on a D that has already been committed
// or destroyed.
var ErrInvalid = errors.New("invalid staging directory")

// D manages a staging directory.
//
// While D is active, it resides in a temporary location. Files are created
// within it and, once finished, a single file can be committed to its final
// destination. On destroy, the directory is deleted along with all of its
// contents.
type D struct {
	// tempDir is the temporary directory to use for staging.
	tempDir string

	// path is the path of the staging directory.
	path string
}

// New creates a new staging directory underneath of tempDir.
//
// If tempDir is empty, the system temporary directory is used. The directory
// will be created with the specified prefix.
func New(tempDir, prefix string) (*D, error) {
	stagingPath, err := os.MkdirTemp(tempDir, prefix)
	if err != nil {
		return nil, errors.Wrap(err, "creating staging directory")
	}

	return &D{
		tempDir: tempDir,
		path:    stagingPath,
	}, nil
}

// Path builds a path relative to the staging directory from the provided
// components.
func (sd *D) Path(first string, components ...string) string {
	if sd.path == "" {
		panic("invalid")
	}

	if len(components) == 0 {
		return filepath.Join(sd.path, first)
	}

	comps := make([]string, 0, 2+len(components))
	comps = append(comps, sd.path, first)
	return filepath.Join(append(comps, components...)...)
}

// Destroy purges the staging directory and its contents.
func (sd *D) Destroy() error {
	if sd.path == "" {
		return nil
	}

	if err := os.RemoveAll(sd.path); err != nil {
		return err
	}
	sd.path = ""
	return nil
}

// CommitFile atomically moves the staged file, name, to dest, replacing any
// existing file there. The staging directory is destroyed afterwards.
//
// dest must reside on the same filesystem as the staging directory.
func (sd *D) CommitFile(name, dest string) error {
	if sd.path == "" {
		return ErrInvalid
	}

	src := sd.Path(name)
	if _, err := os.Stat(src); err != nil {
		return errors.Wrapf(err, "staged file %q", name)
	}

	// os.Rename replaces regular files atomically, but not directories.
	if st, err := os.Stat(dest); err == nil && st.IsDir() {
		return errors.Errorf("destination %q is a directory", dest)
	}

	if err := os.Rename(src, dest); err != nil {
		return errors.Wrapf(err, "moving staged file into place (%q => %q)", src, dest)
	}
	return sd.Destroy()
}
