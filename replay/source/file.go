// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package source

import (
	"context"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// FilePrefix is the optional prefix of local file names.
const FilePrefix = "file:"

// FileOpener opens local files.
type FileOpener struct{}

var _ Opener = FileOpener{}

func filePath(name string) string { return strings.TrimPrefix(name, FilePrefix) }

// Open implements Opener.
func (FileOpener) Open(ctx context.Context, name string) (Source, error) {
	fd, err := os.Open(filePath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "%q", name)
		}
		return nil, errors.Wrapf(err, "opening %q", name)
	}

	st, err := fd.Stat()
	if err != nil {
		_ = fd.Close()
		return nil, errors.Wrapf(err, "stat %q", name)
	}
	if st.IsDir() {
		_ = fd.Close()
		return nil, errors.Errorf("%q is a directory", name)
	}
	return &fileSource{File: fd, name: name, size: st.Size()}, nil
}

// Exists implements Opener.
func (FileOpener) Exists(ctx context.Context, name string) (bool, error) {
	switch st, err := os.Stat(filePath(name)); {
	case err == nil:
		return !st.IsDir(), nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, errors.Wrapf(err, "stat %q", name)
	}
}

type fileSource struct {
	*os.File

	name string
	size int64
}

func (fs *fileSource) Size() int64  { return fs.size }
func (fs *fileSource) Name() string { return fs.name }
