// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package source

import (
	"context"
	"io"
	"strings"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

// SnappyPrefix selects a framed snappy archive. The remainder of the name is
// opened through the inner Opener: "snappy+file:/data/run.raw.sz".
const SnappyPrefix = "snappy+"

// SnappyOpener opens framed snappy archives, inflating them into memory.
type SnappyOpener struct {
	// Inner opens the compressed archive.
	Inner Opener
}

var _ Opener = (*SnappyOpener)(nil)

func innerName(name string) string { return strings.TrimPrefix(name, SnappyPrefix) }

// Open implements Opener.
func (o *SnappyOpener) Open(ctx context.Context, name string) (Source, error) {
	inner, err := o.Inner.Open(ctx, innerName(name))
	if err != nil {
		return nil, err
	}
	defer inner.Close()

	data, err := io.ReadAll(snappy.NewReader(inner))
	if err != nil {
		return nil, errors.Wrapf(err, "inflating %q", name)
	}
	return NewMemorySource(name, data), nil
}

// Exists implements Opener.
func (o *SnappyOpener) Exists(ctx context.Context, name string) (bool, error) {
	return o.Inner.Exists(ctx, innerName(name))
}

// WriteSnappy writes a framed snappy archive of r to w.
func WriteSnappy(w io.Writer, r io.Reader) error {
	sw := snappy.NewBufferedWriter(w)
	if _, err := io.Copy(sw, r); err != nil {
		_ = sw.Close()
		return errors.Wrap(err, "compressing")
	}
	return errors.Wrap(sw.Close(), "closing snappy writer")
}
