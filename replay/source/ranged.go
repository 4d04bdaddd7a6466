// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package source

import (
	"context"
	"io"

	"github.com/danjacques/gorawevent/support/dataio"

	"github.com/pkg/errors"
)

// DefaultReadAhead is the default number of bytes fetched per ranged request.
const DefaultReadAhead = 1024 * 1024

// rangeFetcher fetches the byte range [off, off+n) of a remote object.
type rangeFetcher func(ctx context.Context, off, n int64) (io.ReadCloser, error)

// rangedSource is a Source over a remote object that supports ranged reads.
//
// Reads are served from a read-ahead window, so that sequential reads of
// small headers do not each issue a request.
type rangedSource struct {
	ctx   context.Context
	fetch rangeFetcher

	name      string
	size      int64
	readAhead int64

	// pos is the current read position.
	pos int64

	// window holds the bytes starting at windowOff.
	window    []byte
	windowOff int64
}

func newRangedSource(ctx context.Context, name string, size, readAhead int64, fetch rangeFetcher) *rangedSource {
	if readAhead <= 0 {
		readAhead = DefaultReadAhead
	}
	return &rangedSource{
		ctx:       ctx,
		fetch:     fetch,
		name:      name,
		size:      size,
		readAhead: readAhead,
	}
}

func (rs *rangedSource) Size() int64  { return rs.size }
func (rs *rangedSource) Name() string { return rs.name }

func (rs *rangedSource) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	if rs.pos >= rs.size {
		return 0, io.EOF
	}

	if rs.pos < rs.windowOff || rs.pos >= rs.windowOff+int64(len(rs.window)) {
		if err := rs.fill(int64(len(b))); err != nil {
			return 0, err
		}
	}

	amt := copy(b, rs.window[rs.pos-rs.windowOff:])
	rs.pos += int64(amt)
	return amt, nil
}

// fill loads a window starting at pos, holding at least want bytes if the
// object has them.
func (rs *rangedSource) fill(want int64) error {
	n := rs.readAhead
	if want > n {
		n = want
	}
	if remaining := rs.size - rs.pos; n > remaining {
		n = remaining
	}

	body, err := rs.fetch(rs.ctx, rs.pos, n)
	if err != nil {
		return errors.Wrapf(err, "fetching %d bytes at %d from %q", n, rs.pos, rs.name)
	}
	defer body.Close()

	if cap(rs.window) < int(n) {
		rs.window = make([]byte, n)
	}
	rs.window = rs.window[:n]

	amt, err := dataio.ReadFull(body, rs.window)
	rs.window, rs.windowOff = rs.window[:amt], rs.pos
	if err != nil {
		return errors.Wrapf(err, "reading %d bytes at %d from %q", n, rs.pos, rs.name)
	}
	return nil
}

func (rs *rangedSource) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = rs.pos + offset
	case io.SeekEnd:
		pos = rs.size + offset
	default:
		return rs.pos, errors.Errorf("invalid whence %d", whence)
	}
	if pos < 0 {
		return rs.pos, errors.Errorf("seek to negative position %d", pos)
	}
	rs.pos = pos
	return pos, nil
}

func (rs *rangedSource) Close() error {
	rs.window = nil
	return nil
}
