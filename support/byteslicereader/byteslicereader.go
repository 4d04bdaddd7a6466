// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package byteslicereader offers R, a slice-backed reader with zero-copy
// options.
//
// Standard io.Reader methods require that data be copied into a target buffer.
// The zero-copy options, Peek and Next, return slices of R's underlying
// Buffer. Event decoding uses them to walk fragments inside an event payload
// without copying the payload twice.
//
// Holding a reference to the underlying Buffer means that the Buffer must
// persist as long as that reference is valid. If AlwaysCopy is set, zero-copy
// operations return copies instead, and callers own what they receive.
package byteslicereader

import (
	"io"

	"github.com/pkg/errors"
)

// ErrSeekOutOfBounds is returned by Seek when the target position is negative.
var ErrSeekOutOfBounds = errors.New("seek outside of bounds")

// R is an io.Reader-inspired type that exposes operations returning byte
// slices instead of filling a byte slice.
//
// R also satisfies io.ReadSeeker and io.ReaderAt with standard semantics, so it
// can stand in for a file. R can be copied, creating a snapshot of its current
// state.
type R struct {
	// Buffer is the backing buffer for this reader.
	Buffer []byte

	// AlwaysCopy, if true, causes zero-copy methods to return copies of their
	// backing data instead of direct references.
	AlwaysCopy bool

	// pos is the R's position within Buffer. It may exceed len(Buffer) after a
	// seek past the end, in which case reads return io.EOF.
	pos int64
}

var _ interface {
	io.Reader
	io.ByteReader
	io.Seeker
	io.ReaderAt
} = (*R)(nil)

func (r *R) remainingSlice() []byte {
	if r.pos >= int64(len(r.Buffer)) {
		return nil
	}
	return r.Buffer[r.pos:]
}

// Remaining returns the number of bytes remaining in the reader, from the
// current position.
func (r *R) Remaining() int { return len(r.remainingSlice()) }

// Offset returns the current position within Buffer.
func (r *R) Offset() int64 { return r.pos }

// Size returns the total size of Buffer.
func (r *R) Size() int64 { return int64(len(r.Buffer)) }

// Read implements io.Reader.
//
// Note that using Read causes data to be copied.
func (r *R) Read(b []byte) (amt int, err error) {
	remaining := r.remainingSlice()
	if len(remaining) == 0 && len(b) > 0 {
		return 0, io.EOF
	}
	amt = copy(b, remaining)
	r.pos += int64(amt)
	return
}

// ReadAt implements io.ReaderAt. It does not affect the reader's position.
func (r *R) ReadAt(b []byte, off int64) (int, error) {
	if off < 0 {
		return 0, ErrSeekOutOfBounds
	}
	if off >= int64(len(r.Buffer)) {
		return 0, io.EOF
	}
	amt := copy(b, r.Buffer[off:])
	if amt < len(b) {
		return amt, io.EOF
	}
	return amt, nil
}

// ReadByte implements io.ByteReader.
func (r *R) ReadByte() (b byte, err error) {
	if r.pos >= int64(len(r.Buffer)) {
		return 0, io.EOF
	}

	b, r.pos = r.Buffer[r.pos], r.pos+1
	return
}

// Seek implements io.Seeker.
//
// Seeking past the end of Buffer is legal; subsequent reads return io.EOF.
func (r *R) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = r.pos + offset
	case io.SeekEnd:
		newPos = int64(len(r.Buffer)) + offset
	default:
		return r.pos, errors.Errorf("invalid whence %d", whence)
	}

	if newPos < 0 {
		return r.pos, ErrSeekOutOfBounds
	}
	r.pos = newPos
	return r.pos, nil
}

// Peek returns the next n bytes in r without advancing it.
//
// If there are fewer than n bytes in r, Peek will return as many as possible.
func (r *R) Peek(n int) []byte {
	v := r.remainingSlice()
	if n < len(v) {
		v = v[:n]
	}

	if r.AlwaysCopy {
		v = append([]byte(nil), v...)
	}
	return v
}

// Next returns the next n bytes in r, advancing r.
//
// If there are fewer than n bytes in r, Next will return as many bytes as it
// can and io.EOF as an error. Next will never return an error if all requested
// bytes are returned.
func (r *R) Next(n int) (v []byte, err error) {
	v = r.remainingSlice()
	if n <= len(v) {
		v = v[:n]
	} else {
		err = io.EOF
	}

	if r.AlwaysCopy {
		v = append([]byte(nil), v...)
	}

	r.pos += int64(len(v))
	return
}

// Close implements io.Closer. It releases the reference to Buffer.
func (r *R) Close() error {
	r.Buffer, r.pos = nil, 0
	return nil
}
