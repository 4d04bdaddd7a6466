// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package dataio contains small I/O helpers shared by the event codec and the
// file reader.
package dataio

import (
	"io"
)

// ReadFull reads from r until buf is full, or until an error is encountered.
//
// This accommodates the fact that io.Reader is allowed to return less than the
// full buffer size without erroring. If no bytes were read at all, ReadFull
// returns io.EOF; a partial read returns io.ErrUnexpectedEOF along with the
// number of bytes that were read.
func ReadFull(r io.Reader, buf []byte) (int, error) {
	total := 0
	for remaining := buf; len(remaining) > 0; {
		amt, err := r.Read(remaining)
		remaining = remaining[amt:]
		total += amt
		if err != nil {
			switch {
			case err == io.EOF && len(remaining) == 0:
				// Finished read and returned EOF.
				return total, nil
			case err == io.EOF && total == 0:
				return 0, io.EOF
			case err == io.EOF:
				return total, io.ErrUnexpectedEOF
			default:
				return total, err
			}
		}
	}
	return total, nil
}

// CountingWriter wraps a Writer and counts the bytes written through it.
type CountingWriter struct {
	io.Writer

	// Count is the number of bytes written so far.
	Count int64
}

// Write implements io.Writer.
func (cw *CountingWriter) Write(b []byte) (int, error) {
	amt, err := cw.Writer.Write(b)
	cw.Count += int64(amt)
	return amt, err
}
