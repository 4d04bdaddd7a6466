// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package tracker

import (
	"github.com/pkg/errors"
)

// ChunkBits is the number of stream bits carried by each module data word.
const ChunkBits = 24

const chunkMask = 1<<ChunkBits - 1

// ErrEndOfStream is returned by BitReader when a read extends past the end of
// its stream.
var ErrEndOfStream = errors.New("end of bit stream")

// BitReader reads arbitrary-width fields from a stream of 24-bit chunks.
//
// Bits are consumed most-significant first, and fields may span chunks.
type BitReader struct {
	chunks []uint32
	pos    int
}

// NewBitReader returns a BitReader over chunks. Only the low 24 bits of each
// chunk are used.
func NewBitReader(chunks []uint32) *BitReader {
	return &BitReader{chunks: chunks}
}

// Remaining returns the number of unread bits.
func (br *BitReader) Remaining() int { return len(br.chunks)*ChunkBits - br.pos }

// Read reads an n-bit field, where 0 <= n <= 32.
//
// If fewer than n bits remain, Read returns ErrEndOfStream and consumes
// nothing.
func (br *BitReader) Read(n int) (uint32, error) {
	if n < 0 || n > 32 {
		return 0, errors.Errorf("invalid field width %d", n)
	}
	if n > br.Remaining() {
		return 0, errors.Wrapf(ErrEndOfStream, "reading %d bits with %d remaining", n, br.Remaining())
	}

	var v uint32
	for n > 0 {
		chunk, off := br.pos/ChunkBits, br.pos%ChunkBits
		take := ChunkBits - off
		if take > n {
			take = n
		}

		// Bits [off, off+take) of the chunk, counted from its MSB.
		bits := (br.chunks[chunk] & chunkMask) >> uint(ChunkBits-off-take)
		bits &= 1<<uint(take) - 1

		v = v<<uint(take) | bits
		br.pos += take
		n -= take
	}
	return v, nil
}

// ReadBit reads a single bit.
func (br *BitReader) ReadBit() (bool, error) {
	v, err := br.Read(1)
	return v != 0, err
}

// BitWriter builds a stream of 24-bit chunks, most-significant bit first.
type BitWriter struct {
	chunks []uint32
	n      int
}

// Write appends the low n bits of v, where 0 <= n <= 32.
func (bw *BitWriter) Write(v uint32, n int) {
	if n < 0 || n > 32 {
		panic(errors.Errorf("invalid field width %d", n))
	}

	for n > 0 {
		off := bw.n % ChunkBits
		if off == 0 {
			bw.chunks = append(bw.chunks, 0)
		}
		take := ChunkBits - off
		if take > n {
			take = n
		}

		bits := (v >> uint(n-take)) & (1<<uint(take) - 1)
		bw.chunks[len(bw.chunks)-1] |= bits << uint(ChunkBits-off-take)
		bw.n += take
		n -= take
	}
}

// WriteString appends a string of '0' and '1' characters, for fixed bit
// patterns.
func (bw *BitWriter) WriteString(pattern string) {
	for _, c := range pattern {
		switch c {
		case '0':
			bw.Write(0, 1)
		case '1':
			bw.Write(1, 1)
		default:
			panic(errors.Errorf("invalid bit %q in pattern %q", c, pattern))
		}
	}
}

// Len returns the number of bits written.
func (bw *BitWriter) Len() int { return bw.n }

// Chunks returns the written stream. The final chunk is zero-padded.
func (bw *BitWriter) Chunks() []uint32 { return bw.chunks }
