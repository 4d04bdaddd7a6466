// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package checksum implements the Fletcher-style running checksum embedded in
// versioned hardware payloads.
package checksum

import (
	"encoding/binary"
)

const modulus = 65535

// Fletcher32 computes the checksum of words.
//
// Each 32-bit word contributes its low 16-bit half and then its high 16-bit
// half to two running sums, each reduced modulo 65535. The result holds the
// second sum in its high 16 bits and the first in its low 16 bits.
func Fletcher32(words []uint32) uint32 {
	var sum1, sum2 uint32
	for _, w := range words {
		for _, half := range [2]uint32{w & 0xFFFF, w >> 16} {
			sum1 = (sum1 + half) % modulus
			sum2 = (sum2 + sum1) % modulus
		}
	}
	return sum2<<16 | sum1
}

// Words decodes a little-endian payload into 32-bit words. Trailing bytes that
// do not fill a word are ignored.
func Words(payload []byte) []uint32 {
	words := make([]uint32, len(payload)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(payload[i*4:])
	}
	return words
}

// PutWords encodes words into a little-endian payload.
func PutWords(words []uint32) []byte {
	payload := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(payload[i*4:], w)
	}
	return payload
}

// Verify returns true if the last word of words is the checksum of the words
// preceding it.
func Verify(words []uint32) bool {
	if len(words) == 0 {
		return false
	}
	last := len(words) - 1
	return Fletcher32(words[:last]) == words[last]
}

// Seal overwrites the last word of words with the checksum of the words
// preceding it.
func Seal(words []uint32) {
	if len(words) == 0 {
		return
	}
	last := len(words) - 1
	words[last] = Fletcher32(words[:last])
}
