// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package fmtutil contains formatting helpers.
package fmtutil

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// Hex is a byte slice that renders as a hex-dumped string.
//
// It can be used for easy lazy hex dumping.
type Hex []byte

func (h Hex) String() string { return hex.Dump([]byte(h)) }

// HexSlice is a byte slice that renders as a sequence of hex bytes, instead
// of the default decimal bytes.
//
// Output as: "[4]byte{0x10, 0x20, 0x30, 0x40}"
type HexSlice []byte

func (hs HexSlice) String() string {
	var sb strings.Builder
	sb.Grow((6 * len(hs)) + 16)
	fmt.Fprintf(&sb, "[%d]byte{", len(hs))
	for i, b := range hs {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "0x%02X", b)
	}
	sb.WriteString("}")
	return sb.String()
}

// Words is a payload that renders as little-endian 32-bit words, four per
// line, each line prefixed with its word index.
//
// Trailing bytes that do not fill a word are rendered as a HexSlice.
type Words []byte

func (w Words) String() string {
	var sb strings.Builder
	n := len(w) / 4
	for i := 0; i < n; i++ {
		if i%4 == 0 {
			if i > 0 {
				sb.WriteByte('\n')
			}
			fmt.Fprintf(&sb, "%04d:", i)
		}
		fmt.Fprintf(&sb, " %08X", binary.LittleEndian.Uint32(w[i*4:]))
	}
	if rem := w[n*4:]; len(rem) > 0 {
		if n > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(HexSlice(rem).String())
	}
	return sb.String()
}
