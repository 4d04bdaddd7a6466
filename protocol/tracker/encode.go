// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package tracker

import (
	"github.com/danjacques/gorawevent/protocol/checksum"
)

// HitGroup is a run of consecutive strips on one chip, starting at Strip,
// with one 2-bit pattern per strip. A group holds between 1 and 8 patterns.
type HitGroup struct {
	Chip     uint8
	Strip    uint8
	Patterns []uint8
}

// SideRecord is the stream content of one module side.
type SideRecord struct {
	L1ID   uint8
	BCID   uint8
	Hits   []HitGroup
	Errors []ChipError

	// OmitTrailer, if true, ends the stream without a trailer.
	OmitTrailer bool
}

// ModuleRecord is the content of one module. A nil side produces no data
// words for that side.
type ModuleRecord struct {
	ID     uint8
	Sides  [2]*SideRecord
	Errors []uint32
}

// Record is the content of a tracker payload, for encoding.
type Record struct {
	Version     uint8
	L1ID        uint32
	BCID        uint16
	BoardErrors []uint32
	Modules     []ModuleRecord
}

// EncodeSide encodes a side stream into 24-bit chunks.
func EncodeSide(sr *SideRecord) []uint32 {
	var bw BitWriter
	bw.WriteString(sideHeaderPattern)
	bw.Write(uint32(sr.L1ID), l1Bits)
	bw.Write(uint32(sr.BCID), sideBCBits)

	for _, e := range sr.Errors {
		bw.WriteString("001")
		bw.Write(uint32(e.Chip), chipBits)
		bw.Write(uint32(e.Code), errorBits)
	}
	for _, h := range sr.Hits {
		if len(h.Patterns) == 0 || len(h.Patterns) > 1<<groupBits {
			panic("hit group must hold between 1 and 8 patterns")
		}
		bw.WriteString("01")
		bw.Write(uint32(h.Chip), chipBits)
		bw.Write(uint32(h.Strip), stripBits)
		bw.Write(uint32(len(h.Patterns)-1), groupBits)
		for _, p := range h.Patterns {
			bw.Write(uint32(p), patternBits)
		}
	}
	if !sr.OmitTrailer {
		bw.WriteString("1")
		bw.Write(0, trailerPadBits)
	}
	return bw.Chunks()
}

// Marshal encodes r as a payload, terminated by a checksummed trailer.
func (r *Record) Marshal() []byte {
	words := []uint32{
		HeaderWord<<typeShift | uint32(r.Version&0xF)<<24 | r.L1ID&chunkMask,
		BCIDWord<<typeShift | uint32(r.BCID&0xFFF),
	}
	for _, e := range r.BoardErrors {
		words = append(words, BoardErrorWord<<typeShift|e&chunkMask)
	}

	for _, m := range r.Modules {
		module := uint32(m.ID&0x7) << moduleShift
		for side, sr := range m.Sides {
			if sr == nil {
				continue
			}
			wt := uint32(Side0DataWord + side)
			for _, chunk := range EncodeSide(sr) {
				words = append(words, wt<<typeShift|module|chunk)
			}
		}
		for _, e := range m.Errors {
			words = append(words, ModuleErrorWord<<typeShift|module|e&chunkMask)
		}
	}

	words = append(words, TrailerWord<<typeShift|checksum.Fletcher32(words)&chunkMask)
	return checksum.PutWords(words)
}
