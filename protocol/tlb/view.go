// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package tlb decodes the payloads produced by the trigger logic board: per
// event trigger data and periodic trigger monitoring data.
//
// Both payloads are sequences of little-endian 32-bit words versioned by their
// first (magic) word. Version 2 payloads embed a frame id in the high nibble of
// each data word and end with a checksum word; they are valid only if their
// size, checksum, and frame ids all check out. Version 1 payloads are valid if
// their size is correct.
//
// Field accessors on an invalid payload return ErrInvalidData, unless debug
// mode has been enabled with SetDebug, in which case they return best-effort
// values.
package tlb

import (
	"encoding/binary"

	"github.com/danjacques/gorawevent/protocol"
	"github.com/danjacques/gorawevent/protocol/checksum"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidData is returned when accessing fields of an invalid payload.
	ErrInvalidData = protocol.ErrInvalidData

	// ErrUnknownFormat is returned when a payload's magic word is not
	// recognized, or the payload is too short to hold one.
	ErrUnknownFormat = errors.New("unknown payload format")
)

const frameShift = 28

// layout describes one payload format across its versions.
type layout struct {
	name string

	magic [3]uint32
	words [3]int

	// frames[i] is the frame id expected in the high nibble of word i, or zero
	// if word i carries no frame id.
	frames []uint32
}

func (l *layout) version(magic uint32) int {
	for v := 1; v < len(l.magic); v++ {
		if l.magic[v] == magic {
			return v
		}
	}
	return 0
}

// view is a read-only interpretation of a payload. It does not copy the
// payload, and must not outlive it.
//
// Validity is computed once, when the view is created.
type view struct {
	layout  *layout
	payload []byte
	version int
	debug   bool

	sizeValid     bool
	checksumValid bool
	framesValid   bool
}

func newView(l *layout, payload []byte) (view, error) {
	if len(payload) < 4 {
		return view{}, errors.Wrapf(ErrUnknownFormat, "%s payload is %d bytes", l.name, len(payload))
	}
	magic := binary.LittleEndian.Uint32(payload)
	version := l.version(magic)
	if version == 0 {
		return view{}, errors.Wrapf(ErrUnknownFormat, "%s magic 0x%08X", l.name, magic)
	}
	v := view{
		layout:  l,
		payload: payload,
		version: version,
	}
	v.sizeValid = len(payload) == l.words[version]*4
	v.checksumValid = version < 2 || checksum.Verify(checksum.Words(payload))
	v.framesValid = version < 2 || v.framesMatch()
	return v, nil
}

// Version returns the payload's format version.
func (v *view) Version() int { return v.version }

// SetDebug enables or disables best-effort field access on invalid payloads.
func (v *view) SetDebug(debug bool) { v.debug = debug }

// NumWords returns the number of whole 32-bit words in the payload.
func (v *view) NumWords() int { return len(v.payload) / 4 }

// word returns word i, or zero if the payload does not contain it.
func (v *view) word(i int) uint32 {
	off := i * 4
	if off+4 > len(v.payload) {
		return 0
	}
	return binary.LittleEndian.Uint32(v.payload[off:])
}

// SizeValid returns true if the payload has the size its version requires.
func (v *view) SizeValid() bool { return v.sizeValid }

// ChecksumValid returns true if the payload's trailing checksum matches its
// contents. Version 1 payloads carry no checksum, and always report true.
func (v *view) ChecksumValid() bool { return v.checksumValid }

// FramesValid returns true if every frame id nibble matches the one expected
// for its word. Version 1 payloads carry no frame ids, and always report true.
func (v *view) FramesValid() bool { return v.framesValid }

func (v *view) framesMatch() bool {
	for i, frame := range v.layout.frames {
		if frame != 0 && v.word(i)>>frameShift != frame {
			return false
		}
	}
	return true
}

// Valid returns true if the payload is structurally sound.
func (v *view) Valid() bool {
	return v.sizeValid && v.checksumValid && v.framesValid
}

// field returns the masked contents of word i.
func (v *view) field(i int, shift uint, mask uint32) (uint32, error) {
	if !v.debug && !v.Valid() {
		return 0, errors.Wrapf(ErrInvalidData, "%s v%d word %d", v.layout.name, v.version, i)
	}
	return (v.word(i) >> shift) & mask, nil
}

// sealRecord fills in frame ids for version 2 records and computes the
// trailing checksum.
func sealRecord(l *layout, version int, words []uint32) ([]byte, error) {
	if version < 1 || version >= len(l.magic) {
		return nil, errors.Errorf("unsupported %s version %d", l.name, version)
	}

	words[0] = l.magic[version]
	if version >= 2 {
		for i, frame := range l.frames {
			if frame != 0 {
				words[i] = (words[i] &^ (0xF << frameShift)) | frame<<frameShift
			}
		}
		words = append(words, 0)
		checksum.Seal(words)
	}
	return checksum.PutWords(words), nil
}
