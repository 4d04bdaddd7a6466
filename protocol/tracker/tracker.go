// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package tracker decodes tracker readout board payloads.
//
// A payload is a sequence of little-endian 32-bit words whose top nibble
// identifies the word type. Module data words each carry a 24-bit chunk of a
// per-module, per-side bitstream; the chunks of one side, concatenated, form a
// dense stream of variable-width records.
//
// The payload ends with a trailer word holding the low 24 bits of the
// Fletcher-32 checksum of every preceding word.
package tracker

import (
	"sort"

	"github.com/danjacques/gorawevent/protocol"
	"github.com/danjacques/gorawevent/protocol/checksum"
	"github.com/danjacques/gorawevent/support/logging"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidData is returned when decoding an invalid payload.
	ErrInvalidData = protocol.ErrInvalidData

	// ErrUnknownFormat is returned when a payload does not begin with a
	// header word, or is not a whole number of words.
	ErrUnknownFormat = errors.New("unknown payload format")
)

// Word types, stored in bits 31..28.
const (
	HeaderWord      = 0x1
	BCIDWord        = 0x2
	BoardErrorWord  = 0x3
	Side0DataWord   = 0x4
	Side1DataWord   = 0x5
	ModuleErrorWord = 0x6
	TrailerWord     = 0xF
)

const (
	typeShift   = 28
	moduleShift = 24

	// MaxModules is the number of modules served by one readout board.
	MaxModules = 8
	// ChipsPerSide is the number of chips on each side of a module.
	ChipsPerSide = 6
	// StripsPerChip is the number of strips read by each chip.
	StripsPerChip = 128
)

// Bitstream record prefixes and widths.
const (
	sideHeaderPattern = "11101"
	sideHeaderBits    = 5

	l1Bits      = 4
	sideBCBits  = 8
	chipBits    = 4
	stripBits   = 7
	groupBits   = 3
	patternBits = 2
	errorBits   = 3

	trailerPadBits = 15
)

func wordType(w uint32) uint32 { return w >> typeShift }

// HitPolicy selects which strip patterns count as hits.
type HitPolicy int

const (
	// LevelMode counts any strip with a non-zero pattern.
	LevelMode HitPolicy = iota
	// EdgeMode counts only strips with the rising pattern 0b01.
	EdgeMode
)

func (p HitPolicy) accepts(pattern uint8) bool {
	switch p {
	case EdgeMode:
		return pattern == 0x1
	default:
		return pattern != 0
	}
}

func (p HitPolicy) String() string {
	if p == EdgeMode {
		return "edge"
	}
	return "level"
}

// ChipAddress returns the hardware address of chip index (0-5) on side (0-1).
func ChipAddress(side, index int) uint8 { return uint8(side<<3 | index) }

// chipIndex returns the index of chip address addr on side, or -1 if addr is
// not a valid address for that side.
func chipIndex(side int, addr uint8) int {
	if int(addr>>3) != side || addr&0x7 >= ChipsPerSide {
		return -1
	}
	return int(addr & 0x7)
}

// Hit is a single strip hit.
type Hit struct {
	Side    int
	Chip    uint8
	Strip   uint8
	Pattern uint8
}

// ChipError is an error record reported by a chip.
type ChipError struct {
	Side int
	Chip uint8
	Code uint8
}

// Module is the decoded data of one module.
type Module struct {
	ID uint8

	// Complete is true if both sides delivered a header and a trailer.
	Complete bool
	// MissingData is true if a side delivered no data, or its stream ended
	// before its trailer.
	MissingData bool
	// BCIDMismatch is true if the two sides reported different BCIDs.
	BCIDMismatch bool
	// Malformed is true if a side's stream contained an unrecognized record.
	Malformed bool

	// L1ID and BCID are the per-side values from each side header.
	L1ID [2]uint8
	BCID [2]uint8

	Hits         []Hit
	ChipErrors   []ChipError
	UnknownChips []uint8
	// Errors holds the contents of module error words.
	Errors []uint32
}

// Data is a read-only view of a tracker payload.
//
// It does not copy the payload, and must not outlive it.
type Data struct {
	words []uint32
	debug bool

	// Logger, if not nil, receives debug logs about malformed streams.
	Logger logging.L
}

// New returns a view of payload.
//
// An error is returned if payload is not a whole number of words or does not
// begin with a header word. Use Valid to check the rest.
func New(payload []byte) (*Data, error) {
	if len(payload) < 4 || len(payload)%4 != 0 {
		return nil, errors.Wrapf(ErrUnknownFormat, "tracker payload is %d bytes", len(payload))
	}
	words := checksum.Words(payload)
	if wordType(words[0]) != HeaderWord {
		return nil, errors.Wrapf(ErrUnknownFormat, "first word 0x%08X is not a header", words[0])
	}
	return &Data{words: words}, nil
}

// SetDebug enables or disables best-effort decoding of invalid payloads.
func (d *Data) SetDebug(debug bool) { d.debug = debug }

// Version returns the payload format version, from its header word.
func (d *Data) Version() int { return int(d.words[0]>>24) & 0xF }

// ChecksumValid returns true if the payload ends in a trailer word whose
// checksum matches the preceding words.
func (d *Data) ChecksumValid() bool {
	last := len(d.words) - 1
	if last < 1 || wordType(d.words[last]) != TrailerWord {
		return false
	}
	return checksum.Fletcher32(d.words[:last])&chunkMask == d.words[last]&chunkMask
}

// Valid returns true if the payload's checksum matches and every word has a
// known type.
func (d *Data) Valid() bool {
	if !d.ChecksumValid() {
		return false
	}
	for _, w := range d.words[1 : len(d.words)-1] {
		switch wordType(w) {
		case BCIDWord, BoardErrorWord, Side0DataWord, Side1DataWord, ModuleErrorWord:
		default:
			return false
		}
	}
	return true
}

func (d *Data) check() error {
	if !d.debug && !d.Valid() {
		return errors.Wrap(ErrInvalidData, "tracker payload failed validation")
	}
	return nil
}

// L1ID returns the 24-bit L1 id from the header word.
func (d *Data) L1ID() (uint32, error) {
	if err := d.check(); err != nil {
		return 0, err
	}
	return d.words[0] & chunkMask, nil
}

// BCID returns the 12-bit board BCID.
func (d *Data) BCID() (uint16, error) {
	if err := d.check(); err != nil {
		return 0, err
	}
	for _, w := range d.words {
		if wordType(w) == BCIDWord {
			return uint16(w & 0xFFF), nil
		}
	}
	return 0, errors.Wrap(ErrInvalidData, "no BCID word")
}

// BoardErrors returns the contents of any board error words.
func (d *Data) BoardErrors() ([]uint32, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	var errs []uint32
	for _, w := range d.words {
		if wordType(w) == BoardErrorWord {
			errs = append(errs, w&chunkMask)
		}
	}
	return errs, nil
}

// Modules decodes every module with data or errors in the payload, ordered by
// module id. Hits are filtered according to policy.
func (d *Data) Modules(policy HitPolicy) ([]*Module, error) {
	if err := d.check(); err != nil {
		return nil, err
	}

	type moduleWords struct {
		chunks [2][]uint32
		errors []uint32
	}
	var byID [MaxModules]*moduleWords
	get := func(w uint32) *moduleWords {
		id := (w >> moduleShift) & 0x7
		if byID[id] == nil {
			byID[id] = &moduleWords{}
		}
		return byID[id]
	}

	for _, w := range d.words {
		switch wordType(w) {
		case Side0DataWord:
			mw := get(w)
			mw.chunks[0] = append(mw.chunks[0], w&chunkMask)
		case Side1DataWord:
			mw := get(w)
			mw.chunks[1] = append(mw.chunks[1], w&chunkMask)
		case ModuleErrorWord:
			mw := get(w)
			mw.errors = append(mw.errors, w&chunkMask)
		}
	}

	var modules []*Module
	for id, mw := range byID {
		if mw == nil {
			continue
		}

		m := Module{ID: uint8(id), Errors: mw.errors, Complete: true}
		var sawHeader [2]bool
		for side := 0; side < 2; side++ {
			header, trailer := d.decodeSide(&m, side, mw.chunks[side], policy)
			sawHeader[side] = header
			if !header || !trailer {
				m.Complete = false
				m.MissingData = true
			}
		}
		if sawHeader[0] && sawHeader[1] && m.BCID[0] != m.BCID[1] {
			m.BCIDMismatch = true
		}
		modules = append(modules, &m)
	}
	return modules, nil
}

// decodeSide decodes one side's stream into m, returning whether its header
// and trailer were seen.
func (d *Data) decodeSide(m *Module, side int, chunks []uint32, policy HitPolicy) (header, trailer bool) {
	if len(chunks) == 0 {
		return false, false
	}
	log := logging.Must(d.Logger)
	br := NewBitReader(chunks)

	// A failed read means the stream ended early; the caller flags this.
	read := func(n int) (uint32, bool) {
		v, err := br.Read(n)
		return v, err == nil
	}

	pattern, ok := read(sideHeaderBits)
	if !ok || pattern != 0x1D {
		log.Debugf("Module %d side %d: bad header pattern 0x%X.", m.ID, side, pattern)
		m.Malformed = true
		return false, false
	}
	l1, ok1 := read(l1Bits)
	bc, ok2 := read(sideBCBits)
	if !ok1 || !ok2 {
		return false, false
	}
	m.L1ID[side], m.BCID[side] = uint8(l1), uint8(bc)

	for {
		bit, ok := read(1)
		if !ok {
			return true, false
		}
		if bit == 1 {
			// Trailer: "1" followed by zero padding.
			pad, ok := read(trailerPadBits)
			if !ok {
				return true, false
			}
			if pad != 0 {
				log.Debugf("Module %d side %d: non-zero trailer padding 0x%X.", m.ID, side, pad)
				m.Malformed = true
			}
			return true, true
		}

		if bit, ok = read(1); !ok {
			return true, false
		}
		if bit == 1 {
			// Hit record: "01" chip strip group-1 patterns...
			chip, ok1 := read(chipBits)
			strip, ok2 := read(stripBits)
			group, ok3 := read(groupBits)
			if !ok1 || !ok2 || !ok3 {
				return true, false
			}
			for i := 0; i <= int(group); i++ {
				p, ok := read(patternBits)
				if !ok {
					return true, false
				}
				m.addHit(side, uint8(chip), int(strip)+i, uint8(p), policy)
			}
			continue
		}

		if bit, ok = read(1); !ok {
			return true, false
		}
		if bit == 1 {
			// Error record: "001" chip code.
			chip, ok1 := read(chipBits)
			code, ok2 := read(errorBits)
			if !ok1 || !ok2 {
				return true, false
			}
			if chipIndex(side, uint8(chip)) < 0 {
				m.addUnknownChip(uint8(chip))
				continue
			}
			m.ChipErrors = append(m.ChipErrors, ChipError{Side: side, Chip: uint8(chip), Code: uint8(code)})
			continue
		}

		// "000" is not a valid record prefix; the remainder is unreadable.
		log.Debugf("Module %d side %d: invalid record prefix at bit %d.", m.ID, side, len(chunks)*ChunkBits-br.Remaining())
		m.Malformed = true
		return true, false
	}
}

func (m *Module) addHit(side int, chip uint8, strip int, pattern uint8, policy HitPolicy) {
	if chipIndex(side, chip) < 0 {
		m.addUnknownChip(chip)
		return
	}
	if strip >= StripsPerChip || !policy.accepts(pattern) {
		return
	}
	m.Hits = append(m.Hits, Hit{Side: side, Chip: chip, Strip: uint8(strip), Pattern: pattern})
}

func (m *Module) addUnknownChip(chip uint8) {
	i := sort.Search(len(m.UnknownChips), func(i int) bool { return m.UnknownChips[i] >= chip })
	if i < len(m.UnknownChips) && m.UnknownChips[i] == chip {
		return
	}
	m.UnknownChips = append(m.UnknownChips, 0)
	copy(m.UnknownChips[i+1:], m.UnknownChips[i:])
	m.UnknownChips[i] = chip
}

// NumHits returns the total number of hits across modules.
func NumHits(modules []*Module) int {
	n := 0
	for _, m := range modules {
		n += len(m.Hits)
	}
	return n
}
