// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package protocol

import (
	"bytes"
	"io"

	"github.com/danjacques/gorawevent/protocol/compress"
	"github.com/danjacques/gorawevent/support/byteslicereader"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

const (
	// EventMarker is the first byte of every event header.
	EventMarker = 0xBB
	// EventVersion is the event header version implemented by this package.
	EventVersion = 0x02
	// EventHeaderSize is the packed size of an event header.
	EventHeaderSize = 44

	// FragmentMarker is the first byte of every fragment header.
	FragmentMarker = 0xAA
	// FragmentVersion is the fragment header version implemented by this
	// package.
	FragmentVersion = 0x0001
	// FragmentHeaderSize is the packed size of a fragment header.
	FragmentHeaderSize = 36

	// MaxRunNumber is the largest run number that fits in an event header.
	MaxRunNumber = 0x00FFFFFF
)

// EventHeader is the fixed-size header that precedes every event.
type EventHeader struct {
	Marker      uint8
	Tag         EventTag
	TriggerBits uint16
	Version     uint8
	Compression compress.Code
	HeaderSize  uint16
	// PayloadSize is the number of payload bytes that follow the header. For a
	// compressed event, this is the stored (compressed) size.
	PayloadSize   uint32
	FragmentCount uint8
	// RunNumber is a 24-bit value.
	RunNumber    uint32
	EventID      uint64
	EventCounter uint64
	BCID         uint16
	Status       uint16
	Timestamp    uint64
}

// Size returns the total encoded size of the event described by h.
func (h *EventHeader) Size() int64 { return int64(h.HeaderSize) + int64(h.PayloadSize) }

// IsCompressed returns true if h describes a compressed payload.
func (h *EventHeader) IsCompressed() bool { return h.Status&StatusCompressed != 0 }

// eventHeaderWire is the packed layout of an EventHeader. FragmentCount and
// RunNumber share one 32-bit word, the count in its low byte.
type eventHeaderWire struct {
	Marker      uint8
	Tag         uint8
	TriggerBits uint16 `struc:",little"`
	Version     uint8
	Compression uint8
	HeaderSize  uint16 `struc:",little"`
	PayloadSize uint32 `struc:",little"`
	CountAndRun uint32 `struc:",little"`

	EventID      uint64 `struc:",little"`
	EventCounter uint64 `struc:",little"`
	BCID         uint16 `struc:",little"`
	Status       uint16 `struc:",little"`
	Timestamp    uint64 `struc:",little"`
}

// ParseEventHeader parses an EventHeader from the start of data.
//
// Bytes following the header are ignored.
func ParseEventHeader(data []byte) (*EventHeader, error) {
	if len(data) < EventHeaderSize {
		return nil, errors.Wrapf(ErrTruncated, "event header needs %d bytes, have %d", EventHeaderSize, len(data))
	}

	var w eventHeaderWire
	if err := struc.Unpack(&byteslicereader.R{Buffer: data[:EventHeaderSize]}, &w); err != nil {
		return nil, errors.Wrap(err, "unpacking event header")
	}

	switch {
	case w.Marker != EventMarker:
		return nil, errors.Wrapf(ErrMalformedHeader, "event marker 0x%02X", w.Marker)
	case w.Version != EventVersion:
		return nil, errors.Wrapf(ErrUnsupportedVersion, "event version 0x%02X", w.Version)
	case w.HeaderSize != EventHeaderSize:
		return nil, errors.Wrapf(ErrMalformedHeader, "event header size %d", w.HeaderSize)
	}

	return &EventHeader{
		Marker:        w.Marker,
		Tag:           EventTag(w.Tag),
		TriggerBits:   w.TriggerBits,
		Version:       w.Version,
		Compression:   compress.Code(w.Compression),
		HeaderSize:    w.HeaderSize,
		PayloadSize:   w.PayloadSize,
		FragmentCount: uint8(w.CountAndRun),
		RunNumber:     w.CountAndRun >> 8,
		EventID:       w.EventID,
		EventCounter:  w.EventCounter,
		BCID:          w.BCID,
		Status:        w.Status,
		Timestamp:     w.Timestamp,
	}, nil
}

// WriteTo writes the packed header to w.
func (h *EventHeader) WriteTo(w io.Writer) (int64, error) {
	wire := eventHeaderWire{
		Marker:       h.Marker,
		Tag:          uint8(h.Tag),
		TriggerBits:  h.TriggerBits,
		Version:      h.Version,
		Compression:  uint8(h.Compression),
		HeaderSize:   h.HeaderSize,
		PayloadSize:  h.PayloadSize,
		CountAndRun:  uint32(h.FragmentCount) | (h.RunNumber&MaxRunNumber)<<8,
		EventID:      h.EventID,
		EventCounter: h.EventCounter,
		BCID:         h.BCID,
		Status:       h.Status,
		Timestamp:    h.Timestamp,
	}
	return packTo(w, &wire, EventHeaderSize)
}

// FragmentHeader is the fixed-size header that precedes every fragment.
type FragmentHeader struct {
	Marker      uint8
	Tag         uint8
	TriggerBits uint16
	Version     uint16
	HeaderSize  uint16
	PayloadSize uint32
	SourceID    SourceID
	EventID     uint64
	BCID        uint16
	Status      uint16
	Timestamp   uint64
}

// fragmentHeaderWire mirrors FragmentHeader field for field, so the two convert
// directly.
type fragmentHeaderWire struct {
	Marker      uint8
	Tag         uint8
	TriggerBits uint16   `struc:",little"`
	Version     uint16   `struc:",little"`
	HeaderSize  uint16   `struc:",little"`
	PayloadSize uint32   `struc:",little"`
	SourceID    SourceID `struc:",little"`
	EventID     uint64   `struc:",little"`
	BCID        uint16   `struc:",little"`
	Status      uint16   `struc:",little"`
	Timestamp   uint64   `struc:",little"`
}

func parseFragmentHeader(data []byte) (*FragmentHeader, error) {
	if len(data) < FragmentHeaderSize {
		return nil, errors.Wrapf(ErrTruncated, "fragment header needs %d bytes, have %d", FragmentHeaderSize, len(data))
	}

	var w fragmentHeaderWire
	if err := struc.Unpack(&byteslicereader.R{Buffer: data[:FragmentHeaderSize]}, &w); err != nil {
		return nil, errors.Wrap(err, "unpacking fragment header")
	}

	switch {
	case w.Marker != FragmentMarker:
		return nil, errors.Wrapf(ErrMalformedHeader, "fragment marker 0x%02X", w.Marker)
	case w.Version != FragmentVersion:
		return nil, errors.Wrapf(ErrUnsupportedVersion, "fragment version 0x%04X", w.Version)
	case w.HeaderSize != FragmentHeaderSize:
		return nil, errors.Wrapf(ErrMalformedHeader, "fragment header size %d", w.HeaderSize)
	}

	h := FragmentHeader(w)
	return &h, nil
}

func (h *FragmentHeader) writeTo(w io.Writer) (int64, error) {
	wire := fragmentHeaderWire(*h)
	return packTo(w, &wire, FragmentHeaderSize)
}

// packTo packs v into a buffer first, so w never observes a partial header.
func packTo(w io.Writer, v interface{}, size int) (int64, error) {
	var buf bytes.Buffer
	buf.Grow(size)
	if err := struc.Pack(&buf, v); err != nil {
		return 0, errors.Wrap(err, "packing header")
	}
	if buf.Len() != size {
		panic(errors.Errorf("packed header is %d bytes, expected %d", buf.Len(), size))
	}
	return buf.WriteTo(w)
}
