// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package protocol

import (
	"bytes"
	"io"

	"github.com/danjacques/gorawevent/protocol/compress"
	"github.com/danjacques/gorawevent/support/dataio"

	"github.com/pkg/errors"
)

// maxFragments is the largest fragment count that an event header can hold.
const maxFragments = 0xFF

// Event is the aggregate of all fragments belonging to one trigger.
//
// An Event is built either by NewEvent followed by AddFragment, or by parsing
// with ParseEvent or ReadEvent. A compressed event retains its stored payload
// so that it serializes back to the bytes it was read from.
//
// Event is not safe for concurrent mutation.
type Event struct {
	EventHeader

	// fragments maps source ids to their fragments.
	fragments map[SourceID]*Fragment
	// order is the insertion order of fragments.
	order []SourceID
	// fragmentBytes is the uncompressed payload size, the sum of all fragment
	// sizes.
	fragmentBytes uint32

	// stored is the compressed payload, if the event is compressed.
	stored []byte
}

// NewEvent returns an empty, uncompressed Event.
func NewEvent(tag EventTag, runNumber uint32, eventCounter, timestamp uint64) *Event {
	return &Event{
		EventHeader: EventHeader{
			Marker:       EventMarker,
			Tag:          tag,
			Version:      EventVersion,
			Compression:  compress.None,
			HeaderSize:   EventHeaderSize,
			RunNumber:    runNumber & MaxRunNumber,
			EventCounter: eventCounter,
			Timestamp:    timestamp,
		},
	}
}

// AddFragment adds f to the event.
//
// The event's fragment count, payload size, trigger bits, and status are
// updated. EventID and BCID are adopted from the first fragment; a trigger
// fragment always overrides BCID. If f's BCID disagrees with the event's,
// StatusBCIDMismatch is OR'd into the event status and returned. This is not
// an error.
//
// Adding a fragment to a compressed event discards its stored payload; call
// Compress again to recompress.
func (e *Event) AddFragment(f *Fragment) (uint16, error) {
	if _, ok := e.fragments[f.SourceID]; ok {
		return 0, errors.Wrapf(ErrDuplicateSourceID, "source %s", f.SourceID)
	}
	if len(e.order) >= maxFragments {
		return 0, errors.Wrapf(ErrTooManyFragments, "source %s", f.SourceID)
	}

	var flags uint16
	if len(e.order) == 0 {
		e.EventID = f.EventID
		e.BCID = f.BCID
	} else if f.BCID != e.BCID {
		flags |= StatusBCIDMismatch
	}
	if f.SourceID.Class() == TriggerSource {
		e.BCID = f.BCID
	}

	if e.fragments == nil {
		e.fragments = make(map[SourceID]*Fragment)
	}
	e.fragments[f.SourceID] = f
	e.order = append(e.order, f.SourceID)
	e.fragmentBytes += f.Size()

	e.FragmentCount = uint8(len(e.order))
	e.TriggerBits |= f.TriggerBits
	e.Status |= f.Status | flags

	if e.stored != nil {
		e.stored = nil
		e.Compression = compress.None
		e.Status &^= StatusCompressed
	}
	e.PayloadSize = e.fragmentBytes
	return flags, nil
}

// NumFragments returns the number of fragments in the event.
func (e *Event) NumFragments() int { return len(e.order) }

// SourceIDs returns the source ids of the event's fragments, in insertion
// order.
func (e *Event) SourceIDs() []SourceID { return append([]SourceID(nil), e.order...) }

// Fragment returns the fragment for id, or nil if there is none.
func (e *Event) Fragment(id SourceID) *Fragment { return e.fragments[id] }

// Fragments returns the event's fragments in insertion order.
func (e *Event) Fragments() []*Fragment {
	frags := make([]*Fragment, len(e.order))
	for i, id := range e.order {
		frags[i] = e.fragments[id]
	}
	return frags
}

// FragmentsOfClass returns the fragments whose source class is class, in
// insertion order.
func (e *Event) FragmentsOfClass(class SourceID) []*Fragment {
	var frags []*Fragment
	for _, id := range e.order {
		if id.Class() == class.Class() {
			frags = append(frags, e.fragments[id])
		}
	}
	return frags
}

// UncompressedSize returns the size of the event's fragments, before any
// compression.
func (e *Event) UncompressedSize() uint32 { return e.fragmentBytes }

// Compress stores the event's fragments compressed with the engine selected by
// code. Compressing with compress.None removes any compression.
func (e *Event) Compress(code compress.Code, level int) error {
	if code == compress.None {
		e.stored = nil
		e.Compression = compress.None
		e.Status &^= StatusCompressed
		e.PayloadSize = e.fragmentBytes
		return nil
	}

	var buf bytes.Buffer
	buf.Grow(int(e.fragmentBytes))
	if err := e.writeFragments(&buf); err != nil {
		return err
	}
	stored, err := compress.Compress(code, buf.Bytes(), level)
	if err != nil {
		return errors.Wrapf(err, "compressing event %d", e.EventID)
	}

	e.stored = stored
	e.Compression = code
	e.Status |= StatusCompressed
	e.PayloadSize = uint32(len(stored))
	return nil
}

func (e *Event) writeFragments(w io.Writer) error {
	for _, id := range e.order {
		if _, err := e.fragments[id].WriteTo(w); err != nil {
			return errors.Wrapf(err, "writing fragment %s", id)
		}
	}
	return nil
}

// WriteTo writes the event to w. A compressed event writes its header followed
// by the stored compressed payload; otherwise each fragment is written in
// insertion order.
func (e *Event) WriteTo(w io.Writer) (int64, error) {
	cw := dataio.CountingWriter{Writer: w}
	if _, err := e.EventHeader.WriteTo(&cw); err != nil {
		return cw.Count, err
	}

	if e.IsCompressed() {
		_, err := cw.Write(e.stored)
		return cw.Count, err
	}
	return cw.Count, e.writeFragments(&cw)
}

// Bytes returns the event's serialized form.
func (e *Event) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(int(e.Size()))
	if _, err := e.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParseEvent parses an Event from data, which must contain exactly one event.
//
// If the header is marked compressed, the payload is decompressed with the
// engine named by its compression code before fragments are split out. The
// fragments must consume the (decompressed) payload exactly.
//
// The header is authoritative: after parsing, the event's header fields are
// those that were read, regardless of what its fragments declare.
func ParseEvent(data []byte) (*Event, error) {
	h, err := ParseEventHeader(data)
	if err != nil {
		return nil, err
	}

	switch size := h.Size(); {
	case int64(len(data)) < size:
		return nil, errors.Wrapf(ErrTruncated, "event declares %d bytes, have %d", size, len(data))
	case int64(len(data)) > size:
		return nil, errors.Wrapf(ErrPayloadSizeMismatch, "event declares %d bytes, have %d", size, len(data))
	}

	var (
		e      = Event{EventHeader: *h}
		stored []byte
	)
	payload := data[h.HeaderSize:]
	if h.IsCompressed() {
		stored = append([]byte(nil), payload...)
		if payload, err = compress.Decompress(h.Compression, payload); err != nil {
			return nil, errors.Wrapf(err, "event %d", h.EventID)
		}
	} else if h.Compression != compress.None {
		// A code without the compressed status bit must still name a real engine.
		if _, err := compress.Lookup(h.Compression); err != nil {
			return nil, err
		}
	}

	for i := 0; i < int(h.FragmentCount); i++ {
		f, err := ParseFragment(payload, true)
		if err != nil {
			return nil, errors.Wrapf(err, "event %d fragment #%d", h.EventID, i)
		}
		if _, err := e.AddFragment(f); err != nil {
			return nil, errors.Wrapf(err, "event %d fragment #%d", h.EventID, i)
		}
		payload = payload[f.Size():]
	}
	if len(payload) != 0 {
		return nil, errors.Wrapf(ErrPayloadSizeMismatch, "event %d has %d unclaimed payload bytes", h.EventID, len(payload))
	}

	// AddFragment rewrites header fields; restore what was read.
	e.EventHeader = *h
	e.stored = stored
	return &e, nil
}

// ReadEvent reads a single Event from r.
//
// If r is exhausted before any bytes are read, ReadEvent returns io.EOF. A
// partial event returns an error wrapping ErrTruncated.
func ReadEvent(r io.Reader) (*Event, error) {
	hbuf := make([]byte, EventHeaderSize)
	switch _, err := dataio.ReadFull(r, hbuf); err {
	case nil:
	case io.EOF:
		return nil, io.EOF
	case io.ErrUnexpectedEOF:
		return nil, errors.Wrap(ErrTruncated, "reading event header")
	default:
		return nil, errors.Wrap(err, "reading event header")
	}

	h, err := ParseEventHeader(hbuf)
	if err != nil {
		return nil, err
	}

	// The declared size is untrusted; the buffer grows only as bytes arrive.
	var buf bytes.Buffer
	buf.Write(hbuf)
	want := h.Size() - EventHeaderSize
	switch n, err := io.CopyN(&buf, r, want); {
	case err == io.EOF:
		return nil, errors.Wrapf(ErrTruncated, "read %d of %d payload bytes", n, want)
	case err != nil:
		return nil, errors.Wrap(err, "reading event payload")
	}
	return ParseEvent(buf.Bytes())
}
