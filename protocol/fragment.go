// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package protocol

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// Fragment is one sub-system's contribution to an event.
//
// A Fragment owns its Payload.
type Fragment struct {
	FragmentHeader

	// Payload is the fragment's payload. Its length must equal PayloadSize.
	Payload []byte
}

// NewFragment builds a Fragment from source id and payload, populating its
// marker, version, and sizes. The payload is copied.
func NewFragment(id SourceID, eventID uint64, bcid uint16, payload []byte) *Fragment {
	return &Fragment{
		FragmentHeader: FragmentHeader{
			Marker:      FragmentMarker,
			Version:     FragmentVersion,
			HeaderSize:  FragmentHeaderSize,
			PayloadSize: uint32(len(payload)),
			SourceID:    id,
			EventID:     eventID,
			BCID:        bcid,
		},
		Payload: append([]byte(nil), payload...),
	}
}

// Size returns the total encoded size of the fragment.
func (f *Fragment) Size() uint32 { return uint32(f.HeaderSize) + f.PayloadSize }

// ParseFragment parses a Fragment from data.
//
// If allowExcess is false, data must contain exactly one fragment. Otherwise,
// bytes beyond the fragment's declared size are ignored; this is used when
// walking the fragments packed inside an event payload.
func ParseFragment(data []byte, allowExcess bool) (*Fragment, error) {
	h, err := parseFragmentHeader(data)
	if err != nil {
		return nil, err
	}

	size := int64(h.HeaderSize) + int64(h.PayloadSize)
	switch {
	case int64(len(data)) < size:
		return nil, errors.Wrapf(ErrTruncated, "fragment %s declares %d bytes, have %d", h.SourceID, size, len(data))
	case !allowExcess && int64(len(data)) != size:
		return nil, errors.Wrapf(ErrPayloadSizeMismatch, "fragment %s declares %d bytes, have %d", h.SourceID, size, len(data))
	}

	return &Fragment{
		FragmentHeader: *h,
		Payload:        append([]byte(nil), data[h.HeaderSize:size]...),
	}, nil
}

// WriteTo writes the fragment's header followed by its payload.
func (f *Fragment) WriteTo(w io.Writer) (int64, error) {
	if int64(len(f.Payload)) != int64(f.PayloadSize) {
		return 0, errors.Wrapf(ErrPayloadSizeMismatch, "fragment %s declares %d payload bytes, has %d",
			f.SourceID, f.PayloadSize, len(f.Payload))
	}

	n, err := f.FragmentHeader.writeTo(w)
	if err != nil {
		return n, err
	}
	amt, err := w.Write(f.Payload)
	return n + int64(amt), err
}

// Bytes returns the fragment's serialized form.
func (f *Fragment) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(int(f.Size()))
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
