// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package protocol

import (
	"github.com/danjacques/gorawevent/protocol/compress"

	"github.com/pkg/errors"
)

// Errors returned by the codec. Returned errors may wrap these; compare using
// errors.Cause.
var (
	// ErrMalformedHeader is returned when a header's marker or declared header
	// size is wrong.
	ErrMalformedHeader = errors.New("malformed header")
	// ErrUnsupportedVersion is returned when a header carries a version that
	// this package does not implement.
	ErrUnsupportedVersion = errors.New("unsupported version")
	// ErrTruncated is returned when declared sizes exceed the available bytes.
	ErrTruncated = errors.New("truncated data")
	// ErrPayloadSizeMismatch is returned when a payload's length disagrees with
	// its declared size.
	ErrPayloadSizeMismatch = errors.New("payload size mismatch")
	// ErrDuplicateSourceID is returned when adding a fragment whose source ID
	// is already present in an event.
	ErrDuplicateSourceID = errors.New("duplicate source id")
	// ErrInvalidData is returned when accessing fields of a hardware payload
	// that failed its size, checksum, or frame id checks.
	ErrInvalidData = errors.New("invalid data")
	// ErrTooManyFragments is returned when an event's fragment count would
	// overflow its header field.
	ErrTooManyFragments = errors.New("too many fragments")

	// ErrDecompressionFailed is returned when an event payload could not be
	// decompressed.
	ErrDecompressionFailed = compress.ErrDecompressionFailed
	// ErrUnsupportedCompression is returned when an event names an unknown
	// compression code.
	ErrUnsupportedCompression = compress.ErrUnsupportedCompression
)
