// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package eventfile

import (
	"bytes"
	"encoding/binary"
	"io"
	"time"

	"github.com/danjacques/gorawevent/replay/filename"
	"github.com/danjacques/gorawevent/support/dataio"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	// MetadataMagic begins a file metadata record.
	MetadataMagic = "FRMD"

	// MetadataVersion is the metadata record version written by this package.
	MetadataVersion = 1

	// metadataPrefixSize is the size of the magic and length prefix.
	metadataPrefixSize = 8

	// maxMetadataSize bounds the metadata body that will be read.
	maxMetadataSize = 1024 * 1024
)

// ErrMalformedMetadata is returned when a metadata record cannot be decoded.
var ErrMalformedMetadata = errors.New("malformed metadata")

// Metadata is the optional record at the start of an event file, describing
// the file.
type Metadata struct {
	Version int `msgpack:"version"`

	// FileName is the name the file was written as, without directory. Readers
	// compare it against the name used to open the file.
	FileName string `msgpack:"file_name"`
	// GUID uniquely identifies the file.
	GUID string `msgpack:"guid"`

	RunNumber   uint32 `msgpack:"run_number"`
	Project     string `msgpack:"project,omitempty"`
	StreamType  string `msgpack:"stream_type,omitempty"`
	StreamName  string `msgpack:"stream_name,omitempty"`
	LumiBlock   int    `msgpack:"lumi_block"`
	Application string `msgpack:"application,omitempty"`
	Sequence    int    `msgpack:"sequence"`

	// Compression is the name of the compression applied to events written to
	// the file.
	Compression string    `msgpack:"compression,omitempty"`
	CreatedAt   time.Time `msgpack:"created_at"`
}

// NewMetadata builds Metadata for a file named name.
//
// If name is a structured file name, its fields populate the metadata.
// Otherwise, only FileName is set.
func NewMetadata(name string, created time.Time) *Metadata {
	md := Metadata{
		Version:   MetadataVersion,
		GUID:      uuid.NewString(),
		CreatedAt: created.UTC(),
	}

	n, err := filename.Parse(name)
	if err != nil {
		md.FileName = baseName(name)
		return &md
	}

	p, _ := n.Parts()
	md.FileName, _ = n.Base()
	md.RunNumber = p.RunNumber
	md.Project = p.Project
	md.StreamType = p.StreamType
	md.StreamName = p.StreamName
	md.LumiBlock = p.LumiBlock
	md.Application = p.Application
	md.Sequence = p.Sequence
	return &md
}

// UUID returns the parsed GUID.
func (md *Metadata) UUID() (uuid.UUID, error) {
	id, err := uuid.Parse(md.GUID)
	if err != nil {
		return uuid.Nil, errors.Wrapf(ErrMalformedMetadata, "GUID %q: %s", md.GUID, err)
	}
	return id, nil
}

// MatchesName returns true if name, stripped of any directory or source
// prefix, is the name recorded in md.
func (md *Metadata) MatchesName(name string) bool { return md.FileName == baseName(name) }

func baseName(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '/' || name[i] == ':' {
			return name[i+1:]
		}
	}
	return name
}

// WriteMetadata writes md as a metadata record.
func WriteMetadata(w io.Writer, md *Metadata) (int64, error) {
	body, err := msgpack.Marshal(md)
	if err != nil {
		return 0, errors.Wrap(err, "encoding metadata")
	}

	var buf bytes.Buffer
	buf.Grow(metadataPrefixSize + len(body))
	buf.WriteString(MetadataMagic)
	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(len(body)))
	buf.Write(size[:])
	buf.Write(body)
	return buf.WriteTo(w)
}

// ReadMetadata reads the metadata record at the start of r.
//
// It returns the metadata, or nil if the file has no metadata record, and the
// offset at which event data begins. On return, r is positioned at that
// offset.
func ReadMetadata(r io.ReadSeeker) (*Metadata, int64, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, 0, errors.Wrap(err, "seeking to start")
	}

	var prefix [metadataPrefixSize]byte
	amt, err := dataio.ReadFull(r, prefix[:])
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, 0, errors.Wrap(err, "reading metadata prefix")
	}

	if amt < 4 || string(prefix[:4]) != MetadataMagic {
		// No metadata record; events begin at the start of the file.
		if _, err := r.Seek(0, io.SeekStart); err != nil {
			return nil, 0, errors.Wrap(err, "seeking to start")
		}
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, errors.Wrap(ErrMalformedMetadata, "truncated record prefix")
	}

	size := binary.LittleEndian.Uint32(prefix[4:])
	if size > maxMetadataSize {
		return nil, 0, errors.Wrapf(ErrMalformedMetadata, "record size %d exceeds %d", size, maxMetadataSize)
	}
	body := make([]byte, size)
	if _, err := dataio.ReadFull(r, body); err != nil {
		return nil, 0, errors.Wrapf(ErrMalformedMetadata, "reading %d byte record: %s", size, err)
	}

	var md Metadata
	if err := msgpack.Unmarshal(body, &md); err != nil {
		return nil, 0, errors.Wrapf(ErrMalformedMetadata, "decoding record: %s", err)
	}
	return &md, metadataPrefixSize + int64(size), nil
}
