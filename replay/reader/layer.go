// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package reader

import (
	"context"
	"io"

	"github.com/danjacques/gorawevent/protocol"
	"github.com/danjacques/gorawevent/replay/eventfile"
	"github.com/danjacques/gorawevent/replay/source"
	"github.com/danjacques/gorawevent/support/bufferpool"
	"github.com/danjacques/gorawevent/support/dataio"

	"github.com/pkg/errors"
)

// noParent is the parent index of the root layer.
const noParent = -1

// readBuffers holds buffers that encoded events are read into.
var readBuffers bufferpool.Pool

// layer is one level of file nesting in a Reader's stack.
//
// The set of layers is closed: sequenceLayer and fileLayer.
type layer interface {
	// base returns the layer's shared bookkeeping.
	base() *layerBase

	// moreEvents returns true if the layer can supply more events, either
	// directly or by opening a child layer.
	moreEvents() bool
	// doneLoading returns true if the layer produces events itself.
	doneLoading() bool
	// handlesOffset returns true if the layer can be repositioned.
	handlesOffset() bool
	// handlesContinuation returns true if the layer accepts additional names
	// once its current ones are exhausted.
	handlesContinuation() bool

	// advance is called when the layer's child is exhausted.
	advance()
	// openNext opens the layer's next child.
	openNext(ctx context.Context, s *Reader) (layer, error)

	// readEvent reads the next event sequentially, returning it, its offset and
	// its encoded size.
	readEvent() (*protocol.Event, int64, int64, error)
	// loadAtOffset repositions the layer at pos, returning the layer that
	// should replace it at the top of the stack.
	loadAtOffset(pos int64) (layer, error)
}

// layerBase is the bookkeeping common to every layer.
type layerBase struct {
	// parent is the arena index of the layer that opened this one, or noParent.
	parent int
	// metadata is true if this layer is responsible for session metadata.
	metadata bool
}

func (lb *layerBase) base() *layerBase { return lb }

// sequenceLayer iterates an ordered list of file names. It never produces
// events itself.
type sequenceLayer struct {
	layerBase

	// names is the ordered list of file names. Continuation appends to it.
	names []string
	// index is the index in names of the current file.
	index int
	// continuation is true if sequence reading is enabled.
	continuation bool
}

var _ layer = (*sequenceLayer)(nil)

func (sl *sequenceLayer) moreEvents() bool          { return sl.index < len(sl.names) }
func (sl *sequenceLayer) doneLoading() bool         { return false }
func (sl *sequenceLayer) handlesOffset() bool       { return false }
func (sl *sequenceLayer) handlesContinuation() bool { return sl.continuation }
func (sl *sequenceLayer) advance()                  { sl.index++ }

// lastName returns the most recent name in the sequence.
func (sl *sequenceLayer) lastName() string { return sl.names[len(sl.names)-1] }

func (sl *sequenceLayer) addName(name string) { sl.names = append(sl.names, name) }

// openNext closes the session's current source, opens the current name and
// hands metadata responsibility to the new file layer.
func (sl *sequenceLayer) openNext(ctx context.Context, s *Reader) (layer, error) {
	if !sl.moreEvents() {
		return nil, errors.Wrap(ErrInvalidState, "sequence has no more files")
	}
	if err := s.closeSource(); err != nil {
		return nil, err
	}

	name := sl.names[sl.index]
	src, err := s.registry.Open(ctx, name)
	if err != nil {
		return nil, errors.Wrapf(err, "opening file #%d", sl.index)
	}
	s.src = src

	fl, err := newFileLayer(name, src)
	if err != nil {
		return nil, errors.Wrapf(err, "loading file #%d", sl.index)
	}
	fl.metadata, sl.metadata = sl.metadata, false
	return fl, nil
}

func (sl *sequenceLayer) readEvent() (*protocol.Event, int64, int64, error) {
	return nil, 0, 0, errors.Wrap(ErrInvalidState, "sequence layers do not produce events")
}

func (sl *sequenceLayer) loadAtOffset(pos int64) (layer, error) {
	return nil, errors.Wrap(ErrInvalidState, "sequence layers do not handle offsets")
}

// fileLayer reads events from one physical file.
type fileLayer struct {
	layerBase

	// name is the name the file was opened with.
	name string
	// src is the file's source. It is owned by the session, not the layer.
	src source.Source
	// md is the file's metadata record, or nil if it has none.
	md *eventfile.Metadata

	// size is the size of the file, measured once when the layer is created.
	size int64
	// dataStart is the offset of the first event.
	dataStart int64
	// eof is true once sequential reads reach size.
	eof bool
}

var _ layer = (*fileLayer)(nil)

func newFileLayer(name string, src source.Source) (*fileLayer, error) {
	fl := fileLayer{
		name: name,
		src:  src,
	}

	var err error
	if fl.size, err = src.Seek(0, io.SeekEnd); err != nil {
		return nil, errors.Wrap(err, "measuring file size")
	}
	if fl.md, fl.dataStart, err = eventfile.ReadMetadata(src); err != nil {
		return nil, errors.Wrap(err, "loading metadata")
	}
	fl.eof = fl.dataStart >= fl.size
	return &fl, nil
}

func (fl *fileLayer) moreEvents() bool          { return !fl.eof }
func (fl *fileLayer) doneLoading() bool         { return true }
func (fl *fileLayer) handlesOffset() bool       { return true }
func (fl *fileLayer) handlesContinuation() bool { return false }
func (fl *fileLayer) advance()                  {}

func (fl *fileLayer) openNext(ctx context.Context, s *Reader) (layer, error) {
	return nil, errors.Wrap(ErrInvalidState, "file layers have no children")
}

func (fl *fileLayer) tell() (int64, error) {
	pos, err := fl.src.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, errors.Wrap(err, "getting file position")
	}
	return pos, nil
}

func (fl *fileLayer) readEvent() (*protocol.Event, int64, int64, error) {
	off, err := fl.tell()
	if err != nil {
		return nil, 0, 0, err
	}

	e, n, err := fl.decode(off)
	if n > 0 && off+n >= fl.size {
		fl.eof = true
	}
	return e, off, n, err
}

// checkOffset returns an error if pos is not inside the file.
func (fl *fileLayer) checkOffset(pos int64) error {
	if pos < 0 || pos >= fl.size {
		return errors.Wrapf(ErrOutOfFileBoundary, "offset %d in %d byte file %q", pos, fl.size, fl.name)
	}
	return nil
}

// eventAt decodes the event at pos, which the source must already be
// positioned at. It does not affect sequential state.
func (fl *fileLayer) eventAt(pos int64) (*protocol.Event, int64, error) {
	if err := fl.checkOffset(pos); err != nil {
		return nil, 0, err
	}
	return fl.decode(pos)
}

func (fl *fileLayer) loadAtOffset(pos int64) (layer, error) {
	if err := fl.checkOffset(pos); err != nil {
		return nil, err
	}
	if _, err := fl.src.Seek(pos, io.SeekStart); err != nil {
		return nil, errors.Wrapf(err, "seeking to %d", pos)
	}
	fl.eof = false
	return fl, nil
}

// decode reads the event at the current source position, off.
//
// It returns the number of bytes consumed. If the event header cannot be
// used, nothing is consumed and the source is returned to off. If the header
// is good but the event fails to parse, the whole event is consumed so that
// sequential reads can skip it.
func (fl *fileLayer) decode(off int64) (*protocol.Event, int64, error) {
	fail := func(err error) (*protocol.Event, int64, error) {
		if _, serr := fl.src.Seek(off, io.SeekStart); serr != nil {
			return nil, 0, errors.Wrapf(serr, "rewinding to %d after: %s", off, err)
		}
		return nil, 0, err
	}

	remaining := fl.size - off
	if remaining < protocol.EventHeaderSize {
		return fail(errors.Wrapf(ErrOutOfFileBoundary, "%d bytes remain at %d, event header needs %d",
			remaining, off, protocol.EventHeaderSize))
	}

	hbuf := make([]byte, protocol.EventHeaderSize)
	if _, err := dataio.ReadFull(fl.src, hbuf); err != nil {
		return fail(errors.Wrapf(err, "reading event header at %d", off))
	}
	h, err := protocol.ParseEventHeader(hbuf)
	if err != nil {
		return fail(errors.Wrapf(err, "event at %d", off))
	}
	if size := h.Size(); size > remaining {
		return fail(errors.Wrapf(ErrOutOfFileBoundary, "event at %d declares %d bytes, %d remain",
			off, size, remaining))
	}

	// Parsed events own their data, so the read buffer can be reused.
	b := readBuffers.Get(int(h.Size()))
	defer b.Release()

	buf := b.Bytes()
	copy(buf, hbuf)
	if _, err := dataio.ReadFull(fl.src, buf[protocol.EventHeaderSize:]); err != nil {
		return fail(errors.Wrapf(err, "reading event payload at %d", off))
	}

	e, err := protocol.ParseEvent(buf)
	if err != nil {
		return nil, h.Size(), errors.Wrapf(err, "event at %d", off)
	}
	return e, h.Size(), nil
}
