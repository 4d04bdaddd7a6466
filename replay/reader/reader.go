// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package reader reads events from a chain of physical files as one logical
// stream.
//
// A Reader keeps a stack of layers. The root is a sequence layer holding the
// ordered file names; above it sits a file layer for the file currently being
// read. When a file is exhausted its layer is popped and the next one is
// opened. With sequence reading enabled, the sequence is extended by probing
// for the next file of a numbered sequence once the known names run out.
package reader

import (
	"context"
	"io"

	"github.com/danjacques/gorawevent/protocol"
	"github.com/danjacques/gorawevent/replay/eventfile"
	"github.com/danjacques/gorawevent/replay/filename"
	"github.com/danjacques/gorawevent/replay/source"
	"github.com/danjacques/gorawevent/support/logging"

	"github.com/pkg/errors"
)

// DefaultProbeAttempts is the default number of sequence numbers probed when
// looking for the next file of a sequence.
const DefaultProbeAttempts = 20

var (
	// ErrOutOfFileBoundary is returned when a read or seek would pass the end of
	// the current file.
	ErrOutOfFileBoundary = errors.New("out of file boundary")

	// ErrSequenceFileMissing is returned when no continuation file of a
	// sequence could be found. It is fatal for the session.
	ErrSequenceFileMissing = errors.New("sequence file missing")

	// ErrNameMismatch is returned by EnableSequenceReading when a file's
	// metadata names a different file than the one that was opened.
	ErrNameMismatch = errors.New("file name does not match its metadata")

	// ErrInvalidState is returned when a session's layer stack is in a state
	// that violates its invariants. It is fatal for the session.
	ErrInvalidState = errors.New("invalid reader state")

	// ErrClosed is returned by operations on a closed Reader.
	ErrClosed = errors.New("reader is closed")

	// ErrNameNotInterpretable is returned when sequence reading is requested on a
	// file whose name is not a structured name.
	ErrNameNotInterpretable = filename.ErrNameNotInterpretable
)

// Options configures a Reader.
type Options struct {
	// Registry opens file names. If nil, source.DefaultRegistry is used.
	Registry *source.Registry

	// SequenceReading, if true, enables sequence reading once the first file is
	// open. See EnableSequenceReading.
	SequenceReading bool

	// ProbeAttempts is the number of sequence numbers following the last known
	// file that are probed for a continuation file. If <= 0,
	// DefaultProbeAttempts is used.
	ProbeAttempts int

	// Logger, if not nil, is the logger to use.
	Logger logging.L
}

func (o *Options) probeAttempts() int {
	if o.ProbeAttempts > 0 {
		return o.ProbeAttempts
	}
	return DefaultProbeAttempts
}

// retiredFile is a file whose last event has been returned. It remains
// available to metadata queries until the next read begins.
type retiredFile struct {
	name string
	md   *eventfile.Metadata
}

// Reader is a reader session.
//
// A Reader is not safe for concurrent use. Independent sessions may read the
// same files concurrently.
type Reader struct {
	opts     Options
	logger   logging.L
	registry *source.Registry

	// layers is the layer arena, used as a LIFO stack. Layers refer to their
	// parents by index.
	layers []layer
	// src is the session's raw source, belonging to the top file layer.
	src source.Source

	// offsets holds the offsets of events read sequentially from the current
	// file, in the order they were first seen.
	offsets []int64
	// seenOffsets is the set of values in offsets.
	seenOffsets map[int64]struct{}

	// coreName is the sequence core name, set when sequence reading is enabled.
	coreName string

	// retired is the most recently exhausted metadata-responsible file, or nil.
	retired *retiredFile
	// lastFileFinished is true if the most recent read exhausted a file.
	lastFileFinished bool

	// fatal is a sticky error that ends the session.
	fatal error
	// closed is true once Close has been called.
	closed bool
}

// Open opens a reader session over the named files, read in order.
//
// Open opens the first file that has events. If none do, the session is
// immediately finished and Next returns io.EOF.
func Open(ctx context.Context, names []string, opts Options) (*Reader, error) {
	if len(names) == 0 {
		return nil, errors.New("no file names")
	}

	r := Reader{
		opts:     opts,
		logger:   logging.Must(opts.Logger),
		registry: opts.Registry,
	}
	if r.registry == nil {
		r.registry = source.DefaultRegistry(source.Options{})
	}

	r.push(&sequenceLayer{
		layerBase: layerBase{metadata: true},
		names:     append([]string(nil), names...),
	})

	if opts.SequenceReading {
		// Open the first file without skipping empty files; the name check applies
		// to the file that was named.
		if err := r.loadTop(ctx); err != nil {
			_ = r.closeSource()
			return nil, err
		}
		if err := r.EnableSequenceReading(); err != nil {
			_ = r.closeSource()
			return nil, err
		}
	}
	if err := r.settle(ctx); err != nil {
		_ = r.closeSource()
		return nil, err
	}

	readerSessionsGauge.Inc()
	return &r, nil
}

// Next returns the next event in the stream.
//
// At the end of the stream, Next returns io.EOF. Errors decoding a single
// event are not fatal: an event whose header is unusable is returned again by
// the next call, while an event whose header is good but whose body is not is
// skipped. Fatal errors are returned by every subsequent call.
func (r *Reader) Next(ctx context.Context) (*protocol.Event, error) {
	if err := r.beginRead(); err != nil {
		return nil, err
	}

	top := r.top()
	if top == nil {
		return nil, io.EOF
	}

	e, off, n, err := top.readEvent()
	switch {
	case err == nil:
		r.recordOffset(off)
		readerEvents.Inc()
		readerBytes.Add(float64(n))
	case n == 0:
		// Nothing was consumed; the session is unchanged.
		readerErrors.WithLabelValues("event").Inc()
		return nil, err
	default:
		readerErrors.WithLabelValues("event").Inc()
	}

	if !top.moreEvents() {
		r.pop(true)
		if serr := r.settle(ctx); serr != nil {
			// The event is good; the session failure surfaces on the next call.
			r.fail(serr)
		}
	}
	return e, err
}

// SkipFile abandons the rest of the current file and moves on to the next one.
//
// A file whose remaining bytes cannot hold the next event keeps returning
// ErrOutOfFileBoundary from Next; SkipFile is how a caller stops it. The
// skipped file is reported finished as if it had been read to its end.
func (r *Reader) SkipFile(ctx context.Context) error {
	if err := r.beginRead(); err != nil {
		return err
	}

	fl := r.currentFile()
	if fl == nil {
		return io.EOF
	}
	if pos, err := fl.tell(); err == nil {
		r.logger.Infof("Skipping the rest of file %q at %d of %d bytes.", fl.name, pos, fl.size)
	}
	readerErrors.WithLabelValues("skip").Inc()

	r.pop(true)
	if err := r.settle(ctx); err != nil {
		return r.fail(err)
	}
	return nil
}

// ReadAt returns the event at offset pos of the current file.
//
// ReadAt does not affect sequential reads: the next Next call returns the same
// event it would have returned had ReadAt not been called.
func (r *Reader) ReadAt(pos int64) (*protocol.Event, error) {
	if err := r.beginRead(); err != nil {
		return nil, err
	}

	fl := r.currentFile()
	if fl == nil {
		return nil, errors.Wrap(ErrOutOfFileBoundary, "no file is open")
	}
	if err := fl.checkOffset(pos); err != nil {
		return nil, err
	}

	saved, err := r.src.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, r.fail(errors.Wrap(err, "getting file position"))
	}
	if _, err := r.src.Seek(pos, io.SeekStart); err != nil {
		return nil, r.fail(errors.Wrapf(err, "seeking to %d", pos))
	}

	e, n, err := fl.eventAt(pos)
	if err == nil {
		readerEvents.Inc()
		readerBytes.Add(float64(n))
	} else {
		readerErrors.WithLabelValues("event").Inc()
	}

	if _, serr := r.src.Seek(saved, io.SeekStart); serr != nil {
		return nil, r.fail(errors.Wrapf(serr, "restoring position %d", saved))
	}
	return e, err
}

// SetPosition repositions sequential reading at offset pos of the current
// file.
func (r *Reader) SetPosition(pos int64) error {
	if err := r.check(); err != nil {
		return err
	}
	if len(r.layers) == 0 {
		return errors.Wrap(ErrOutOfFileBoundary, "session has finished")
	}

	// At most one layer may be popped to find one that handles offsets.
	popped := false
	for !r.top().handlesOffset() {
		if popped || len(r.layers) == 1 {
			return r.fail(errors.Wrap(ErrInvalidState, "no layer handles offsets"))
		}
		r.pop(false)
		popped = true
	}

	top := r.top()
	next, err := top.loadAtOffset(pos)
	if err != nil {
		return err
	}
	if next != top {
		r.layers[len(r.layers)-1] = next
	}
	r.lastFileFinished = false
	return nil
}

// Position returns the offset in the current file of the next event that
// Next will read.
func (r *Reader) Position() (int64, error) {
	if err := r.check(); err != nil {
		return 0, err
	}
	fl := r.currentFile()
	if fl == nil {
		return 0, io.EOF
	}
	return fl.tell()
}

// Offsets returns the offsets of events read sequentially from the current
// file so far.
func (r *Reader) Offsets() []int64 { return append([]int64(nil), r.offsets...) }

// LastFileFinished returns true if the most recent read consumed the last
// event of a file.
func (r *Reader) LastFileFinished() bool { return r.lastFileFinished }

// Finished returns true if every file has been read.
func (r *Reader) Finished() bool { return len(r.layers) == 0 }

// CurrentFile returns the name of the file that Next will read from, or an
// empty string if the session has finished.
func (r *Reader) CurrentFile() string {
	if fl := r.currentFile(); fl != nil {
		return fl.name
	}
	return ""
}

// Metadata returns the session's metadata: that of the current file, or, if
// the last read finished a file, that of the finished file until the next
// read. It returns nil if the file has no metadata record.
func (r *Reader) Metadata() *eventfile.Metadata {
	if r.retired != nil {
		return r.retired.md
	}
	for i := len(r.layers) - 1; i >= 0; i-- {
		if fl, ok := r.layers[i].(*fileLayer); ok && fl.metadata {
			return fl.md
		}
	}
	return nil
}

// EnableSequenceReading extends the session past its named files: once they
// are exhausted, the reader probes for the next file of the current file's
// numbered sequence.
//
// The current file's name must be a structured name, and must match the name
// in its metadata record, if it has one.
func (r *Reader) EnableSequenceReading() error {
	if err := r.check(); err != nil {
		return err
	}

	fl := r.currentFile()
	if fl == nil {
		return errors.Wrap(ErrInvalidState, "no file is open")
	}

	n, err := filename.Parse(fl.name)
	if err != nil {
		return err
	}
	if fl.md != nil && !fl.md.MatchesName(fl.name) {
		return errors.Wrapf(ErrNameMismatch, "opened %q, metadata names %q", fl.name, fl.md.FileName)
	}

	seq, ok := r.layers[fl.parent].(*sequenceLayer)
	if !ok {
		return errors.Wrap(ErrInvalidState, "file has no sequence")
	}
	if r.coreName, err = n.CoreName(); err != nil {
		return err
	}
	seq.continuation = true
	r.logger.Infof("Enabled sequence reading for %q.", r.coreName)
	return nil
}

// Close closes the session and its current file.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.layers, r.retired = nil, nil
	readerSessionsGauge.Dec()
	return r.closeSource()
}

func (r *Reader) check() error {
	switch {
	case r.closed:
		return ErrClosed
	case r.fatal != nil:
		return r.fatal
	default:
		return nil
	}
}

// beginRead releases the retired file and clears per-read state.
func (r *Reader) beginRead() error {
	if err := r.check(); err != nil {
		return err
	}
	r.retired, r.lastFileFinished = nil, false
	return nil
}

// fail records err as the session's fatal error and returns it.
func (r *Reader) fail(err error) error {
	if r.fatal == nil {
		r.logger.Warnf("Reader session failed: %s", err)
		readerErrors.WithLabelValues("fatal").Inc()
		r.fatal = err
	}
	return err
}

func (r *Reader) top() layer {
	if len(r.layers) == 0 {
		return nil
	}
	return r.layers[len(r.layers)-1]
}

// currentFile returns the top layer if it is a file layer.
func (r *Reader) currentFile() *fileLayer {
	fl, _ := r.top().(*fileLayer)
	return fl
}

func (r *Reader) push(l layer) {
	l.base().parent = len(r.layers) - 1
	if len(r.layers) == 0 {
		l.base().parent = noParent
	}
	r.layers = append(r.layers, l)

	if fl, ok := l.(*fileLayer); ok {
		r.offsets, r.seenOffsets = nil, make(map[int64]struct{})
		readerFilesOpened.Inc()
		r.logger.Debugf("Opened file %q (%d bytes).", fl.name, fl.size)
	}
}

// pop removes the top layer, returning metadata responsibility to its parent
// and advancing the parent past it.
//
// If retire is true and the layer was responsible for metadata, it becomes
// the retired file and the last file is reported finished.
func (r *Reader) pop(retire bool) {
	l := r.top()
	r.layers = r.layers[:len(r.layers)-1]

	lb := l.base()
	if lb.parent != noParent {
		parent := r.layers[lb.parent]
		parent.base().metadata = parent.base().metadata || lb.metadata
		parent.advance()
	}

	fl, ok := l.(*fileLayer)
	if !ok {
		return
	}
	r.logger.Debugf("Finished file %q.", fl.name)
	if retire && lb.metadata {
		r.retired = &retiredFile{name: fl.name, md: fl.md}
		r.lastFileFinished = true
	}
}

// loadTop opens layers until the top one produces events.
func (r *Reader) loadTop(ctx context.Context) error {
	for top := r.top(); top != nil && !top.doneLoading(); top = r.top() {
		child, err := top.openNext(ctx, r)
		if err != nil {
			return err
		}
		r.push(child)
	}
	return nil
}

// settle brings the stack to a state where the top layer has an event to
// read, or the stack is empty.
//
// Exhausted layers are popped, continuation files are discovered and the
// next file is opened.
func (r *Reader) settle(ctx context.Context) error {
	for {
		top := r.top()
		switch {
		case top == nil:
			r.logger.Debugf("Reader session finished.")
			return nil

		case top.doneLoading():
			if top.moreEvents() {
				return nil
			}
			// A file with no events.
			r.pop(false)

		case !top.moreEvents() && top.handlesContinuation():
			if err := r.probeContinuation(ctx, top.(*sequenceLayer)); err != nil {
				return err
			}

		case !top.moreEvents():
			r.pop(false)

		default:
			if err := r.loadTop(ctx); err != nil {
				return err
			}
		}
	}
}

// probeContinuation finds the file following the last name of seq and adds it
// to seq.
func (r *Reader) probeContinuation(ctx context.Context, seq *sequenceLayer) error {
	n, err := filename.Parse(seq.lastName())
	if err != nil {
		return err
	}
	current, err := n.Sequence()
	if err != nil {
		return err
	}

	attempts := r.opts.probeAttempts()
	for i := 1; i <= attempts; i++ {
		candidate, err := n.WithSequence(current + i)
		if err != nil {
			// Past the highest sequence number.
			break
		}

		readerProbes.Inc()
		exists, err := r.registry.Exists(ctx, candidate.String())
		if err != nil {
			return errors.Wrapf(err, "probing for %q", candidate)
		}
		if exists {
			r.logger.Infof("Continuing sequence %q with %q.", r.coreName, candidate)
			seq.addName(candidate.String())
			return nil
		}
	}
	return errors.Wrapf(ErrSequenceFileMissing, "no file follows %q within %d sequence numbers",
		seq.lastName(), attempts)
}

func (r *Reader) recordOffset(off int64) {
	if _, ok := r.seenOffsets[off]; ok {
		return
	}
	r.seenOffsets[off] = struct{}{}
	r.offsets = append(r.offsets, off)
}

func (r *Reader) closeSource() error {
	if r.src == nil {
		return nil
	}
	src := r.src
	r.src = nil
	if err := src.Close(); err != nil {
		return errors.Wrapf(err, "closing %q", src.Name())
	}
	return nil
}
