// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package eventfile

import (
	"bufio"
	"os"
	"path/filepath"
	"time"

	"github.com/danjacques/gorawevent/protocol"
	"github.com/danjacques/gorawevent/protocol/compress"
	"github.com/danjacques/gorawevent/support/dataio"
	"github.com/danjacques/gorawevent/support/stagingdir"

	"github.com/pkg/errors"
)

// stagedFileName is the name of the file being built in the staging
// directory.
const stagedFileName = "events.staged"

// WriterConfig is a configuration for writing event files.
type WriterConfig struct {
	// Compression is the compression to apply to events that are not already
	// compressed.
	Compression compress.Code
	// CompressionLevel is the compression level to apply to Compression, if
	// applicable.
	CompressionLevel int

	// OmitMetadata, if true, writes a bare event file with no metadata record.
	OmitMetadata bool

	// TempDir is the temporary directory to stage files in. It should be on the
	// same filesystem as the destination. If empty, the destination's directory
	// is used.
	TempDir string

	// NowFunc, if not nil, is the function to use to get the current time. If
	// nil, time.Now will be used.
	NowFunc func() time.Time
}

func (cfg *WriterConfig) now() time.Time {
	if cfg.NowFunc != nil {
		return cfg.NowFunc()
	}
	return time.Now()
}

// Writer writes an event file.
//
// The file is built in a staging directory and moved into place atomically on
// Close.
type Writer struct {
	*WriterConfig

	// stagingDir holds the file while it is being written.
	stagingDir *stagingdir.D
	// fd is the staged file.
	fd *os.File
	// bw buffers writes to fd.
	bw *bufio.Writer
	// cw counts bytes written, giving event offsets.
	cw dataio.CountingWriter

	// destPath is the final destination path.
	destPath string
	// md is the metadata record written to the file, or nil.
	md *Metadata

	numEvents int64
}

// NewWriter creates a Writer that will write to path.
func (cfg *WriterConfig) NewWriter(path string) (*Writer, error) {
	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = filepath.Dir(path)
	}
	stagingDir, err := stagingdir.New(tempDir, ".staging-"+filepath.Base(path))
	if err != nil {
		return nil, err
	}
	defer func() {
		if stagingDir != nil {
			_ = stagingDir.Destroy()
		}
	}()

	fd, err := os.Create(stagingDir.Path(stagedFileName))
	if err != nil {
		return nil, errors.Wrap(err, "creating staged file")
	}

	w := Writer{
		WriterConfig: cfg,
		stagingDir:   stagingDir,
		fd:           fd,
		bw:           bufio.NewWriter(fd),
		destPath:     path,
	}
	w.cw.Writer = w.bw

	if !cfg.OmitMetadata {
		w.md = NewMetadata(path, cfg.now())
		if cfg.Compression != compress.None {
			w.md.Compression = cfg.Compression.String()
		}
		if _, err := WriteMetadata(&w.cw, w.md); err != nil {
			_ = fd.Close()
			return nil, errors.Wrap(err, "writing metadata")
		}
	}

	stagingDir = nil // Owned by w.
	return &w, nil
}

// Path returns the destination path of the file being written.
func (w *Writer) Path() string { return w.destPath }

// Metadata returns the metadata record written to the file, or nil if there
// is none.
func (w *Writer) Metadata() *Metadata { return w.md }

// NumEvents returns the number of events written so far.
func (w *Writer) NumEvents() int64 { return w.numEvents }

// NumBytes returns the number of bytes written so far.
func (w *Writer) NumBytes() int64 { return w.cw.Count }

// WriteEvent appends e to the file, returning the offset it was written at.
//
// If the Writer is configured with compression and e is not compressed, e is
// compressed in place before it is written.
func (w *Writer) WriteEvent(e *protocol.Event) (int64, error) {
	if w.Compression != compress.None && !e.IsCompressed() {
		if err := e.Compress(w.Compression, w.CompressionLevel); err != nil {
			return 0, err
		}
	}

	offset := w.cw.Count
	if _, err := e.WriteTo(&w.cw); err != nil {
		return offset, errors.Wrapf(err, "writing event %d", e.EventCounter)
	}
	w.numEvents++
	return offset, nil
}

// Close finalizes the file and moves it to its destination.
func (w *Writer) Close() error {
	defer func() {
		_ = w.stagingDir.Destroy()
	}()

	if err := w.bw.Flush(); err != nil {
		_ = w.fd.Close()
		return errors.Wrap(err, "flushing staged file")
	}
	if err := w.fd.Close(); err != nil {
		return errors.Wrap(err, "closing staged file")
	}
	if err := w.stagingDir.CommitFile(stagedFileName, w.destPath); err != nil {
		return errors.Wrap(err, "committing staged file")
	}
	return nil
}

// Abort discards the file without writing it to its destination.
func (w *Writer) Abort() error {
	_ = w.fd.Close()
	return w.stagingDir.Destroy()
}
