// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package compress

import (
	"bytes"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

// readLimited reads all of r, failing if it holds more than
// maxDecompressedSize bytes.
func readLimited(e Engine, r io.Reader) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, maxDecompressedSize+1))
	switch {
	case err != nil:
		return nil, decompressionFailed(e, err)
	case int64(len(out)) > maxDecompressedSize:
		return nil, decompressionFailed(e, errors.Errorf("output exceeds %d bytes", maxDecompressedSize))
	}
	return out, nil
}

// zstdEngine caches one encoder per level. EncodeAll is safe for concurrent
// use.
type zstdEngine struct {
	mu       sync.Mutex
	encoders map[zstd.EncoderLevel]*zstd.Encoder
}

func (*zstdEngine) Code() Code     { return Zstd }
func (*zstdEngine) String() string { return "zstd" }

func (e *zstdEngine) encoder(level int) (*zstd.Encoder, error) {
	el := zstd.SpeedDefault
	if level > 0 {
		el = zstd.EncoderLevelFromZstd(level)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if enc := e.encoders[el]; enc != nil {
		return enc, nil
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(el), zstd.WithZeroFrames(true))
	if err != nil {
		return nil, errors.Wrap(err, "creating zstd encoder")
	}
	if e.encoders == nil {
		e.encoders = make(map[zstd.EncoderLevel]*zstd.Encoder)
	}
	e.encoders[el] = enc
	return enc, nil
}

func (e *zstdEngine) Compress(src []byte, level int) ([]byte, error) {
	enc, err := e.encoder(level)
	if err != nil {
		return nil, err
	}
	return enc.EncodeAll(src, nil), nil
}

func (e *zstdEngine) Decompress(src []byte) ([]byte, error) {
	d, err := zstd.NewReader(bytes.NewReader(src),
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(uint64(maxDecompressedSize)))
	if err != nil {
		return nil, decompressionFailed(e, err)
	}
	defer d.Close()
	return readLimited(e, d)
}

type gzipEngine struct{}

func (gzipEngine) Code() Code     { return Gzip }
func (gzipEngine) String() string { return "gzip" }

func (gzipEngine) Compress(src []byte, level int) ([]byte, error) {
	if level <= 0 {
		level = gzip.DefaultCompression
	}

	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, errors.Wrapf(err, "creating gzip writer (level %d)", level)
	}
	if _, err := w.Write(src); err != nil {
		return nil, errors.Wrap(err, "gzip write")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "gzip close")
	}
	return buf.Bytes(), nil
}

func (e gzipEngine) Decompress(src []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, decompressionFailed(e, err)
	}
	defer r.Close()
	return readLimited(e, r)
}

// lz4Levels maps levels 0 through 9 onto lz4 compression levels.
var lz4Levels = []lz4.CompressionLevel{
	lz4.Fast,
	lz4.Level1, lz4.Level2, lz4.Level3,
	lz4.Level4, lz4.Level5, lz4.Level6,
	lz4.Level7, lz4.Level8, lz4.Level9,
}

type lz4Engine struct{}

func (lz4Engine) Code() Code     { return LZ4 }
func (lz4Engine) String() string { return "lz4" }

func (lz4Engine) Compress(src []byte, level int) ([]byte, error) {
	switch {
	case level < 0:
		level = 0
	case level >= len(lz4Levels):
		level = len(lz4Levels) - 1
	}

	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if err := w.Apply(lz4.CompressionLevelOption(lz4Levels[level])); err != nil {
		return nil, errors.Wrapf(err, "configuring lz4 writer (level %d)", level)
	}
	if _, err := w.Write(src); err != nil {
		return nil, errors.Wrap(err, "lz4 write")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "lz4 close")
	}
	return buf.Bytes(), nil
}

func (e lz4Engine) Decompress(src []byte) ([]byte, error) {
	return readLimited(e, lz4.NewReader(bytes.NewReader(src)))
}
