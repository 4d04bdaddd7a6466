// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package compress implements the payload compression engines that can be
// selected by an event header's compression code.
//
// Engines are stateless from the caller's point of view, and are safe for
// concurrent use.
package compress

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrUnsupportedCompression is returned when a compression code has no
	// registered engine.
	ErrUnsupportedCompression = errors.New("unsupported compression")

	// ErrDecompressionFailed is returned when an engine rejects its input.
	ErrDecompressionFailed = errors.New("decompression failed")
)

// MaxDecompressedSize is the largest payload that Decompress will produce.
// Larger outputs fail with ErrDecompressionFailed.
const MaxDecompressedSize = 256 << 20

var maxDecompressedSize int64 = MaxDecompressedSize

// Code is the one-byte compression identifier stored in an event header.
type Code uint8

const (
	// None stores payloads verbatim.
	None Code = 0
	// Zstd is the high-ratio engine.
	Zstd Code = 1
	// Gzip is the mid-ratio engine.
	Gzip Code = 2
	// LZ4 is the low-latency engine.
	LZ4 Code = 3
)

func (c Code) String() string {
	if e, ok := engines[c]; ok {
		return e.String()
	}
	return fmt.Sprintf("Code(%d)", uint8(c))
}

// Engine is a compression strategy.
type Engine interface {
	// Code returns the header code that selects this engine.
	Code() Code
	// String returns the engine's short name.
	String() string

	// Compress compresses src at the specified level. A level <= 0 selects the
	// engine's default level. Compress never modifies src.
	Compress(src []byte, level int) ([]byte, error)
	// Decompress inflates src, producing at most MaxDecompressedSize bytes.
	// Any failure wraps ErrDecompressionFailed.
	Decompress(src []byte) ([]byte, error)
}

var engines = map[Code]Engine{}

func register(e Engine) {
	if _, ok := engines[e.Code()]; ok {
		panic(fmt.Sprintf("duplicate compression engine for code %d", e.Code()))
	}
	engines[e.Code()] = e
}

func init() {
	register(noneEngine{})
	register(&zstdEngine{})
	register(gzipEngine{})
	register(lz4Engine{})
}

// Lookup returns the Engine registered for c.
//
// If no engine is registered, Lookup returns an error wrapping
// ErrUnsupportedCompression.
func Lookup(c Code) (Engine, error) {
	if e, ok := engines[c]; ok {
		return e, nil
	}
	return nil, errors.Wrapf(ErrUnsupportedCompression, "code %d", uint8(c))
}

// ByName returns the Engine whose String matches name.
func ByName(name string) (Engine, error) {
	for _, e := range engines {
		if e.String() == name {
			return e, nil
		}
	}
	return nil, errors.Wrapf(ErrUnsupportedCompression, "name %q", name)
}

// Engines returns all registered engines, ordered by code.
func Engines() []Engine {
	all := make([]Engine, 0, len(engines))
	for _, e := range engines {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Code() < all[j].Code() })
	return all
}

// Names returns a comma-separated list of engine names, ordered by code.
func Names() string {
	all := Engines()
	names := make([]string, len(all))
	for i, e := range all {
		names[i] = e.String()
	}
	return strings.Join(names, ", ")
}

// Compress compresses src using the engine registered for c.
func Compress(c Code, src []byte, level int) ([]byte, error) {
	e, err := Lookup(c)
	if err != nil {
		return nil, err
	}
	return e.Compress(src, level)
}

// Decompress inflates src using the engine registered for c.
func Decompress(c Code, src []byte) ([]byte, error) {
	e, err := Lookup(c)
	if err != nil {
		return nil, err
	}
	return e.Decompress(src)
}

func decompressionFailed(e Engine, err error) error {
	return errors.Wrapf(ErrDecompressionFailed, "%s: %s", e, err)
}

type noneEngine struct{}

func (noneEngine) Code() Code     { return None }
func (noneEngine) String() string { return "none" }

func (noneEngine) Compress(src []byte, level int) ([]byte, error) {
	return append([]byte(nil), src...), nil
}

func (noneEngine) Decompress(src []byte) ([]byte, error) {
	return append([]byte(nil), src...), nil
}
