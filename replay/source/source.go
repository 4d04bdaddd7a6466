// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package source provides raw-byte sources for event files, selected by name
// prefix.
//
// A Registry maps name prefixes such as "file:", "https:", or "s3:" to an
// Opener. Openers are registered statically; DefaultRegistry wires every
// built-in transport.
package source

import (
	"context"
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when a named source does not exist.
	ErrNotFound = errors.New("source not found")

	// ErrNoOpener is returned when no Opener is registered for a name.
	ErrNoOpener = errors.New("no opener for name")
)

// Source is an open, seekable raw-byte source.
//
// A Source is owned by a single reader, and is not safe for concurrent use.
type Source interface {
	io.ReadSeekCloser

	// Size returns the total size of the source, in bytes.
	Size() int64
	// Name returns the name the source was opened with.
	Name() string
}

// Opener opens sources by name.
type Opener interface {
	// Open opens the named source. If it does not exist, Open returns an error
	// wrapping ErrNotFound.
	Open(ctx context.Context, name string) (Source, error)
	// Exists returns true if the named source exists.
	Exists(ctx context.Context, name string) (bool, error)
}

// Registry dispatches names to Openers by prefix.
//
// A Registry is configured before use and is then safe for concurrent use.
type Registry struct {
	// prefixes holds registered prefixes, longest first.
	prefixes []string
	openers  map[string]Opener

	// fallback handles names that match no prefix.
	fallback Opener
}

// Register registers o to handle names beginning with prefix. The longest
// matching prefix wins. Openers receive the full name, including prefix.
func (r *Registry) Register(prefix string, o Opener) {
	if r.openers == nil {
		r.openers = make(map[string]Opener)
	}
	if _, ok := r.openers[prefix]; !ok {
		r.prefixes = append(r.prefixes, prefix)
		sort.Slice(r.prefixes, func(i, j int) bool { return len(r.prefixes[i]) > len(r.prefixes[j]) })
	}
	r.openers[prefix] = o
}

// SetFallback sets the Opener used for names that match no prefix.
func (r *Registry) SetFallback(o Opener) { r.fallback = o }

func (r *Registry) resolve(name string) (Opener, error) {
	for _, prefix := range r.prefixes {
		if strings.HasPrefix(name, prefix) {
			return r.openers[prefix], nil
		}
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, errors.Wrapf(ErrNoOpener, "%q", name)
}

// Open opens the named source.
func (r *Registry) Open(ctx context.Context, name string) (Source, error) {
	o, err := r.resolve(name)
	if err != nil {
		return nil, err
	}
	return o.Open(ctx, name)
}

// Exists returns true if the named source exists.
func (r *Registry) Exists(ctx context.Context, name string) (bool, error) {
	o, err := r.resolve(name)
	if err != nil {
		return false, err
	}
	return o.Exists(ctx, name)
}

// Options configures DefaultRegistry.
type Options struct {
	// HTTP configures the "http:" and "https:" transports.
	HTTP HTTPOpener

	// S3, if not nil, handles "s3:" names. If nil, "s3:" names are not
	// supported.
	S3 *S3Opener
}

// DefaultRegistry returns a Registry with every built-in transport:
//
//   - "file:" and bare paths open local files.
//   - "http:" and "https:" use HTTP range requests.
//   - "s3:" uses S3 ranged GetObject calls, if configured.
//   - "snappy+<inner>" inflates a framed snappy stream read from <inner>.
func DefaultRegistry(opts Options) *Registry {
	var r Registry
	r.Register(FilePrefix, FileOpener{})
	r.SetFallback(FileOpener{})

	httpOpener := opts.HTTP
	r.Register("http:", &httpOpener)
	r.Register("https:", &httpOpener)

	if opts.S3 != nil {
		r.Register(S3Prefix, opts.S3)
	}

	r.Register(SnappyPrefix, &SnappyOpener{Inner: &r})
	return &r
}
