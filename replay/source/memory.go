// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package source

import (
	"context"
	"sync"

	"github.com/danjacques/gorawevent/support/byteslicereader"

	"github.com/pkg/errors"
)

// memorySource is a Source backed by an in-memory buffer.
type memorySource struct {
	byteslicereader.R

	name string
}

// NewMemorySource returns a Source that reads data. data is not copied.
func NewMemorySource(name string, data []byte) Source {
	return &memorySource{R: byteslicereader.R{Buffer: data}, name: name}
}

func (ms *memorySource) Name() string { return ms.name }

// MemoryOpener opens sources from a map of in-memory buffers.
//
// It is safe for concurrent use.
type MemoryOpener struct {
	mu    sync.Mutex
	files map[string][]byte
}

var _ Opener = (*MemoryOpener)(nil)

// Put adds or replaces the named buffer.
func (mo *MemoryOpener) Put(name string, data []byte) {
	mo.mu.Lock()
	defer mo.mu.Unlock()

	if mo.files == nil {
		mo.files = make(map[string][]byte)
	}
	mo.files[name] = data
}

// Open implements Opener.
func (mo *MemoryOpener) Open(ctx context.Context, name string) (Source, error) {
	mo.mu.Lock()
	defer mo.mu.Unlock()

	data, ok := mo.files[name]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%q", name)
	}
	return NewMemorySource(name, data), nil
}

// Exists implements Opener.
func (mo *MemoryOpener) Exists(ctx context.Context, name string) (bool, error) {
	mo.mu.Lock()
	defer mo.mu.Unlock()

	_, ok := mo.files[name]
	return ok, nil
}
