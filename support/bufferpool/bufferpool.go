// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package bufferpool offers reusable byte buffers in power-of-two size
// classes.
package bufferpool

import (
	"math/bits"
	"sync"
	"sync/atomic"
)

// DefaultMaxSize is the largest buffer pooled when Pool.MaxSize is zero.
const DefaultMaxSize = 16 * 1024 * 1024

// minClass is the smallest size class, 2^minClass bytes.
const minClass = 6

// Pool maintains pools of buffers, one per size class. It offers a new buffer
// when one is unavailable.
//
// A Pool is safe for concurrent use.
type Pool struct {
	// MaxSize is the largest buffer size that is pooled. Larger buffers are
	// allocated on demand and discarded when released. If zero,
	// DefaultMaxSize is used.
	MaxSize int

	classes [64]sync.Pool
}

func (bp *Pool) maxSize() int {
	if bp.MaxSize > 0 {
		return bp.MaxSize
	}
	return DefaultMaxSize
}

// sizeClass returns the class holding buffers of at least size bytes.
func sizeClass(size int) int {
	if size <= 1<<minClass {
		return minClass
	}
	return bits.Len(uint(size - 1))
}

// Get returns a buffer of size bytes, allocating one if one is not available.
// The returned buffer has a reference count of 1.
//
// The caller should return the buffer to the pool by calling its Release method
// when done with it.
func (bp *Pool) Get(size int) *Buffer {
	class := -1
	if size <= bp.maxSize() {
		class = sizeClass(size)
	}

	var b *Buffer
	if class >= 0 {
		b, _ = bp.classes[class].Get().(*Buffer)
	}
	if b == nil {
		capacity := size
		if class >= 0 {
			capacity = 1 << uint(class)
		}
		// Create a blank buffer. When it is released, it will be added back to
		// its class.
		b = &Buffer{
			bytes: make([]byte, capacity),
			class: class,
		}
	}

	b.pool = bp
	b.size = size
	b.refcount = 1
	return b
}

func (bp *Pool) releaseNode(b *Buffer) {
	if b.class >= 0 {
		bp.classes[b.class].Put(b)
	}
}

// Buffer contains a byte buffer that can be released into a Pool for reuse.
//
// Buffer is reference counted, and can be retained and released appropriately.
// Failure to release Buffer will not cause a memory leak, but will prevent the
// reuse of the Buffer.
type Buffer struct {
	refcount int64

	bytes []byte
	size  int
	// class is the buffer's size class, or -1 if it is not pooled.
	class int

	pool *Pool
}

// Bytes returns this buffer's byte slice. Its contents are undefined until
// written.
func (b *Buffer) Bytes() []byte { return b.bytes[:b.size] }

// Len returns the number of bytes in the buffer.
func (b *Buffer) Len() int { return b.size }

// Truncate caps the number of bytes returned by Bytes. It cannot grow the
// buffer past the size it was requested with.
func (b *Buffer) Truncate(size int) {
	if size < b.size {
		b.size = size
	}
}

// Release returns the buffer to its buffer pool.
//
// Release is safe for concurrent use.
//
// A Buffer must only be released once per reference.
func (b *Buffer) Release() {
	if atomic.AddInt64(&b.refcount, -1) != 0 {
		return
	}

	var pool *Pool
	pool, b.pool = b.pool, nil
	pool.releaseNode(b)
}

// Retain increases the Buffer's reference count. It should be accompanied by
// a Release call to reuse the buffer when it's finished.
func (b *Buffer) Retain() { atomic.AddInt64(&b.refcount, 1) }
