// Copyright (c) 2024 The extrond Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package buffer implements the per-client input buffer: a growable byte
// sequence with a read offset, backed by a pooled bytebufferpool.ByteBuffer
// so repeated client reconnects don't keep re-allocating backing arrays.
package buffer

import (
	"github.com/valyala/bytebufferpool"
)

// Buffer holds bytes read from a device socket that scripted actions have
// not yet consumed. It gives no pointer-stability guarantee across calls
// to Append: a caller holding a slice from Peek must not call Append before
// it is done with that slice.
type Buffer struct {
	bb     *bytebufferpool.ByteBuffer
	offset int
}

// New returns an empty Buffer drawing its backing storage from the shared
// pool. Release must be called when the buffer is no longer needed.
func New() *Buffer {
	return &Buffer{bb: bytebufferpool.Get()}
}

// Release returns the backing storage to the pool. The Buffer must not be
// used afterward.
func (b *Buffer) Release() {
	bytebufferpool.Put(b.bb)
	b.bb = nil
}

// Append copies p onto the end of the buffer.
func (b *Buffer) Append(p []byte) {
	b.bb.Write(p)
}

// Available is how many unconsumed bytes remain.
func (b *Buffer) Available() int {
	return len(b.bb.B) - b.offset
}

// Peek returns the unconsumed bytes without advancing the read offset. The
// returned slice is only valid until the next Append or Advance call.
func (b *Buffer) Peek() []byte {
	return b.bb.B[b.offset:]
}

// Advance consumes n bytes from the front of the unconsumed region. It
// compacts the buffer to offset 0 whenever the offset catches up to the
// write position, so Buffer doesn't grow unbounded across a long session
// of fully-consumed reads.
func (b *Buffer) Advance(n int) {
	if n <= 0 {
		return
	}
	if n > b.Available() {
		n = b.Available()
	}
	b.offset += n
	if b.offset == len(b.bb.B) {
		b.bb.Reset()
		b.offset = 0
	}
}

// Clear discards all unconsumed bytes.
func (b *Buffer) Clear() {
	b.bb.Reset()
	b.offset = 0
}
