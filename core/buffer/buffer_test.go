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

package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppendAndPeek(t *testing.T) {
	b := New()
	defer b.Release()

	b.Append([]byte("hello"))
	assert.Equal(t, 5, b.Available())
	assert.Equal(t, []byte("hello"), b.Peek())
}

func TestAdvancePartial(t *testing.T) {
	b := New()
	defer b.Release()

	b.Append([]byte("hello world"))
	b.Advance(6)
	assert.Equal(t, 5, b.Available())
	assert.Equal(t, []byte("world"), b.Peek())
}

func TestCompactionInvariant(t *testing.T) {
	b := New()
	defer b.Release()

	b.Append([]byte("abc"))
	b.Advance(3)
	assert.Equal(t, 0, b.Available())
	assert.Equal(t, 0, b.offset)
	assert.Equal(t, 0, len(b.bb.B))
}

func TestAdvanceMoreThanAvailableClampsAtAvailable(t *testing.T) {
	b := New()
	defer b.Release()

	b.Append([]byte("ab"))
	b.Advance(100)
	assert.Equal(t, 0, b.Available())
}

func TestAppendAfterPartialConsumeKeepsRemainder(t *testing.T) {
	b := New()
	defer b.Release()

	b.Append([]byte("12345"))
	b.Advance(2)
	b.Append([]byte("6789"))
	assert.Equal(t, []byte("3456789"), b.Peek())
}

func TestClear(t *testing.T) {
	b := New()
	defer b.Release()

	b.Append([]byte("data"))
	b.Clear()
	assert.Equal(t, 0, b.Available())
}
