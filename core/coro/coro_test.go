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

package coro

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestYieldResumeSequence(t *testing.T) {
	h := Spawn(func(yield func(int) int, arg int) int {
		a := yield(arg + 1)
		b := yield(a + 1)
		return b + 1
	})

	v, alive := h.Resume(10)
	assert.True(t, alive)
	assert.Equal(t, 11, v)

	v, alive = h.Resume(20)
	assert.True(t, alive)
	assert.Equal(t, 21, v)

	v, alive = h.Resume(30)
	assert.False(t, alive)
	assert.Equal(t, 31, v)
}

func TestNoYieldCompletesOnFirstResume(t *testing.T) {
	h := Spawn(func(yield func(int) int, arg int) int {
		return arg * 2
	})

	v, alive := h.Resume(5)
	assert.False(t, alive)
	assert.Equal(t, 10, v)
}

func TestResumeAfterDeathPanics(t *testing.T) {
	h := Spawn(func(yield func(int) int, arg int) int {
		return arg
	})
	h.Resume(1)
	assert.Panics(t, func() {
		h.Resume(1)
	})
}
