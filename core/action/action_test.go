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

package action

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "extrond/core/pkg/errors"
)

// fakeEnv is a minimal in-memory Env for exercising Exec without a real
// socket or reactor. feed supplies bytes to "arrive" the next time Yield
// is called, whatever its waitMS. A non-zero maxSend caps how many bytes
// one Send call accepts, to simulate short writes.
type fakeEnv struct {
	buf     []byte
	off     int
	feed    [][]byte
	sent    []byte
	maxSend int
	closed  bool
	yields  int
}

func (f *fakeEnv) Available() int { return len(f.buf) - f.off }
func (f *fakeEnv) Peek() []byte   { return f.buf[f.off:] }
func (f *fakeEnv) Advance(n int) {
	f.off += n
	if f.off == len(f.buf) {
		f.buf, f.off = nil, 0
	}
}
func (f *fakeEnv) Send(p []byte) (int, error) {
	if f.maxSend > 0 && len(p) > f.maxSend {
		p = p[:f.maxSend]
	}
	f.sent = append(f.sent, p...)
	return len(p), nil
}
func (f *fakeEnv) Yield(waitMS int) int {
	f.yields++
	if f.closed {
		return -1
	}
	if len(f.feed) > 0 {
		f.buf = append(f.buf, f.feed[0]...)
		f.feed = f.feed[1:]
	}
	return f.Available()
}

func mustParse(t *testing.T, src string) *Action {
	t.Helper()
	a, err := Parse("t", json.RawMessage(src))
	require.NoError(t, err)
	return a
}

func TestExpectSucceeds(t *testing.T) {
	a := mustParse(t, `[{"op":"expect","arg":"login:"}]`)
	env := &fakeEnv{buf: []byte("login: ")}
	err := Exec(a.Commands, env)
	assert.NoError(t, err)
	assert.Equal(t, []byte(" "), env.Peek())
}

func TestExpectMismatchFails(t *testing.T) {
	a := mustParse(t, `[{"op":"expect","arg":"login:"}]`)
	env := &fakeEnv{buf: []byte("denied")}
	err := Exec(a.Commands, env)
	assert.ErrorIs(t, err, coreerrors.ErrActionFailed)
}

func TestExpectWaitsForMoreInput(t *testing.T) {
	a := mustParse(t, `[{"op":"expect","arg":"login:"}]`)
	env := &fakeEnv{buf: []byte("log"), feed: [][]byte{[]byte("in:")}}
	err := Exec(a.Commands, env)
	assert.NoError(t, err)
	assert.Equal(t, 1, env.yields)
}

func TestMatchNeverWaits(t *testing.T) {
	a := mustParse(t, `[{"op":"match","arg":"[0-9]+"}]`)
	env := &fakeEnv{buf: []byte("42ok")}
	err := Exec(a.Commands, env)
	assert.NoError(t, err)
	assert.Equal(t, 0, env.yields)
	assert.Equal(t, []byte("ok"), env.Peek())
}

func TestMatchWithRemainderThenSkipAll(t *testing.T) {
	a := mustParse(t, `[{"op":"match","arg":"^OK=([0-9]+)\r\n"},{"op":"skipall"}]`)
	env := &fakeEnv{buf: []byte("OK=42\r\nextra")}
	err := Exec(a.Commands, env)
	assert.NoError(t, err)
	assert.Equal(t, 0, env.Available())
}

func TestMatchNoMatchFails(t *testing.T) {
	a := mustParse(t, `[{"op":"match","arg":"[0-9]+"}]`)
	env := &fakeEnv{buf: []byte("nope")}
	err := Exec(a.Commands, env)
	assert.ErrorIs(t, err, coreerrors.ErrActionFailed)
}

func TestSkipAllNeverWaitsEvenOnEmptyBuffer(t *testing.T) {
	a := mustParse(t, `[{"op":"skipall"}]`)
	env := &fakeEnv{}
	err := Exec(a.Commands, env)
	assert.NoError(t, err)
	assert.Equal(t, 0, env.yields)
}

func TestFailAlwaysFails(t *testing.T) {
	a := mustParse(t, `[{"op":"fail"}]`)
	env := &fakeEnv{}
	err := Exec(a.Commands, env)
	assert.ErrorIs(t, err, coreerrors.ErrActionFailed)
}

func TestSendRetriesOnShortWrite(t *testing.T) {
	a := mustParse(t, `[{"op":"send","arg":"hello"}]`)
	env := &fakeEnv{maxSend: 2}
	err := Exec(a.Commands, env)
	assert.NoError(t, err)
	assert.Equal(t, []byte("hello"), env.sent)
	assert.Equal(t, 2, env.yields)
}

func TestNeedDoesNotConsume(t *testing.T) {
	a := mustParse(t, `[{"op":"need","n":3}]`)
	env := &fakeEnv{buf: []byte("abcdef")}
	err := Exec(a.Commands, env)
	assert.NoError(t, err)
	assert.Equal(t, 6, env.Available())
}

func TestParseUnknownOpFails(t *testing.T) {
	_, err := Parse("t", json.RawMessage(`[{"op":"bogus"}]`))
	assert.Error(t, err)
}

func TestParseWaitDuration(t *testing.T) {
	a := mustParse(t, `[{"op":"wait","duration":"1s500ms"}]`)
	require.Len(t, a.Commands, 1)
	assert.EqualValues(t, 1500, a.Commands[0].N)
}
