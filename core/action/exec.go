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
	"bytes"

	coreerrors "extrond/core/pkg/errors"
)

// IOWaitDelayMS is the minimum pause between short-write retries and
// between polls for more input, matching the original device protocol's
// IOWaitDelay constant.
const IOWaitDelayMS = 10

// Env is the environment a Command executes against: a client's input
// buffer and its socket, plus a way to suspend the owning coroutine.
type Env interface {
	Available() int
	Peek() []byte
	Advance(n int)
	Send(p []byte) (int, error)

	// Yield suspends the coroutine until either waitMS elapses (0 means
	// "wake as soon as any new input arrives") or the connection closes.
	// It returns the buffer's Available() count after waking, or -1 if
	// the connection was closed while suspended.
	Yield(waitMS int) int
}

// Exec runs cmds in order against env, stopping at the first failure.
// expect/skip/need block (via Env.Yield) until enough input has arrived;
// match and skipall never block. A nil return means every command
// succeeded.
func Exec(cmds []Command, env Env) error {
	for _, c := range cmds {
		if err := execOne(c, env); err != nil {
			return err
		}
	}
	return nil
}

func execOne(c Command, env Env) error {
	switch c.Op {
	case OpFail:
		return coreerrors.ErrActionFailed

	case OpExpect:
		if err := awaitBytes(env, len(c.Str)); err != nil {
			return err
		}
		if !bytes.Equal(env.Peek()[:len(c.Str)], []byte(c.Str)) {
			return coreerrors.ErrActionFailed
		}
		env.Advance(len(c.Str))

	case OpMatch:
		loc := c.Re.FindIndex(env.Peek())
		if loc == nil || loc[0] != 0 {
			return coreerrors.ErrActionFailed
		}
		env.Advance(loc[1])

	case OpSkip:
		if err := awaitBytes(env, int(c.N)); err != nil {
			return err
		}
		env.Advance(int(c.N))

	case OpSkipAll:
		env.Advance(env.Available())

	case OpNeed:
		if err := awaitBytes(env, int(c.N)); err != nil {
			return err
		}

	case OpWait:
		env.Yield(int(c.N))

	case OpSend:
		data := []byte(c.Str)
		for len(data) > 0 {
			n, err := env.Send(data)
			if err != nil {
				return err
			}
			data = data[n:]
			if len(data) > 0 {
				if env.Yield(IOWaitDelayMS) < 0 {
					return coreerrors.ErrSocketClosed
				}
			}
		}
	}
	return nil
}

func awaitBytes(env Env, n int) error {
	for env.Available() < n {
		if env.Yield(IOWaitDelayMS) < 0 {
			return coreerrors.ErrSocketClosed
		}
	}
	return nil
}
