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

package core

import (
	"time"

	"extrond/core/coro"
)

// Result is what a finished action query reports back to its caller. A
// scripted action fills Text, Status and Error from up to three return
// values, in any order, by their type (see script.Result); a plain JSON
// action reports only success or failure, through Error. ContentType is
// not set by either kind.
type Result struct {
	Text        string
	ContentType string
	Status      int
	Error       bool
}

// job is a running (or queued) action invocation: a coroutine plus the
// state transitions to apply on success or failure, and a one-slot
// channel that receives the final Result without blocking the sender once
// the job finishes. result is nil for a plain JSON action
// (which reports only success/failure); a scripted action fills it in
// before its coroutine returns.
type job struct {
	name       string
	co         *coro.Handle
	result     *Result
	beginState State
	endState   State
	failState  State
	deadline   time.Time
	done       chan Result
}
