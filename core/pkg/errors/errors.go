// Copyright (c) 2022 The rcproxy Authors
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

package errors

import "errors"

var (
	// ErrEngineShutdown occurs when the reactor is going down.
	ErrEngineShutdown = errors.New("engine is going to be shutdown")
	// ErrEngineInShutdown occurs when attempting to shut the engine down more than once.
	ErrEngineInShutdown = errors.New("engine is already in shutdown")
	// ErrUnknownClient occurs when a request bridge query names a client that doesn't exist.
	ErrUnknownClient = errors.New("unknown client")
	// ErrUnknownAction occurs when a query names an action that neither the client's script exports nor its device type defines.
	ErrUnknownAction = errors.New("unknown action")
	// ErrNotReady occurs when a query arrives before the client has reached IDLE.
	ErrNotReady = errors.New("client not yet connected")
	// ErrUnsupportedOp occurs when calling a method that has no meaning for this connection kind.
	ErrUnsupportedOp = errors.New("unsupported operation")

	// ================================= action / protocol errors =================================

	// ErrActionFailed occurs when a scripted command (expect/match/fail) fails against the input.
	ErrActionFailed = errors.New("action command failed")
	// ErrSocketClosed occurs when the peer has closed the connection.
	ErrSocketClosed = errors.New("socket closed by peer")
	// ErrWouldBlock is returned internally by the socket layer; callers treat it as "try later".
	ErrWouldBlock = errors.New("operation would block")
)
