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

package socket

// Event reports one fd's readiness after a Poll call.
type Event struct {
	FD    int
	Flags Flags
}

// Set multiplexes many non-blocking sockets, backed by epoll on linux and
// kqueue on darwin, freebsd and dragonfly.
type Set interface {
	// Add registers fd for readability events, and for writability too
	// when watchWrite is true (used while a connect is still in progress).
	Add(fd int, watchWrite bool) error
	// SetWritable toggles write-readiness watching for an already
	// registered fd.
	SetWritable(fd int, watchWrite bool) error
	// Remove deregisters fd. It does not close it.
	Remove(fd int) error
	// Poll blocks up to timeoutMS (0 means return immediately, negative
	// means block indefinitely) and returns the fds that became ready.
	Poll(timeoutMS int) ([]Event, error)
	// Close releases the underlying poller fd.
	Close() error
}
