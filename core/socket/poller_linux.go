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

//go:build linux

package socket

import (
	"os"

	"golang.org/x/sys/unix"
)

// epollSet is the linux Set implementation. It isn't in the retrieved
// pack (only a kqueue poller was), so it's authored fresh against
// golang.org/x/sys/unix following the same "register once, toggle
// interest, one big wait call" shape the kqueue sibling uses.
type epollSet struct {
	epfd   int
	events []unix.EpollEvent
}

// NewSet opens the platform multiplexer.
func NewSet() (Set, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}
	return &epollSet{epfd: fd, events: make([]unix.EpollEvent, 128)}, nil
}

func epollEvents(watchWrite bool) uint32 {
	ev := uint32(unix.EPOLLIN)
	if watchWrite {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (s *epollSet) Add(fd int, watchWrite bool) error {
	ev := &unix.EpollEvent{Events: epollEvents(watchWrite), Fd: int32(fd)}
	return os.NewSyscallError("epoll_ctl add", unix.EpollCtl(s.epfd, unix.EPOLL_CTL_ADD, fd, ev))
}

func (s *epollSet) SetWritable(fd int, watchWrite bool) error {
	ev := &unix.EpollEvent{Events: epollEvents(watchWrite), Fd: int32(fd)}
	return os.NewSyscallError("epoll_ctl mod", unix.EpollCtl(s.epfd, unix.EPOLL_CTL_MOD, fd, ev))
}

func (s *epollSet) Remove(fd int) error {
	err := unix.EpollCtl(s.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err != nil && err != unix.ENOENT {
		return os.NewSyscallError("epoll_ctl del", err)
	}
	return nil
}

func (s *epollSet) Poll(timeoutMS int) ([]Event, error) {
	n, err := unix.EpollWait(s.epfd, s.events, timeoutMS)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, os.NewSyscallError("epoll_wait", err)
	}
	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		ev := s.events[i]
		var flags Flags
		if ev.Events&(unix.EPOLLHUP|unix.EPOLLERR) != 0 {
			flags |= Discard
		}
		if ev.Events&unix.EPOLLIN != 0 {
			flags |= Readable
		}
		if ev.Events&unix.EPOLLOUT != 0 {
			flags |= Writable
		}
		out = append(out, Event{FD: int(ev.Fd), Flags: flags})
	}
	return out, nil
}

func (s *epollSet) Close() error {
	return os.NewSyscallError("close", unix.Close(s.epfd))
}
