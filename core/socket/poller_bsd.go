// Copyright (c) 2021 Andy Pan
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

//go:build freebsd || dragonfly || darwin

package socket

import (
	"os"

	"golang.org/x/sys/unix"
)

// kqueueSet adapts the kqueue-based poller shape from the reference
// reactor's netpoll package to this package's fd-set-of-sockets use case:
// one kevent registration per watched fd rather than a PollAttachment
// pointer, since a device socket has no per-connection handler object of
// its own here.
type kqueueSet struct {
	kqfd   int
	events []unix.Kevent_t
}

// NewSet opens the platform multiplexer.
func NewSet() (Set, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, os.NewSyscallError("kqueue", err)
	}
	return &kqueueSet{kqfd: fd, events: make([]unix.Kevent_t, 128)}, nil
}

func (s *kqueueSet) register(fd int, filter int16, flags uint16) error {
	changes := []unix.Kevent_t{{
		Ident:  uint64(fd),
		Filter: filter,
		Flags:  flags,
	}}
	_, err := unix.Kevent(s.kqfd, changes, nil, nil)
	return err
}

func (s *kqueueSet) Add(fd int, watchWrite bool) error {
	if err := s.register(fd, unix.EVFILT_READ, unix.EV_ADD|unix.EV_CLEAR); err != nil {
		return os.NewSyscallError("kevent add read", err)
	}
	if watchWrite {
		if err := s.register(fd, unix.EVFILT_WRITE, unix.EV_ADD|unix.EV_CLEAR); err != nil {
			return os.NewSyscallError("kevent add write", err)
		}
	}
	return nil
}

func (s *kqueueSet) SetWritable(fd int, watchWrite bool) error {
	flags := uint16(unix.EV_ADD | unix.EV_CLEAR)
	if !watchWrite {
		flags = unix.EV_DELETE
	}
	if err := s.register(fd, unix.EVFILT_WRITE, flags); err != nil && err != unix.ENOENT {
		return os.NewSyscallError("kevent mod write", err)
	}
	return nil
}

func (s *kqueueSet) Remove(fd int) error {
	_ = s.register(fd, unix.EVFILT_READ, unix.EV_DELETE)
	_ = s.register(fd, unix.EVFILT_WRITE, unix.EV_DELETE)
	return nil
}

func (s *kqueueSet) Poll(timeoutMS int) ([]Event, error) {
	var ts *unix.Timespec
	if timeoutMS >= 0 {
		ts = &unix.Timespec{
			Sec:  int64(timeoutMS / 1000),
			Nsec: int64(timeoutMS%1000) * 1e6,
		}
	}
	n, err := unix.Kevent(s.kqfd, nil, s.events, ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, os.NewSyscallError("kevent wait", err)
	}

	byFD := make(map[int]Flags, n)
	for i := 0; i < n; i++ {
		ev := s.events[i]
		fd := int(ev.Ident)
		flags := byFD[fd]
		if ev.Flags&(unix.EV_EOF|unix.EV_ERROR) != 0 {
			flags |= Discard
		}
		switch ev.Filter {
		case unix.EVFILT_READ:
			flags |= Readable
		case unix.EVFILT_WRITE:
			flags |= Writable
		}
		byFD[fd] = flags
	}
	out := make([]Event, 0, len(byFD))
	for fd, flags := range byFD {
		out = append(out, Event{FD: fd, Flags: flags})
	}
	return out, nil
}

func (s *kqueueSet) Close() error {
	return os.NewSyscallError("close", unix.Close(s.kqfd))
}
