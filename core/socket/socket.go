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

// Package socket wraps non-blocking TCP connect/read/write and a
// platform-specific multiplexer (epoll on linux, kqueue on darwin/bsd)
// behind a single Set type the reactor drives in its poll loop.
package socket

import (
	"os"

	"golang.org/x/sys/unix"

	coreerrors "extrond/core/pkg/errors"
)

// Invalid is the sentinel file descriptor for "not connected".
const Invalid = -1

// Outcome classifies the result of a non-blocking socket operation.
type Outcome int

const (
	OK Outcome = iota
	InProgress
	WouldBlock
	Closed
	Failed
)

// Flags is a bitmask of readiness conditions reported by Set.Poll.
type Flags uint8

const (
	Readable Flags = 1 << iota
	Writable
	JustConnected
	Discard
)

// Open creates a non-blocking TCP socket and begins an asynchronous
// connect. The caller must watch the returned fd for Writable to learn
// when the connect finishes (or failed); see Set.
func Open(host string, port int) (fd int, outcome Outcome, err error) {
	fd, err = unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return Invalid, Failed, os.NewSyscallError("socket", err)
	}
	if err = unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return Invalid, Failed, os.NewSyscallError("setnonblock", err)
	}

	sa, err := resolveSockaddr(host, port)
	if err != nil {
		_ = unix.Close(fd)
		return Invalid, Failed, err
	}

	err = unix.Connect(fd, sa)
	switch err {
	case nil:
		return fd, OK, nil
	case unix.EINPROGRESS:
		return fd, InProgress, nil
	default:
		_ = unix.Close(fd)
		return Invalid, Failed, os.NewSyscallError("connect", err)
	}
}

func resolveSockaddr(host string, port int) (unix.Sockaddr, error) {
	ip, err := lookupIPv4(host)
	if err != nil {
		return nil, err
	}
	return &unix.SockaddrInet4{Port: port, Addr: ip}, nil
}

// ConnectError reads SO_ERROR after a JustConnected readiness event to
// determine whether the asynchronous connect actually succeeded.
func ConnectError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return os.NewSyscallError("getsockopt", err)
	}
	if errno != 0 {
		return os.NewSyscallError("connect", unix.Errno(errno))
	}
	return nil
}

// Read fills p with as many bytes as are immediately available.
func Read(fd int, p []byte) (n int, outcome Outcome, err error) {
	n, err = unix.Read(fd, p)
	switch {
	case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
		return 0, WouldBlock, nil
	case err != nil:
		return 0, Failed, os.NewSyscallError("read", err)
	case n == 0:
		return 0, Closed, coreerrors.ErrSocketClosed
	default:
		return n, OK, nil
	}
}

// Write sends as much of p as the socket will immediately accept. A short
// write (n < len(p), outcome OK) is not an error; the caller retries the
// remainder later (core/action's send waits IOWaitDelayMS between tries).
func Write(fd int, p []byte) (n int, outcome Outcome, err error) {
	n, err = unix.Write(fd, p)
	switch {
	case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
		return 0, WouldBlock, nil
	case err != nil:
		return 0, Failed, os.NewSyscallError("write", err)
	default:
		return n, OK, nil
	}
}

// Close releases the file descriptor.
func Close(fd int) error {
	if fd == Invalid {
		return nil
	}
	return unix.Close(fd)
}
