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

import (
	"fmt"
	"net"
)

// lookupIPv4 resolves host (a dotted IPv4 literal or a hostname) to the
// 4-byte address unix.SockaddrInet4 needs. Device hosts are almost always
// literals in practice, but DNS names are supported for completeness.
func lookupIPv4(host string) (addr [4]byte, err error) {
	ip := net.ParseIP(host)
	if ip == nil {
		ips, lookupErr := net.LookupIP(host)
		if lookupErr != nil {
			return addr, lookupErr
		}
		for _, candidate := range ips {
			if v4 := candidate.To4(); v4 != nil {
				ip = v4
				break
			}
		}
		if ip == nil {
			return addr, fmt.Errorf("socket: no IPv4 address for %s", host)
		}
	}
	v4 := ip.To4()
	if v4 == nil {
		return addr, fmt.Errorf("socket: %s is not an IPv4 address", host)
	}
	copy(addr[:], v4)
	return addr, nil
}
