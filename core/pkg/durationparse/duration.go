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

// Package durationparse parses the sum-composable "<int><unit>" duration
// strings used throughout device-type configuration and scripted action
// parameters (e.g. "1h30m", "500ms", "2d"). Go's time.ParseDuration almost
// does this but has no day unit and rejects a bare trailing unit list in
// the order devices actually write them, so this is a small hand-rolled
// scanner instead.
package durationparse

import (
	"fmt"
	"time"
)

var unitMultiplier = map[byte]time.Duration{
	's': time.Second,
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
}

// Parse accepts a sequence of <digits><unit> terms, e.g. "1h30m500ms", and
// sums them. "ms" is recognized as a two-byte unit; all others are a single
// byte. An empty string parses to zero. Terms need not be ordered largest
// to smallest and a unit may repeat (each occurrence adds independently).
func Parse(s string) (time.Duration, error) {
	var total time.Duration
	i := 0
	for i < len(s) {
		start := i
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if i == start {
			return 0, fmt.Errorf("durationparse: expected digits at offset %d in %q", start, s)
		}
		n := 0
		for _, c := range s[start:i] {
			n = n*10 + int(c-'0')
		}

		if i < len(s) && s[i] == 'm' && i+1 < len(s) && s[i+1] == 's' {
			total += time.Duration(n) * time.Millisecond
			i += 2
			continue
		}
		if i >= len(s) {
			return 0, fmt.Errorf("durationparse: missing unit after %d in %q", n, s)
		}
		mult, ok := unitMultiplier[s[i]]
		if !ok {
			return 0, fmt.Errorf("durationparse: unknown unit %q in %q", s[i], s)
		}
		total += time.Duration(n) * mult
		i++
	}
	return total, nil
}
