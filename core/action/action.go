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

// Package action implements the scripted command interpreter that drives a
// device session: a fixed ordered set of opcodes compiled once from JSON at
// load time and executed against a client's input buffer and socket.
package action

import (
	"encoding/json"
	"fmt"
	"regexp"

	"extrond/core/pkg/durationparse"
)

// Opcode identifies one of the eight scripted commands. The numeric values
// are stable across releases; they are never persisted on the wire, but
// keeping the table's order fixed avoids surprising diffs when a new
// opcode is added.
type Opcode int

const (
	OpFail Opcode = iota
	OpExpect
	OpMatch
	OpSkip
	OpSkipAll
	OpWait
	OpNeed
	OpSend
)

var opcodeNames = [...]string{
	OpFail:    "fail",
	OpExpect:  "expect",
	OpMatch:   "match",
	OpSkip:    "skip",
	OpSkipAll: "skipall",
	OpWait:    "wait",
	OpNeed:    "need",
	OpSend:    "send",
}

func (op Opcode) String() string {
	if int(op) < 0 || int(op) >= len(opcodeNames) {
		return "unknown"
	}
	return opcodeNames[op]
}

var opcodeByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeNames))
	for i, n := range opcodeNames {
		m[n] = Opcode(i)
	}
	return m
}()

// Command is a single compiled step of an Action.
type Command struct {
	Op   Opcode
	Str  string         // expect/send: literal text
	Re   *regexp.Regexp // match: precompiled, anchored at the start, no capture groups
	N    uint           // skip/need: byte count
	Wait bool           // wait: timed pause
}

// Action is an ordered, immutable-after-parse sequence of Commands.
type Action struct {
	Name     string
	Commands []Command
}

// rawCommand mirrors one entry of a device type's action array on disk:
// {"op": "expect", "arg": "login:"} or {"op": "wait", "duration": "500ms"}.
type rawCommand struct {
	Op       string `json:"op"`
	Arg      string `json:"arg"`
	Duration string `json:"duration"`
	N        uint   `json:"n"`
}

// Parse compiles a JSON array of {op, arg|duration|n} objects into an
// Action. Device types are not parsed when they are loaded: a client calls
// Parse each time it starts an action (core/client.go's compileAction), so
// an action with a parse error stays listed for its device type and fails
// every time it is started.
func Parse(name string, raw json.RawMessage) (*Action, error) {
	var cmds []rawCommand
	if err := json.Unmarshal(raw, &cmds); err != nil {
		return nil, fmt.Errorf("action %s: %w", name, err)
	}
	out := &Action{Name: name, Commands: make([]Command, 0, len(cmds))}
	for i, rc := range cmds {
		op, ok := opcodeByName[rc.Op]
		if !ok {
			return nil, fmt.Errorf("action %s step %d: unknown op %q", name, i, rc.Op)
		}
		c := Command{Op: op}
		switch op {
		case OpExpect, OpSend:
			if rc.Arg == "" {
				return nil, fmt.Errorf("action %s step %d: %s requires arg", name, i, rc.Op)
			}
			c.Str = rc.Arg
		case OpMatch:
			if rc.Arg == "" {
				return nil, fmt.Errorf("action %s step %d: match requires arg", name, i)
			}
			re, err := regexp.Compile("^(?:" + rc.Arg + ")")
			if err != nil {
				return nil, fmt.Errorf("action %s step %d: bad regexp: %w", name, i, err)
			}
			re.Longest()
			c.Re = re
		case OpSkip, OpNeed:
			c.N = rc.N
		case OpSkipAll:
			// no parameters
		case OpWait:
			d, err := durationparse.Parse(rc.Duration)
			if err != nil {
				return nil, fmt.Errorf("action %s step %d: %w", name, i, err)
			}
			c.N = uint(d.Milliseconds())
			c.Wait = true
		case OpFail:
			// no parameters; always terminates the action unsuccessfully
		}
		out.Commands = append(out.Commands, c)
	}
	return out, nil
}
