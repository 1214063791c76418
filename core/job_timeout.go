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

package core

import (
	"sync"
	"time"

	"github.com/petar/GoLLRB/llrb"
)

// jobDeadline is one entry in the timeout tree: ordered first by when the
// job is due, so the earliest deadline is always the tree minimum. The
// tree itself aborts nothing; it only powers /status's in-flight query
// reporting. Bridge (bridge.go) checks its own deadline separately and
// abandons a query that is still running once it has passed.
type jobDeadline struct {
	deadline time.Time
	client   string
	action   string
}

// Less implements llrb.Item.
func (d *jobDeadline) Less(than llrb.Item) bool {
	other := than.(*jobDeadline)
	if d.deadline.Equal(other.deadline) {
		return d.client < other.client
	}
	return d.deadline.Before(other.deadline)
}

// timeoutTree tracks every in-flight bridge query ordered by deadline,
// adapted from the original proxy's in-flight-request tree to key on a
// device+action pair instead of a connection sequence number.
type timeoutTree struct {
	mu   sync.Mutex
	tree *llrb.LLRB
}

func newTimeoutTree() *timeoutTree {
	return &timeoutTree{tree: llrb.New()}
}

// GlobalTimeouts tracks every bridge query currently in flight, across all
// clients, for /status reporting.
var GlobalTimeouts = newTimeoutTree()

// Oldest reports the in-flight query with the nearest deadline, if any.
func (t *timeoutTree) Oldest() (client, action string, deadline time.Time, ok bool) {
	d, found := t.oldest()
	if !found {
		return "", "", time.Time{}, false
	}
	return d.client, d.action, d.deadline, true
}

// Len reports how many queries are currently in flight.
func (t *timeoutTree) Len() int {
	return t.len()
}

func (t *timeoutTree) push(client, action string, deadline time.Time) *jobDeadline {
	d := &jobDeadline{deadline: deadline, client: client, action: action}
	t.mu.Lock()
	t.tree.ReplaceOrInsert(d)
	t.mu.Unlock()
	return d
}

func (t *timeoutTree) remove(d *jobDeadline) {
	t.mu.Lock()
	t.tree.Delete(d)
	t.mu.Unlock()
}

// oldest returns the job with the nearest deadline, if any are in flight.
func (t *timeoutTree) oldest() (*jobDeadline, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	min := t.tree.Min()
	if min == nil {
		return nil, false
	}
	return min.(*jobDeadline), true
}

func (t *timeoutTree) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tree.Len()
}
