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

	coreerrors "extrond/core/pkg/errors"
)

// minPumpDelay is the floor on how often the bridge polls a running job
// for progress, mirroring the original's IOWaitDelay: even a job that asks
// to be woken immediately still only gets resumed this often.
const minPumpDelay = 10 * time.Millisecond

// Bridge runs action on client and blocks the calling goroutine (an HTTP
// handler's) until it finishes or timeout elapses. It is the only path
// into a client that isn't driven by the reactor, and it takes the
// client's lock for its whole duration so the reactor skips this client
// via TryLock in the meantime.
func Bridge(client *Client, actionName string, params map[string]string, timeoutMS int) (Result, error) {
	client.mu.Lock()
	defer client.mu.Unlock()

	if !client.hasAction(actionName) {
		return Result{}, coreerrors.ErrUnknownAction
	}
	if client.state != Idle {
		return Result{}, coreerrors.ErrNotReady
	}

	co, result, err := client.spawnJob(actionName, params)
	if err != nil {
		return Result{}, err
	}
	client.state = Inprocess

	if GlobalStats != nil {
		GlobalStats.ActionTotal.WithLabelValues(client.Name, actionName).Inc()
	}
	started := time.Now()
	deadline := started.Add(time.Duration(timeoutMS) * time.Millisecond)
	deadlineEntry := GlobalTimeouts.push(client.Name, actionName, deadline)
	defer GlobalTimeouts.remove(deadlineEntry)

	arg := 0
	for {
		client.readAvailable()
		arg = client.buf.Available()
		ret, alive := co.Resume(arg)
		if !alive {
			ok := ret == 0
			if ok {
				client.enterState(Idle)
			} else {
				client.enterState(Error)
			}
			if GlobalStats != nil {
				GlobalStats.ActionLatency.WithLabelValues(client.Name, actionName).Observe(time.Since(started).Seconds())
				if !ok {
					GlobalStats.ActionFailures.WithLabelValues(client.Name, actionName).Inc()
				}
			}
			res := Result{Error: !ok}
			if result != nil {
				res = *result
				res.Error = !ok
			}
			return res, resultErr(ok)
		}

		if timeoutMS > 0 && time.Now().After(deadline) {
			co.Destroy()
			client.state = Error
			return Result{Error: true}, coreerrors.ErrActionFailed
		}

		wait := ret
		if wait < int(minPumpDelay/time.Millisecond) {
			wait = int(minPumpDelay / time.Millisecond)
		}
		time.Sleep(time.Duration(wait) * time.Millisecond)
	}
}

func resultErr(ok bool) error {
	if ok {
		return nil
	}
	return coreerrors.ErrActionFailed
}
