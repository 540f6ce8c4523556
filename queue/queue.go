// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package queue implements the Completion Queue (spec §4.4): a mutex
// protected FIFO of presents whose lifecycle has ended, written by the
// single consumer thread driving the correlation engine and drained by any
// external thread.
package queue

import (
	"sync"

	"github.com/tinyrecon/presentmon/present"
)

// Queue is a FIFO of completed presents, in per-(process, swap chain)
// submission order. The zero Queue is ready to use.
type Queue struct {
	mu   sync.Mutex
	buf  []present.Present
}

// Push appends ps to the queue under the completion-queue mutex (spec
// §4.2 step 5, §4.4, §5 "suspension point (a)"). It is the only write path;
// callers never hold the lock across anything but this append.
func (q *Queue) Push(ps ...present.Present) {
	if len(ps) == 0 {
		return
	}
	q.mu.Lock()
	q.buf = append(q.buf, ps...)
	q.mu.Unlock()
}

// Drain empties the queue and returns everything it held, atomically
// swapping the backing buffer (spec §4.4: "a consumer invokes drain()
// atomically swapping the buffer"). Draining an empty queue is a no-op that
// returns nil — Drain is idempotent on empty (spec §8 invariant 6).
func (q *Queue) Drain() []present.Present {
	q.mu.Lock()
	out := q.buf
	q.buf = nil
	q.mu.Unlock()
	return out
}

// Len reports the number of presents currently queued, for diagnostics.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}
