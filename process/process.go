// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package process implements the Process Tracker (spec §4.5): it observes
// process-start/-end events and exposes them on a thread-safe queue
// separate from the Completion Queue, and accumulates the lost-event
// counters a caller can use to judge a trace's reliability.
package process

import "sync"

// Event is one process-start or process-end observation (spec §4.5). An
// empty ImageName signals a process-end event.
type Event struct {
	ProcessID uint32
	ImageName string
}

// Tracker holds process lifecycle events and a running total of lost events
// and buffers, fed by the dispatcher's periodic TickLostEvents call (spec
// §6). Never blocks the correlation path: pushing an Event only ever takes
// the Tracker's own mutex, the second of the two suspension points named in
// spec §5.
type Tracker struct {
	mu     sync.Mutex
	events []Event

	lostEvents  uint64
	lostBuffers uint64
}

// Started records a process-start event.
func (t *Tracker) Started(pid uint32, imageName string) {
	t.push(Event{ProcessID: pid, ImageName: imageName})
}

// Ended records a process-end event.
func (t *Tracker) Ended(pid uint32) {
	t.push(Event{ProcessID: pid})
}

func (t *Tracker) push(e Event) {
	t.mu.Lock()
	t.events = append(t.events, e)
	t.mu.Unlock()
}

// Drain empties the process-event queue and returns everything it held
// (spec §6: drain_process_events).
func (t *Tracker) Drain() []Event {
	t.mu.Lock()
	out := t.events
	t.events = nil
	t.mu.Unlock()
	return out
}

// Tick accumulates a lost-events/lost-buffers health signal (spec §6:
// tick_lost_events returns counters since the last call — the Tracker is
// where those running totals live so Unreliable can be asked at any time).
func (t *Tracker) Tick(events, buffers uint32) {
	t.mu.Lock()
	t.lostEvents += uint64(events)
	t.lostBuffers += uint64(buffers)
	t.mu.Unlock()
}

// Unreliable reports whether the accumulated lost-event count has reached
// threshold (lost events >= threshold). This is the consumer-side policy spec §7 describes ("a
// consumer may raise the overall run as unreliable past a threshold it
// chooses") and which original_source/PresentMon/ConsumerThread.cpp
// implements inline; it is offered here as an opt-in convenience rather
// than forced on every caller (spec §12).
func (t *Tracker) Unreliable(threshold uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lostEvents >= threshold
}

// LostCounts returns the running totals accumulated via Tick.
func (t *Tracker) LostCounts() (events, buffers uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lostEvents, t.lostBuffers
}
