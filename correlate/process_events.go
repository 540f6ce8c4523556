// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package correlate

import "github.com/tinyrecon/presentmon/trace"

// processStart implements spec §4.5's process-start half of the Process
// Tracker.
func (d *Dispatcher) processStart(ev trace.RawEvent) {
	schema, ok := d.resolve("processStart", ev)
	if !ok {
		return
	}
	pid, ok := field[uint32](d, "processStart", schema, ev, fieldProcessID)
	if !ok {
		return
	}
	imageName, ok := fieldString(d, "processStart", schema, ev, fieldImageFileName)
	if !ok {
		return
	}
	d.tracker.Started(pid, imageName)
}

// processEnd implements spec §4.5's process-end half of the Process Tracker.
func (d *Dispatcher) processEnd(ev trace.RawEvent) {
	schema, ok := d.resolve("processEnd", ev)
	if !ok {
		return
	}
	pid, ok := field[uint32](d, "processEnd", schema, ev, fieldProcessID)
	if !ok {
		return
	}
	d.tracker.Ended(pid)
}
