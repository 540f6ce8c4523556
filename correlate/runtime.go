// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package correlate

import (
	"github.com/tinyrecon/presentmon/present"
	"github.com/tinyrecon/presentmon/trace"
)

// HRESULT codes AllowBatching must reject even though DXGI reports them as a
// technical success (spec §4.3 Runtime-stop).
const (
	resultOccluded              = 0x087A0001
	resultModeChangeInProgress  = 0x087A0004
	resultNoDesktopAccess       = 0x087A0005
)

func succeeded(result uint32) bool { return result&0x80000000 == 0 }

func runtimeOf(ev trace.RawEvent) present.Runtime {
	switch ev.Header.Provider {
	case trace.ProviderD3D9:
		return present.RuntimeD3D9
	default:
		return present.RuntimeDXGI
	}
}

// runtimePresentStart implements spec §4.3 Runtime-start.
func (d *Dispatcher) runtimePresentStart(ev trace.RawEvent) {
	schema, ok := d.resolve("runtimePresentStart", ev)
	if !ok {
		return
	}
	swapChain, ok := field[uint64](d, "runtimePresentStart", schema, ev, fieldSwapChain)
	if !ok {
		return
	}
	flags, ok := field[present.PresentFlags](d, "runtimePresentStart", schema, ev, fieldFlags)
	if !ok {
		return
	}
	syncInterval, ok := field[int32](d, "runtimePresentStart", schema, ev, fieldSyncInterval)
	if !ok {
		return
	}

	if flags.Has(present.FlagTest) {
		return
	}

	d.store.CreateRuntimePresent(ev.Header, swapChain, flags, syncInterval, runtimeOf(ev))
}

// runtimePresentStop implements spec §4.3 Runtime-stop.
func (d *Dispatcher) runtimePresentStop(ev trace.RawEvent) {
	id, ok := d.store.ByThread(ev.Header.ThreadID)
	if !ok {
		return
	}
	p, ok := d.store.Get(id)
	if !ok {
		d.store.DeleteByThread(ev.Header.ThreadID)
		return
	}

	schema, ok := d.resolve("runtimePresentStop", ev)
	if !ok {
		return
	}
	result, ok := field[uint32](d, "runtimePresentStop", schema, ev, fieldResult)
	if !ok {
		return
	}

	p.TimeTaken = ev.Header.TimestampQPC - p.QPCTime
	allowBatching := succeeded(result) &&
		result != resultOccluded &&
		result != resultModeChangeInProgress &&
		result != resultNoDesktopAccess

	if allowBatching {
		// CreateRuntimePresent already put this present in
		// by_process_pending. If no kernel event has claimed it on this
		// thread yet, it's a genuine batched present: drop the by_thread
		// mapping so find_or_create_by_thread can adopt it from
		// by_process_pending later, on this thread or another. If a kernel
		// event already set its mode, leave by_thread alone — the rest of
		// its completion evidence keeps arriving on this same thread via
		// plain by_thread lookups, not through adoption.
		if p.PresentMode == present.ModeUnknown {
			d.store.DeleteByThread(ev.Header.ThreadID)
		}
		return
	}

	p.FinalState = present.StateDiscarded
	d.store.DeleteByThread(ev.Header.ThreadID)
	d.store.Complete(id)
}

// simpleRuntimePresentStop implements spec §9 "Simple mode": RuntimeStop
// always completes the present immediately, regardless of result.
func (d *Dispatcher) simpleRuntimePresentStop(ev trace.RawEvent) {
	id, ok := d.store.ByThread(ev.Header.ThreadID)
	if !ok {
		return
	}
	p, ok := d.store.Get(id)
	if !ok {
		d.store.DeleteByThread(ev.Header.ThreadID)
		return
	}

	schema, ok := d.resolve("simpleRuntimePresentStop", ev)
	var result uint32
	if ok {
		result, _ = field[uint32](d, "simpleRuntimePresentStop", schema, ev, fieldResult)
	}

	p.TimeTaken = ev.Header.TimestampQPC - p.QPCTime
	if succeeded(result) && result != resultOccluded && result != resultModeChangeInProgress && result != resultNoDesktopAccess {
		p.FinalState = present.StatePresented
	} else {
		p.FinalState = present.StateDiscarded
	}
	d.store.DeleteByThread(ev.Header.ThreadID)
	d.store.Complete(id)
}
