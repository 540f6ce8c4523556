// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package correlate

import (
	"github.com/tinyrecon/presentmon/present"
	"github.com/tinyrecon/presentmon/trace"
)

// kernelBlitStart implements spec §4.3 Kernel blit-start.
func (d *Dispatcher) kernelBlitStart(ev trace.RawEvent) {
	schema, ok := d.resolve("kernelBlitStart", ev)
	if !ok {
		return
	}
	hwnd, ok := field[uint64](d, "kernelBlitStart", schema, ev, fieldHwnd)
	if !ok {
		return
	}
	redirected, ok := field[uint32](d, "kernelBlitStart", schema, ev, fieldRedirected)
	if !ok {
		return
	}

	p := d.store.FindOrCreateByThread(ev.Header)
	if p.PresentMode != present.ModeUnknown {
		d.store.DiscardThread(ev.Header.ThreadID)
		p = d.store.FindOrCreateByThread(ev.Header)
	}

	p.Hwnd = hwnd
	if redirected != 0 {
		setMode(d.store, p, present.ModeComposedCopyCPUGDI)
		p.SupportsTearing = false
	} else {
		setMode(d.store, p, present.ModeHardwareLegacyCopyToFrontBuffer)
		p.SupportsTearing = true
	}
}

// kernelFlipStart implements spec §4.3 Kernel flip-start.
func (d *Dispatcher) kernelFlipStart(ev trace.RawEvent) {
	schema, ok := d.resolve("kernelFlipStart", ev)
	if !ok {
		return
	}
	flipInterval, ok := field[int32](d, "kernelFlipStart", schema, ev, fieldFlipInterval)
	if !ok {
		return
	}
	mmio, ok := field[uint32](d, "kernelFlipStart", schema, ev, fieldMMIO)
	if !ok {
		return
	}

	p := d.store.FindOrCreateByThread(ev.Header)
	if p.QueueSubmitSequence != 0 || p.SeenKernelPresent {
		d.store.DiscardThread(ev.Header.ThreadID)
		p = d.store.FindOrCreateByThread(ev.Header)
	}
	if p.PresentMode != present.ModeUnknown {
		// MPO repeats the flip event once per plane; only the first matters.
		return
	}

	p.MMIO = mmio != 0
	setMode(d.store, p, present.ModeHardwareLegacyFlip)
	if p.SyncInterval == -1 {
		p.SyncInterval = flipInterval
	}
	if !p.MMIO {
		p.SupportsTearing = flipInterval == 0
	}

	if ev.Header.ThreadID == d.store.DWMThreadID() {
		p.DependentPresents = append(p.DependentPresents, d.store.TakeDWMWaiting()...)
		d.store.ResetDWMThreadID()
	}
}
