// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package correlate

import (
	"github.com/tinyrecon/presentmon/present"
	"github.com/tinyrecon/presentmon/trace"
)

// compositorGetPresentHistory implements spec §4.3 Compositor
// get-present-history.
func (d *Dispatcher) compositorGetPresentHistory(ev trace.RawEvent) {
	for _, id := range d.store.AllLastWindow() {
		p, ok := d.store.Get(id)
		if !ok {
			continue
		}
		if p.PresentMode != present.ModeComposedCopyGPUGDI && p.PresentMode != present.ModeComposedCopyCPUGDI {
			continue
		}
		p.DWMNotified = true
		d.store.PushDWMWaiting(id)
	}
	d.store.ClearLastWindow()
}

// compositorSchedulePresentStart implements spec §4.3 Compositor
// schedule-present-start.
func (d *Dispatcher) compositorSchedulePresentStart(ev trace.RawEvent) {
	d.store.SetDWMThreadID(ev.Header.ThreadID)
}

// compositorFlipChain implements spec §4.3 Compositor flip-chain.
func (d *Dispatcher) compositorFlipChain(ev trace.RawEvent) {
	schema, ok := d.resolve("compositorFlipChain", ev)
	if !ok {
		return
	}
	flipChain, ok := field[uint32](d, "compositorFlipChain", schema, ev, fieldFlipChain)
	if !ok {
		return
	}
	serial, ok := field[uint32](d, "compositorFlipChain", schema, ev, fieldSerial)
	if !ok {
		return
	}
	hwnd, ok := field[uint64](d, "compositorFlipChain", schema, ev, fieldHwnd)
	if !ok {
		return
	}

	token := uint64(flipChain)<<32 | uint64(serial)
	id, ok := d.store.ByLegacyBlitToken(token)
	if !ok {
		return
	}
	p, ok := d.store.Get(id)
	if !ok {
		d.store.DeleteByLegacyBlitToken(token)
		return
	}

	d.store.SetByLastWindow(hwnd, id)
	p.DWMNotified = true
	d.store.DeleteByLegacyBlitToken(token)
}

// compositorScheduleSurfaceUpdate implements spec §4.3 Compositor
// schedule-surface-update.
func (d *Dispatcher) compositorScheduleSurfaceUpdate(ev trace.RawEvent) {
	schema, ok := d.resolve("compositorScheduleSurfaceUpdate", ev)
	if !ok {
		return
	}
	luid, ok := field[uint64](d, "compositorScheduleSurfaceUpdate", schema, ev, fieldSurfaceLUID)
	if !ok {
		return
	}
	presentCount, ok := field[uint64](d, "compositorScheduleSurfaceUpdate", schema, ev, fieldPresentCount)
	if !ok {
		return
	}
	bindID, ok := field[uint32](d, "compositorScheduleSurfaceUpdate", schema, ev, fieldBindID)
	if !ok {
		return
	}

	key := present.CompositionTokenKey{SurfaceLUID: luid, PresentCount: presentCount, BindID: bindID}
	if id, ok := d.store.ByCompositionKey(key); ok {
		if p, ok := d.store.Get(id); ok {
			p.DWMNotified = true
		}
	}
}
