// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package correlate

import (
	"github.com/tinyrecon/presentmon/present"
	"github.com/tinyrecon/presentmon/trace"
)

// kernelSubmitPresentHistory implements spec §4.3 Kernel
// submit-present-history.
func (d *Dispatcher) kernelSubmitPresentHistory(ev trace.RawEvent) {
	schema, ok := d.resolve("kernelSubmitPresentHistory", ev)
	if !ok {
		return
	}
	token, ok := field[uint64](d, "kernelSubmitPresentHistory", schema, ev, fieldToken)
	if !ok {
		return
	}
	tokenData, ok := field[uint64](d, "kernelSubmitPresentHistory", schema, ev, fieldTokenData)
	if !ok {
		return
	}
	hint, ok := field[uint32](d, "kernelSubmitPresentHistory", schema, ev, fieldModeHint)
	if !ok {
		return
	}
	if hint == modelRedirectedGDI {
		return
	}
	knownMode, _ := modeFromHint(hint)

	p := d.store.FindOrCreateByThread(ev.Header)
	if p.TokenPtr != 0 {
		d.store.DiscardThread(ev.Header.ThreadID)
		p = d.store.FindOrCreateByThread(ev.Header)
	}

	p.ReadyTime = 0
	p.ScreenTime = 0
	p.SupportsTearing = false
	p.FinalState = present.StateUnknown
	p.TokenPtr = token

	switch {
	case p.PresentMode == present.ModeHardwareLegacyCopyToFrontBuffer:
		setMode(d.store, p, present.ModeComposedCopyGPUGDI)
	case p.PresentMode == present.ModeUnknown:
		if knownMode == present.ModeComposedCompositionAtlas {
			setMode(d.store, p, present.ModeComposedCompositionAtlas)
		} else {
			// No Win32K events means no way to distinguish; assume flip
			// rather than let the present get stuck (spec §9 "robustness").
			setMode(d.store, p, present.ModeComposedFlip)
		}
	case p.PresentMode == present.ModeComposedCopyCPUGDI:
		if tokenData == 0 {
			d.store.PushDWMWaiting(p.ID())
		} else {
			d.store.SetByLegacyBlitToken(tokenData, p.ID())
		}
	}

	d.store.SetByToken(token, p.ID())
}

// kernelPropagatePresentHistory implements spec §4.3 Kernel
// propagate-present-history.
func (d *Dispatcher) kernelPropagatePresentHistory(ev trace.RawEvent) {
	schema, ok := d.resolve("kernelPropagatePresentHistory", ev)
	if !ok {
		return
	}
	token, ok := field[uint64](d, "kernelPropagatePresentHistory", schema, ev, fieldToken)
	if !ok {
		return
	}

	id, ok := d.store.ByToken(token)
	if !ok {
		return
	}
	p, ok := d.store.Get(id)
	if !ok {
		d.store.DeleteByToken(token)
		return
	}

	if p.ReadyTime == 0 {
		p.ReadyTime = ev.Header.TimestampQPC
	} else if ev.Header.TimestampQPC < p.ReadyTime {
		p.ReadyTime = ev.Header.TimestampQPC
	}

	if p.PresentMode == present.ModeComposedCompositionAtlas ||
		(p.PresentMode == present.ModeComposedFlip && !p.SeenCompositionEvents) {
		d.store.PushDWMWaiting(id)
	}
	if p.PresentMode == present.ModeComposedCopyGPUGDI {
		d.store.SetByLastWindow(p.Hwnd, id)
	}

	d.store.DeleteByToken(token)
}

// kernelPresentInfo implements spec §4.3 Kernel present-info.
func (d *Dispatcher) kernelPresentInfo(ev trace.RawEvent) {
	id, ok := d.store.ByThread(ev.Header.ThreadID)
	if !ok {
		return
	}
	p, ok := d.store.Get(id)
	if !ok {
		d.store.DeleteByThread(ev.Header.ThreadID)
		return
	}

	p.SeenKernelPresent = true

	if p.Hwnd == 0 {
		if schema, ok := d.resolve("kernelPresentInfo", ev); ok {
			if hwnd, ok := field[uint64](d, "kernelPresentInfo", schema, ev, fieldHwnd); ok {
				p.Hwnd = hwnd
			}
		}
	}

	if p.PresentMode == present.ModeHardwareLegacyCopyToFrontBuffer && p.ScreenTime != 0 {
		d.store.Complete(id)
	}

	if ev.Header.ThreadID != p.ThreadID {
		if p.TimeTaken == 0 {
			p.TimeTaken = ev.Header.TimestampQPC - p.QPCTime
		}
		p.WasBatched = true
		d.store.DeleteByThread(ev.Header.ThreadID)
	}
}
