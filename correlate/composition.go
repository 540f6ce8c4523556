// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package correlate

import (
	"github.com/tinyrecon/presentmon/present"
	"github.com/tinyrecon/presentmon/trace"
)

// compositionTokenCreated implements spec §4.3 Composition token-created.
func (d *Dispatcher) compositionTokenCreated(ev trace.RawEvent) {
	schema, ok := d.resolve("compositionTokenCreated", ev)
	if !ok {
		return
	}
	luid, ok := field[uint64](d, "compositionTokenCreated", schema, ev, fieldSurfaceLUID)
	if !ok {
		return
	}
	presentCount, ok := field[uint64](d, "compositionTokenCreated", schema, ev, fieldPresentCount)
	if !ok {
		return
	}
	bindID, ok := field[uint32](d, "compositionTokenCreated", schema, ev, fieldBindID)
	if !ok {
		return
	}

	p := d.store.FindOrCreateByThread(ev.Header)
	if p.SeenCompositionEvents {
		d.store.DiscardThread(ev.Header.ThreadID)
		p = d.store.FindOrCreateByThread(ev.Header)
	}

	setMode(d.store, p, present.ModeComposedFlip)
	p.SeenCompositionEvents = true
	key := present.CompositionTokenKey{SurfaceLUID: luid, PresentCount: presentCount, BindID: bindID}
	p.CompositionTokenKey = key
	p.HasCompositionKey = true

	d.store.SetByCompositionKey(key, p.ID())
}

// compositionTokenStateChanged implements spec §4.3 Composition
// token-state-changed.
func (d *Dispatcher) compositionTokenStateChanged(ev trace.RawEvent) {
	schema, ok := d.resolve("compositionTokenStateChanged", ev)
	if !ok {
		return
	}
	luid, ok := field[uint64](d, "compositionTokenStateChanged", schema, ev, fieldSurfaceLUID)
	if !ok {
		return
	}
	presentCount, ok := field[uint64](d, "compositionTokenStateChanged", schema, ev, fieldPresentCount)
	if !ok {
		return
	}
	bindID, ok := field[uint32](d, "compositionTokenStateChanged", schema, ev, fieldBindID)
	if !ok {
		return
	}
	newState, ok := field[uint32](d, "compositionTokenStateChanged", schema, ev, fieldNewState)
	if !ok {
		return
	}

	key := present.CompositionTokenKey{SurfaceLUID: luid, PresentCount: presentCount, BindID: bindID}
	id, ok := d.store.ByCompositionKey(key)
	if !ok {
		return
	}
	p, ok := d.store.Get(id)
	if !ok {
		return
	}

	switch present.TokenState(newState) {
	case present.TokenStateInFrame:
		if p.Hwnd != 0 {
			if cur, ok := d.store.ByLastWindow(p.Hwnd); !ok {
				d.store.SetByLastWindow(p.Hwnd, id)
			} else if cur != id {
				if dp, ok := d.store.Get(cur); ok {
					dp.FinalState = present.StateDiscarded
				}
				d.store.SetByLastWindow(p.Hwnd, id)
			}
		}
		if independentFlip, ok := field[uint32](d, "compositionTokenStateChanged", schema, ev, fieldIndependentFlip); ok {
			if independentFlip != 0 && p.PresentMode == present.ModeComposedFlip {
				setMode(d.store, p, present.ModeHardwareIndependentFlip)
			}
		}

	case present.TokenStateConfirmed:
		if p.FinalState == present.StateUnknown {
			if p.PresentFlags.Has(present.FlagDoNotSequence) {
				p.FinalState = present.StateDiscarded
			} else {
				p.FinalState = present.StatePresented
			}
		}
		if p.Hwnd != 0 {
			d.store.DeleteByLastWindow(p.Hwnd)
		}

	case present.TokenStateRetired:
		p.ScreenTime = ev.Header.TimestampQPC

	case present.TokenStateDiscarded:
		d.store.DeleteByCompositionKey(key)
		if p.FinalState == present.StateUnknown || p.ScreenTime == 0 {
			p.FinalState = present.StateDiscarded
		}
		d.store.Complete(id)
	}
}
