// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package correlate

import (
	"github.com/tinyrecon/presentmon/present"
	"github.com/tinyrecon/presentmon/trace"
)

// kernelQueueSubmit implements spec §4.3 Kernel queue-submit.
func (d *Dispatcher) kernelQueueSubmit(ev trace.RawEvent) {
	schema, ok := d.resolve("kernelQueueSubmit", ev)
	if !ok {
		return
	}
	packetType, ok := field[uint32](d, "kernelQueueSubmit", schema, ev, fieldPacketType)
	if !ok {
		return
	}
	submitSequence, ok := field[uint32](d, "kernelQueueSubmit", schema, ev, fieldSubmitSequence)
	if !ok {
		return
	}
	context, ok := field[uint64](d, "kernelQueueSubmit", schema, ev, fieldContext)
	if !ok {
		return
	}
	isPresent, ok := field[uint32](d, "kernelQueueSubmit", schema, ev, fieldIsPresentPacket)
	if !ok {
		return
	}
	supportsKernelPresentEvent, ok := field[uint32](d, "kernelQueueSubmit", schema, ev, fieldSupportsKernelPresent)
	if !ok {
		return
	}

	if supportsKernelPresentEvent == 0 {
		if id, ok := d.store.ByBltContext(context); ok {
			if p, ok := d.store.Get(id); ok {
				if p.PresentMode == present.ModeHardwareLegacyCopyToFrontBuffer {
					p.SeenKernelPresent = true
				}
				if p.ScreenTime != 0 {
					d.store.Complete(id)
				}
			}
			d.store.DeleteByBltContext(context)
		}
	}

	if packetType != packetTypeMMIOFlip && packetType != packetTypeSoftware && isPresent == 0 {
		return
	}

	id, ok := d.store.ByThread(ev.Header.ThreadID)
	if !ok {
		return
	}
	p, ok := d.store.Get(id)
	if !ok || p.QueueSubmitSequence != 0 {
		return
	}

	p.QueueSubmitSequence = submitSequence
	d.store.SetBySubmitSequence(submitSequence, id)
	if p.PresentMode == present.ModeHardwareLegacyCopyToFrontBuffer && supportsKernelPresentEvent == 0 {
		d.store.SetByBltContext(context, id)
	}
}

// kernelQueueComplete implements spec §4.3 Kernel queue-complete.
func (d *Dispatcher) kernelQueueComplete(ev trace.RawEvent) {
	schema, ok := d.resolve("kernelQueueComplete", ev)
	if !ok {
		return
	}
	seq, ok := field[uint32](d, "kernelQueueComplete", schema, ev, fieldSubmitSequence)
	if !ok {
		return
	}

	id, ok := d.store.BySubmitSequence(seq)
	if !ok {
		return
	}
	p, ok := d.store.Get(id)
	if !ok {
		return
	}

	if p.PresentMode == present.ModeHardwareLegacyCopyToFrontBuffer ||
		(p.PresentMode == present.ModeHardwareLegacyFlip && !p.MMIO) {
		p.ReadyTime = ev.Header.TimestampQPC
		p.ScreenTime = ev.Header.TimestampQPC
		p.FinalState = present.StatePresented

		// Without a kernel-present event we can't yet tell a windowed blt
		// (which composition will complete later) from a fullscreen one, so
		// completion is deferred until then (spec §4.3).
		if p.SeenKernelPresent || p.PresentMode != present.ModeHardwareLegacyCopyToFrontBuffer {
			d.store.Complete(id)
		}
	}
}

// kernelMMIOFlip implements spec §4.3 Kernel mmio-flip.
func (d *Dispatcher) kernelMMIOFlip(ev trace.RawEvent) {
	schema, ok := d.resolve("kernelMMIOFlip", ev)
	if !ok {
		return
	}
	seq, ok := field[uint32](d, "kernelMMIOFlip", schema, ev, fieldSubmitSequence)
	if !ok {
		return
	}
	flags, ok := field[uint32](d, "kernelMMIOFlip", schema, ev, fieldFlags)
	if !ok {
		return
	}

	id, ok := d.store.BySubmitSequence(seq)
	if !ok {
		return
	}
	p, ok := d.store.Get(id)
	if !ok {
		return
	}

	p.ReadyTime = ev.Header.TimestampQPC
	if p.PresentMode == present.ModeComposedFlip {
		setMode(d.store, p, present.ModeHardwareIndependentFlip)
	}
	// Immediate (tearing) flips are the only ones this event alone can
	// resolve: everything else still needs the sync-DPC (or MPO status)
	// event to learn the real screen time.
	if flags&flipFlagImmediate != 0 {
		p.FinalState = present.StatePresented
		p.ScreenTime = ev.Header.TimestampQPC
		p.SupportsTearing = true
		if p.PresentMode == present.ModeHardwareLegacyFlip {
			d.store.Complete(id)
		}
	}
}

// kernelMMIOFlipMPO implements spec §4.3 Kernel mmio-flip-mpo.
func (d *Dispatcher) kernelMMIOFlipMPO(ev trace.RawEvent) {
	schema, ok := d.resolve("kernelMMIOFlipMPO", ev)
	if !ok {
		return
	}
	seq, ok := field[uint32](d, "kernelMMIOFlipMPO", schema, ev, fieldSubmitSequence)
	if !ok {
		return
	}
	status, ok := field[uint32](d, "kernelMMIOFlipMPO", schema, ev, fieldStatusAfterFlip)
	if !ok {
		return
	}

	id, ok := d.store.BySubmitSequence(seq)
	if !ok {
		return
	}
	p, ok := d.store.Get(id)
	if !ok {
		return
	}

	if p.ReadyTime == 0 {
		p.ReadyTime = ev.Header.TimestampQPC
	}
	if p.PresentMode == present.ModeHardwareIndependentFlip || p.PresentMode == present.ModeComposedFlip {
		setMode(d.store, p, present.ModeHardwareComposedIndependentFlip)
	}

	if status == flipStatusWaitVSync || status == flipStatusWaitHSync {
		// The sync-DPC handler will finish the job.
		return
	}

	p.SupportsTearing = true
	p.FinalState = present.StatePresented
	if status == flipStatusComplete {
		p.ScreenTime = ev.Header.TimestampQPC
	}
	if p.PresentMode == present.ModeHardwareLegacyFlip {
		d.store.Complete(id)
	}
}

// kernelSyncDPC implements spec §4.3 Kernel sync-DPC (VSync/HSync).
func (d *Dispatcher) kernelSyncDPC(ev trace.RawEvent) {
	schema, ok := d.resolve("kernelSyncDPC", ev)
	if !ok {
		return
	}
	seq, ok := field[uint32](d, "kernelSyncDPC", schema, ev, fieldSubmitSequence)
	if !ok {
		return
	}

	id, ok := d.store.BySubmitSequence(seq)
	if !ok {
		return
	}
	p, ok := d.store.Get(id)
	if !ok {
		return
	}

	p.ScreenTime = ev.Header.TimestampQPC
	p.FinalState = present.StatePresented
	if p.PresentMode == present.ModeHardwareLegacyFlip {
		d.store.Complete(id)
	}
}
