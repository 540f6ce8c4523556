// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package correlate implements the Correlation State Machine (spec §4.3):
// one handler per provider-event kind, each mutating a store.Store and
// possibly transitioning presents onto the Completion Queue. Dispatcher is
// the single-threaded event loop that routes a trace.RawEvent to its
// handler (spec §2, §5).
package correlate

import (
	"go.uber.org/zap"

	"github.com/tinyrecon/presentmon/metadata"
	"github.com/tinyrecon/presentmon/present"
	"github.com/tinyrecon/presentmon/process"
	"github.com/tinyrecon/presentmon/store"
	"github.com/tinyrecon/presentmon/trace"
)

// EventKind identifies one of the logical events spec §4.3 names a handler
// for. It is the dispatcher's routing key, one level more specific than
// trace.Provider (a single provider emits several EventKinds).
type EventKind uint8

const (
	EventUnknown EventKind = iota
	EventRuntimePresentStart
	EventRuntimePresentStop
	EventKernelBlitStart
	EventKernelFlipStart
	EventKernelQueueSubmit
	EventKernelQueueComplete
	EventKernelMMIOFlip
	EventKernelMMIOFlipMPO
	EventKernelSyncDPC
	EventKernelSubmitPresentHistory
	EventKernelPropagatePresentHistory
	EventKernelPresentInfo
	EventCompositionTokenCreated
	EventCompositionTokenStateChanged
	EventCompositorGetPresentHistory
	EventCompositorSchedulePresentStart
	EventCompositorFlipChain
	EventCompositorScheduleSurfaceUpdate
	EventProcessStart
	EventProcessEnd
)

// classify maps a RawEvent's header onto the EventKind its provider/event-id
// pair represents. The mapping from (provider, numeric event id) to
// semantic event name lives with the trace-session layer in a full
// implementation (spec §1 scope: "only their interfaces with the core are
// specified"); Classifier lets callers supply it.
type Classifier func(trace.Header) EventKind

// Dispatcher is the event-driven state machine of spec §2: it owns no
// presents itself (that's store.Store's job) but wires a RawEvent to the
// handler for its EventKind, decoding named fields through a
// metadata.Cache along the way.
type Dispatcher struct {
	store   *store.Store
	cache   *metadata.Cache
	tracker *process.Tracker
	log     *zap.Logger

	classify Classifier
	simple   bool
}

// Config configures a Dispatcher.
type Config struct {
	Store      *store.Store
	Cache      *metadata.Cache
	Tracker    *process.Tracker
	Classifier Classifier
	Log        *zap.Logger

	// SimpleMode collapses the state machine to the two transitions of spec
	// §9 "Simple mode": only runtime start/stop are handled, and
	// RuntimeStop always completes the present immediately.
	SimpleMode bool
}

// New constructs a Dispatcher.
func New(cfg Config) *Dispatcher {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		store:    cfg.Store,
		cache:    cfg.Cache,
		tracker:  cfg.Tracker,
		log:      log,
		classify: cfg.Classifier,
		simple:   cfg.SimpleMode,
	}
}

// Consume routes ev to its handler (spec §2: "RawEvent -> Dispatcher ->
// Handler_k(Store)"). Unrecognized event kinds and decode failures are
// silently ignored per spec §7 — the dispatcher never aborts on malformed
// or unexpected input.
func (d *Dispatcher) Consume(ev trace.RawEvent) {
	if d.classify == nil {
		return
	}
	kind := d.classify(ev.Header)

	if d.simple {
		d.dispatchSimple(kind, ev)
		return
	}
	d.dispatchFull(kind, ev)
}

func (d *Dispatcher) dispatchFull(kind EventKind, ev trace.RawEvent) {
	switch kind {
	case EventRuntimePresentStart:
		d.runtimePresentStart(ev)
	case EventRuntimePresentStop:
		d.runtimePresentStop(ev)
	case EventKernelBlitStart:
		d.kernelBlitStart(ev)
	case EventKernelFlipStart:
		d.kernelFlipStart(ev)
	case EventKernelQueueSubmit:
		d.kernelQueueSubmit(ev)
	case EventKernelQueueComplete:
		d.kernelQueueComplete(ev)
	case EventKernelMMIOFlip:
		d.kernelMMIOFlip(ev)
	case EventKernelMMIOFlipMPO:
		d.kernelMMIOFlipMPO(ev)
	case EventKernelSyncDPC:
		d.kernelSyncDPC(ev)
	case EventKernelSubmitPresentHistory:
		d.kernelSubmitPresentHistory(ev)
	case EventKernelPropagatePresentHistory:
		d.kernelPropagatePresentHistory(ev)
	case EventKernelPresentInfo:
		d.kernelPresentInfo(ev)
	case EventCompositionTokenCreated:
		d.compositionTokenCreated(ev)
	case EventCompositionTokenStateChanged:
		d.compositionTokenStateChanged(ev)
	case EventCompositorGetPresentHistory:
		d.compositorGetPresentHistory(ev)
	case EventCompositorSchedulePresentStart:
		d.compositorSchedulePresentStart(ev)
	case EventCompositorFlipChain:
		d.compositorFlipChain(ev)
	case EventCompositorScheduleSurfaceUpdate:
		d.compositorScheduleSurfaceUpdate(ev)
	case EventProcessStart:
		d.processStart(ev)
	case EventProcessEnd:
		d.processEnd(ev)
	}
}

// dispatchSimple implements spec §9 "Simple mode": the state machine
// collapses to two transitions, offered as a distinct dispatch table
// instead of conditionals scattered through every handler.
func (d *Dispatcher) dispatchSimple(kind EventKind, ev trace.RawEvent) {
	switch kind {
	case EventRuntimePresentStart:
		d.runtimePresentStart(ev)
	case EventRuntimePresentStop:
		d.simpleRuntimePresentStop(ev)
	case EventProcessStart:
		d.processStart(ev)
	case EventProcessEnd:
		d.processEnd(ev)
	}
}

// TickLostEvents forwards a periodic health signal to the process tracker
// (spec §6: tick_lost_events).
func (d *Dispatcher) TickLostEvents(lost trace.LostEvents) {
	d.tracker.Tick(lost.Events, lost.Buffers)
}

// decodeMiss centralizes the "log at verbose level and move on" policy spec
// §4.1/§7 require for absent or unparseable fields.
func (d *Dispatcher) decodeMiss(handler string, err error) {
	d.log.Debug("correlate: decode miss", zap.String("handler", handler), zap.Error(err))
}

// setMode is a small shim so every handler below sets PresentMode through
// store.Store.SetPresentMode (which keeps §12's per-swap-chain mode
// bookkeeping current) instead of writing the field directly.
func setMode(s *store.Store, p *present.Present, mode present.Mode) {
	s.SetPresentMode(p, mode)
}
