// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package trace defines the upstream interface of the present correlation
// engine: the RawEvent record the trace-session layer feeds in, and the
// provider configuration that layer reads to know which events to collect.
// Starting and stopping the OS trace session itself is out of scope (spec
// §1) — package trace only describes the shape of what crosses that
// boundary.
package trace

// Provider identifies which of the recognized event sources (spec §6) a
// RawEvent came from. The dispatcher in package correlate does not route on
// Provider directly: a caller-supplied Classifier maps each header to an
// EventKind, and the dispatcher picks the handler by EventKind.
type Provider uint8

const (
	ProviderUnknown Provider = iota
	ProviderDXGI
	ProviderD3D9
	ProviderDXGKernel
	ProviderWin32KComposition
	ProviderDWMCompositor
	ProviderNTProcess
	// ProviderLegacyBlit and its siblings cover the Vista-era kernel event
	// shapes that predate DXGKRNL's unified packet model but are still
	// surfaced through the same DXGKRNL provider GUID at runtime; they are
	// named separately here so a Config can list them. Package correlate has
	// no handlers specific to them, and DefaultConfig does not include them.
	ProviderLegacyBlit
	ProviderLegacyFlip
	ProviderLegacyPresentHistory
	ProviderLegacyQueue
	ProviderLegacyVSync
	ProviderLegacyMMIO
)

// Header is the portion of a RawEvent that is common to every provider: who
// emitted it, when, and on what thread/process (spec §6).
type Header struct {
	ProviderGUID [16]byte
	Provider     Provider
	EventID      uint16
	Version      uint8
	Opcode       uint8
	Level        uint8
	Flags        uint16
	ThreadID     uint32
	ProcessID    uint32
	TimestampQPC uint64
}

// RawEvent is a single decoded-header, undecoded-payload provider event, as
// produced by the trace-session layer and consumed by correlate.Dispatcher.
type RawEvent struct {
	Header     Header
	Payload    []byte
	Is32BitPtr bool // honored when decoding pointer-typed fields (spec §4.1)
}

// ProviderConfig is the per-provider keyword/level filter a caller passes to
// ScheduleSources. The fields are opaque to the core; they are round-tripped
// to whatever maps Providers onto real OS provider IDs.
type ProviderConfig struct {
	Provider Provider
	Keywords uint64
	Level    uint8
}

// Config enumerates the providers and filters a caller wants the trace
// session to collect. The core declares, via ScheduleSources, which kinds it
// is prepared to handle; the trace-session layer maps them to OS provider
// IDs (spec §6). Config itself carries no behavior — it is a plain
// declaration: struct literals, not a builder or file format.
type Config struct {
	Providers   []ProviderConfig
	SimpleMode  bool // declares spec §9 "Simple mode"; an Engine's mode is set by presentmon.Options.SimpleMode, not read from here
}

// LostEvents is the periodic health signal from TickLostEvents (spec §6):
// counters of events and buffers lost since the last call.
type LostEvents struct {
	Events  uint32
	Buffers uint32
}
