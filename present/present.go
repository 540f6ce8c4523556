// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package present defines the data model for a single graphics present: the
// record that the correlation engine in package correlate assembles from raw
// provider events, and the enums that describe its lifecycle.
package present

// A Runtime identifies which graphics runtime issued a present call.
type Runtime uint8

const (
	RuntimeOther Runtime = iota
	RuntimeDXGI
	RuntimeD3D9
)

func (r Runtime) String() string {
	switch r {
	case RuntimeDXGI:
		return "DXGI"
	case RuntimeD3D9:
		return "D3D9"
	default:
		return "Other"
	}
}

// A Mode describes the mechanism the display pipeline used to get a
// present's pixels on screen.
type Mode uint8

const (
	ModeUnknown Mode = iota
	ModeHardwareLegacyFlip
	ModeHardwareLegacyCopyToFrontBuffer
	ModeHardwareDirectFlip
	ModeHardwareIndependentFlip
	ModeComposedFlip
	ModeComposedCopyGPUGDI
	ModeComposedCopyCPUGDI
	ModeComposedCompositionAtlas
	ModeHardwareComposedIndependentFlip
)

func (m Mode) String() string {
	switch m {
	case ModeHardwareLegacyFlip:
		return "HardwareLegacyFlip"
	case ModeHardwareLegacyCopyToFrontBuffer:
		return "HardwareLegacyCopyToFrontBuffer"
	case ModeHardwareDirectFlip:
		return "HardwareDirectFlip"
	case ModeHardwareIndependentFlip:
		return "HardwareIndependentFlip"
	case ModeComposedFlip:
		return "ComposedFlip"
	case ModeComposedCopyGPUGDI:
		return "ComposedCopyGpuGdi"
	case ModeComposedCopyCPUGDI:
		return "ComposedCopyCpuGdi"
	case ModeComposedCompositionAtlas:
		return "ComposedCompositionAtlas"
	case ModeHardwareComposedIndependentFlip:
		return "HardwareComposedIndependentFlip"
	default:
		return "Unknown"
	}
}

// FinalState is the terminal disposition of a Present once its lifecycle has
// ended.
type FinalState uint8

const (
	StateUnknown FinalState = iota
	StatePresented
	StateDiscarded
	StateError
)

func (s FinalState) String() string {
	switch s {
	case StatePresented:
		return "Presented"
	case StateDiscarded:
		return "Discarded"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// CompositionTokenKey identifies a Win32K present-history token: the triple
// a compositor token is uniquely keyed by (surface LUID, present count, bind
// ID). See spec §3, index by_composition_key.
type CompositionTokenKey struct {
	SurfaceLUID  uint64
	PresentCount uint64
	BindID       uint32
}

// TokenState is the new_state carried by a composition token-state-changed
// event. The integer values are bit-exact with the provider's wire encoding
// (spec §6).
type TokenState uint32

const (
	TokenStateInFrame    TokenState = 3
	TokenStateConfirmed  TokenState = 4
	TokenStateRetired    TokenState = 5
	TokenStateDiscarded  TokenState = 6
)

// PresentFlags is a bitfield decoded from the runtime present call. Only the
// bits the correlation engine inspects are named; others pass through
// unexamined.
type PresentFlags uint32

const (
	// FlagTest marks a test present; the event is skipped before any Present
	// is ever created for it (spec §3).
	FlagTest PresentFlags = 1 << iota
	// FlagDoNotSequence present flags suppress on-screen presentation; a
	// composed-flip present confirmed with this flag set discards instead of
	// presenting (spec §4.3, composition token-state-changed/Confirmed).
	FlagDoNotSequence
)

// Has reports whether f contains every bit in mask.
func (f PresentFlags) Has(mask PresentFlags) bool { return f&mask == mask }

// ID is an opaque, generational handle to a Present owned by a store.Store.
// Indexes hold IDs, never pointers, so a stale index entry can be detected
// and ignored instead of keeping a completed Present alive (spec §9, "arena
// + typed indexes").
type ID struct {
	index int32
	gen    uint32
}

// Valid reports whether id was ever issued by a store. It does not mean the
// Present is still live in the arena.
func (id ID) Valid() bool { return id.gen != 0 }

// NewID constructs an ID from its arena slot and generation. It exists for
// package store, which is the only allocator of IDs.
func NewID(index int32, gen uint32) ID { return ID{index, gen} }

// Index and Generation expose the components package store needs to address
// its arena; other packages should treat ID as opaque.
func (id ID) Index() int32     { return id.index }
func (id ID) Generation() uint32 { return id.gen }

// Present is one record per application present call (or per
// kernel-originated present where no runtime event was seen). See spec §3
// for the full field-by-field contract and invariants.
type Present struct {
	// Identity within the owning store's arena.
	id ID

	QPCTime   uint64
	ProcessID uint32
	ThreadID  uint32
	Runtime   Runtime

	SwapChainID  uint64
	SyncInterval int32
	PresentFlags PresentFlags
	Hwnd         uint64

	PresentMode Mode
	PlaneIndex  uint32

	QueueSubmitSequence uint32
	TokenPtr            uint64
	CompositionTokenKey CompositionTokenKey
	HasCompositionKey   bool

	TimeTaken  uint64
	ReadyTime  uint64
	ScreenTime uint64
	FinalState FinalState

	MMIO                 bool
	SupportsTearing      bool
	SeenKernelPresent    bool
	SeenCompositionEvents bool
	WasBatched           bool
	DWMNotified          bool
	Completed            bool

	// DependentPresents are other presents riding inside this one (e.g. app
	// presents a DWM frame carries). A tree: each dependent has exactly one
	// parent. Drained (truncated to nil) once complete() has finished fanning
	// completion out to them (spec §9).
	DependentPresents []ID
}

// ID returns the handle by which this Present is addressed in its owning
// store.
func (p *Present) ID() ID { return p.id }

// SetID is used only by package store when placing a Present into its arena.
func (p *Present) SetID(id ID) { p.id = id }

// Reset clears a Present back to its zero value in place, retaining the
// identity fields the arena slot assigned. Used by store.Store when it frees
// an arena slot (spec §9: "free the id; every index purge ignores stale
// ids").
func (p *Present) Reset() {
	id := p.id
	*p = Present{}
	p.id = id
}
