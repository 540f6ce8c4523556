// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package store

import (
	"go.uber.org/zap"

	"github.com/tinyrecon/presentmon/present"
)

// The accessors below give package correlate's handlers the per-key
// lookup/insert/erase operations spec §3's index table describes, without
// exposing the maps themselves — every mutation goes through Store so
// invariant 3 (a Present appears in at most one entry of any index) stays
// enforceable in one place.

// ByThread returns the present in progress on tid, if any.
func (s *Store) ByThread(tid uint32) (present.ID, bool) {
	id, ok := s.idx.byThread[tid]
	return id, ok
}

// SetByThread maps tid to id, displacing any existing mapping silently
// (used by the runtime-start handler, spec §4.2 create_runtime_present).
func (s *Store) SetByThread(tid uint32, id present.ID) {
	s.idx.byThread[tid] = id
}

// DeleteByThread removes tid's mapping, if any.
func (s *Store) DeleteByThread(tid uint32) {
	delete(s.idx.byThread, tid)
}

// DiscardThread implements the "stuck present" policy (spec §4.3, §7, §9
// Open Question): the present in progress on tid is abandoned — erased from
// by_thread only, left to whatever other indexes still reference it — and
// StuckPresents is incremented so a caller can watch the rate. The
// abandoned present may never reach the Completion Queue; that is
// deliberate.
func (s *Store) DiscardThread(tid uint32) {
	if _, ok := s.idx.byThread[tid]; ok {
		delete(s.idx.byThread, tid)
		s.StuckPresents++
		s.log.Debug("store: discarded stuck present", zap.Uint32("threadID", tid))
	}
}

// BySubmitSequence returns the present keyed by a queue submit sequence.
func (s *Store) BySubmitSequence(seq uint32) (present.ID, bool) {
	id, ok := s.idx.bySubmitSequence[seq]
	return id, ok
}

func (s *Store) SetBySubmitSequence(seq uint32, id present.ID) {
	s.idx.bySubmitSequence[seq] = id
}

func (s *Store) DeleteBySubmitSequence(seq uint32) {
	delete(s.idx.bySubmitSequence, seq)
}

// ByToken returns the present keyed by a kernel present-history token.
func (s *Store) ByToken(token uint64) (present.ID, bool) {
	id, ok := s.idx.byToken[token]
	return id, ok
}

func (s *Store) SetByToken(token uint64, id present.ID) {
	s.idx.byToken[token] = id
}

func (s *Store) DeleteByToken(token uint64) {
	delete(s.idx.byToken, token)
}

// ByCompositionKey returns the present keyed by a Win32K composition token.
func (s *Store) ByCompositionKey(key present.CompositionTokenKey) (present.ID, bool) {
	id, ok := s.idx.byCompositionKey[key]
	return id, ok
}

func (s *Store) SetByCompositionKey(key present.CompositionTokenKey, id present.ID) {
	s.idx.byCompositionKey[key] = id
}

func (s *Store) DeleteByCompositionKey(key present.CompositionTokenKey) {
	delete(s.idx.byCompositionKey, key)
}

// ByLegacyBlitToken returns the present keyed by a Vista-style blit token.
func (s *Store) ByLegacyBlitToken(token uint64) (present.ID, bool) {
	id, ok := s.idx.byLegacyBlit[token]
	return id, ok
}

func (s *Store) SetByLegacyBlitToken(token uint64, id present.ID) {
	s.idx.byLegacyBlit[token] = id
}

func (s *Store) DeleteByLegacyBlitToken(token uint64) {
	delete(s.idx.byLegacyBlit, token)
}

// ByLastWindow returns the most-recently targeted present for hwnd.
func (s *Store) ByLastWindow(hwnd uint64) (present.ID, bool) {
	id, ok := s.idx.byLastWindow[hwnd]
	return id, ok
}

func (s *Store) SetByLastWindow(hwnd uint64, id present.ID) {
	s.idx.byLastWindow[hwnd] = id
}

func (s *Store) DeleteByLastWindow(hwnd uint64) {
	delete(s.idx.byLastWindow, hwnd)
}

// ClearLastWindow empties by_last_window entirely (spec §4.3, Compositor
// get-present-history: "Clear by_last_window").
func (s *Store) ClearLastWindow() {
	s.idx.byLastWindow = make(map[uint64]present.ID)
}

// AllLastWindow returns a snapshot of every (hwnd, present) pair currently
// in by_last_window, for handlers that walk the whole index (spec §4.3,
// Compositor get-present-history).
func (s *Store) AllLastWindow() map[uint64]present.ID {
	out := make(map[uint64]present.ID, len(s.idx.byLastWindow))
	for k, v := range s.idx.byLastWindow {
		out[k] = v
	}
	return out
}

// ByBltContext returns the present keyed by a GPU context handle (legacy
// blt-without-kernel-present disambiguation).
func (s *Store) ByBltContext(ctx uint64) (present.ID, bool) {
	id, ok := s.idx.byBltContext[ctx]
	return id, ok
}

func (s *Store) SetByBltContext(ctx uint64, id present.ID) {
	s.idx.byBltContext[ctx] = id
}

func (s *Store) DeleteByBltContext(ctx uint64) {
	delete(s.idx.byBltContext, ctx)
}

// PushDWMWaiting appends id to the list of presents that will ride along
// with the compositor's next flip (spec §3, dwm_waiting).
func (s *Store) PushDWMWaiting(id present.ID) {
	s.idx.dwmWaiting = append(s.idx.dwmWaiting, id)
}

// TakeDWMWaiting empties dwm_waiting and returns everything it held, in
// order — used when a kernel flip on the DWM thread adopts the whole list
// as dependents of the DWM's own present (spec §4.3, Kernel flip-start).
func (s *Store) TakeDWMWaiting() []present.ID {
	out := s.idx.dwmWaiting
	s.idx.dwmWaiting = nil
	return out
}
