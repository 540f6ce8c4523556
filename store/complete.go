// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package store

import (
	"go.uber.org/zap"

	"github.com/tinyrecon/presentmon/present"
)

// Complete implements spec §4.2's complete(present), the central completion
// routine. It is iterative, not recursive (spec §9): completing a present
// can cascade into completing its dependents and any earlier presents still
// queued on the same swap chain, and all of that is processed off an
// explicit worklist so a pathological trace can't blow the stack.
func (s *Store) Complete(id present.ID) {
	s.completeQueue = append(s.completeQueue, id)
	for len(s.completeQueue) > 0 {
		next := s.completeQueue[0]
		s.completeQueue = s.completeQueue[1:]
		s.completeOne(next)
	}
}

func (s *Store) completeOne(id present.ID) {
	p, ok := s.arena.get(id)
	if !ok {
		// Stale index entry pointing at an already-freed present; nothing to do.
		return
	}
	if p.Completed {
		p.FinalState = present.StateError
		s.DoubleCompletions++
		s.log.Warn("store: double completion", zap.Uint32("processID", p.ProcessID), zap.Uint64("swapChainID", p.SwapChainID))
		return
	}

	// Step 2: fan completion out to dependents (spec §4.2).
	for _, dep := range p.DependentPresents {
		if dp, ok := s.arena.get(dep); ok {
			dp.ScreenTime = p.ScreenTime
			dp.FinalState = present.StatePresented
		}
		s.completeQueue = append(s.completeQueue, dep)
	}
	p.DependentPresents = nil

	// Step 3: remove from every index that might still reference this present.
	s.purgeIndexes(id, p)

	key := swapKey{p.ProcessID, p.SwapChainID}

	// Step 4: if this present reached the screen, any earlier present still
	// queued ahead of it on the same swap chain is completed first.
	if p.FinalState == present.StatePresented {
		for _, qid := range s.idx.byProcessSwap[key] {
			if qid == id {
				break
			}
			qp, ok := s.arena.get(qid)
			if !ok || qp.Completed {
				continue
			}
			if qp.FinalState == present.StateUnknown {
				qp.FinalState = present.StateDiscarded
			}
			s.completeQueue = append(s.completeQueue, qid)
		}
	}

	// Step 5: mark complete, then drain every consecutively-completed
	// present from the front of this swap chain's deque onto the
	// Completion Queue.
	p.Completed = true
	s.drainSwapChain(key)
}

// purgeIndexes removes id from every index it might still be in. Spec §4.2
// names by_submit_sequence, by_token, by_last_window (iff mapped to this
// present), and by_process_pending explicitly; the rest are included too so
// invariant 3 ("after complete(p), it appears in none") holds unconditionally
// rather than depending on every handler having already cleaned up after
// itself.
func (s *Store) purgeIndexes(id present.ID, p *present.Present) {
	if p.QueueSubmitSequence != 0 {
		if cur, ok := s.idx.bySubmitSequence[p.QueueSubmitSequence]; ok && cur == id {
			delete(s.idx.bySubmitSequence, p.QueueSubmitSequence)
		}
	}
	if p.TokenPtr != 0 {
		if cur, ok := s.idx.byToken[p.TokenPtr]; ok && cur == id {
			delete(s.idx.byToken, p.TokenPtr)
		}
	}
	if p.HasCompositionKey {
		if cur, ok := s.idx.byCompositionKey[p.CompositionTokenKey]; ok && cur == id {
			delete(s.idx.byCompositionKey, p.CompositionTokenKey)
		}
	}
	if p.Hwnd != 0 {
		if cur, ok := s.idx.byLastWindow[p.Hwnd]; ok && cur == id {
			delete(s.idx.byLastWindow, p.Hwnd)
		}
	}
	if pending, ok := s.idx.byProcessPending[p.ProcessID]; ok {
		s.idx.byProcessPending[p.ProcessID] = removeID(pending, id)
	}
	if tid, ok := s.threadMappedTo(id); ok {
		delete(s.idx.byThread, tid)
	}
	for token, cur := range s.idx.byLegacyBlit {
		if cur == id {
			delete(s.idx.byLegacyBlit, token)
		}
	}
	for ctx, cur := range s.idx.byBltContext {
		if cur == id {
			delete(s.idx.byBltContext, ctx)
		}
	}
	s.idx.dwmWaiting = removeID(s.idx.dwmWaiting, id)
}

// threadMappedTo returns the thread currently mapped to id in by_thread, if
// any.
func (s *Store) threadMappedTo(id present.ID) (uint32, bool) {
	for tid, cur := range s.idx.byThread {
		if cur == id {
			return tid, true
		}
	}
	return 0, false
}

// drainSwapChain moves every consecutively-completed present from the front
// of key's deque onto the Completion Queue (spec §4.2 step 5, §4.4). This
// is what enforces the per-(process, swap chain) submission-order guarantee
// (spec §3, §8 invariant 2): a present is only ever handed to a consumer
// once every present ahead of it in the deque has also completed.
func (s *Store) drainSwapChain(key swapKey) {
	deque := s.idx.byProcessSwap[key]
	n := 0
	for n < len(deque) {
		qp, ok := s.arena.get(deque[n])
		if !ok || !qp.Completed {
			break
		}
		n++
	}
	if n == 0 {
		return
	}

	ready := deque[:n]
	out := make([]present.Present, 0, n)
	for _, id := range ready {
		if qp, ok := s.arena.get(id); ok {
			out = append(out, *qp)
			s.arena.free(id)
		}
	}
	s.idx.byProcessSwap[key] = append([]present.ID(nil), deque[n:]...)
	s.queue.Push(out...)
}
