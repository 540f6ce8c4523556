// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package store

import (
	"github.com/tinyrecon/presentmon/present"
	"github.com/tinyrecon/presentmon/trace"
)

// FindOrCreateByThread implements spec §4.2's find_or_create_by_thread:
//
//  1. If by_thread[tid] exists, return it.
//  2. Else, if by_process_pending[pid] contains a present with
//     PresentMode == Unknown, adopt the earliest such one onto tid (a
//     *batched* present) and return it.
//  3. Else, create a new Present with Runtime Other, insert it into
//     by_thread[tid], by_process_pending[pid], and
//     by_process_swapchain[(pid, 0)].
func (s *Store) FindOrCreateByThread(header trace.Header) *present.Present {
	if id, ok := s.idx.byThread[header.ThreadID]; ok {
		if p, ok := s.arena.get(id); ok {
			return p
		}
		delete(s.idx.byThread, header.ThreadID)
	}

	if pending, ok := s.idx.byProcessPending[header.ProcessID]; ok {
		for i, id := range pending {
			p, ok := s.arena.get(id)
			if !ok {
				continue
			}
			if p.PresentMode == present.ModeUnknown {
				s.idx.byProcessPending[header.ProcessID] = append(pending[:i:i], pending[i+1:]...)
				s.idx.byThread[header.ThreadID] = id
				p.WasBatched = true
				return p
			}
		}
	}

	p := s.arena.alloc()
	p.QPCTime = header.TimestampQPC
	p.ProcessID = header.ProcessID
	p.ThreadID = header.ThreadID
	p.Runtime = present.RuntimeOther
	p.SyncInterval = -1

	id := p.ID()
	s.idx.byThread[header.ThreadID] = id
	s.idx.byProcessPending[header.ProcessID] = append(s.idx.byProcessPending[header.ProcessID], id)
	key := swapKey{header.ProcessID, 0}
	s.idx.byProcessSwap[key] = append(s.idx.byProcessSwap[key], id)
	return p
}

// CreateRuntimePresent implements the runtime-start path of spec §4.2: it
// displaces any existing by_thread[tid] entry silently (a runtime-start
// event always means a fresh present began, regardless of what was
// in-flight on that thread before). It also inserts into by_process_pending,
// the same as the Other-runtime path in FindOrCreateByThread: a present
// that never gets claimed by a same-thread kernel event before its
// runtime-stop is exactly the "batched" case a later kernel event on any
// thread needs to adopt it from.
func (s *Store) CreateRuntimePresent(header trace.Header, swapChainID uint64, flags present.PresentFlags, syncInterval int32, runtime present.Runtime) *present.Present {
	p := s.arena.alloc()
	p.QPCTime = header.TimestampQPC
	p.ProcessID = header.ProcessID
	p.ThreadID = header.ThreadID
	p.Runtime = runtime
	p.SwapChainID = swapChainID
	p.PresentFlags = flags
	p.SyncInterval = syncInterval

	id := p.ID()
	s.idx.byThread[header.ThreadID] = id
	s.idx.byProcessPending[header.ProcessID] = append(s.idx.byProcessPending[header.ProcessID], id)

	key := swapKey{header.ProcessID, swapChainID}
	s.idx.byProcessSwap[key] = append(s.idx.byProcessSwap[key], id)

	st := s.swapState(key)
	st.runtime = runtime
	st.lastSyncInterval = syncInterval
	st.lastFlags = flags
	st.lastUpdateQPC = header.TimestampQPC

	return p
}
