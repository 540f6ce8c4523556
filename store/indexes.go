// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package store

import "github.com/tinyrecon/presentmon/present"

// swapKey identifies a (process, swap chain) pair: the key of
// by_process_swapchain and of swapChainState (spec §3's index table, and
// §12's supplemented SwapChainData).
type swapKey struct {
	pid       uint32
	swapChain uint64
}

// swapChainState is the small rolling per-swap-chain record recovered from
// original_source/SwapChainData.hpp (spec §12): it survives independently of
// any single in-flight Present and is read back through LastPresentMode.
// FindOrCreateByThread does not consult it.
type swapChainState struct {
	runtime         present.Runtime
	lastPresentMode present.Mode
	lastSyncInterval int32
	lastFlags        present.PresentFlags
	lastUpdateQPC    uint64
}

// indexes holds every lookup structure in spec §3's index table. All of
// them store present.ID, never pointers or the Present itself (spec §9).
type indexes struct {
	byThread         map[uint32]present.ID
	byProcessPending map[uint32][]present.ID // FIFO per pid, ascending qpc
	byProcessSwap    map[swapKey][]present.ID
	bySubmitSequence map[uint32]present.ID
	byToken          map[uint64]present.ID
	byCompositionKey map[present.CompositionTokenKey]present.ID
	byLegacyBlit     map[uint64]present.ID
	byLastWindow     map[uint64]present.ID
	byBltContext     map[uint64]present.ID
	dwmWaiting       []present.ID

	swapChains map[swapKey]*swapChainState

	dwmThreadID uint32
}

func newIndexes() indexes {
	return indexes{
		byThread:         make(map[uint32]present.ID),
		byProcessPending: make(map[uint32][]present.ID),
		byProcessSwap:    make(map[swapKey][]present.ID),
		bySubmitSequence: make(map[uint32]present.ID),
		byToken:          make(map[uint64]present.ID),
		byCompositionKey: make(map[present.CompositionTokenKey]present.ID),
		byLegacyBlit:     make(map[uint64]present.ID),
		byLastWindow:     make(map[uint64]present.ID),
		byBltContext:     make(map[uint64]present.ID),
		swapChains:       make(map[swapKey]*swapChainState),
	}
}

// removeID removes the first occurrence of id from ids, preserving order.
func removeID(ids []present.ID, id present.ID) []present.ID {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
