// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package store implements the Present Store (spec §4.2): the arena that
// owns every in-flight present.Present plus the indexes the correlation
// state machine (package correlate) uses to look a present up by whichever
// key is available at each pipeline stage.
package store

import "github.com/tinyrecon/presentmon/present"

// arenaSlot holds one Present plus the generation counter that lets a stale
// present.ID be detected after the slot is recycled (spec §9: "hold
// Presents in an arena keyed by a generational PresentId; every index
// stores PresentId values, not references").
type arenaSlot struct {
	p     present.Present
	gen   uint32
	alive bool
}

// arena is a slice-backed, generation-checked object pool. It never moves a
// live Present to a new slot, so pointers returned by get remain valid until
// that Present is freed.
type arena struct {
	slots    []*arenaSlot
	freeList []int32
}

func (a *arena) alloc() *present.Present {
	var slot *arenaSlot
	var index int32
	if n := len(a.freeList); n > 0 {
		index = a.freeList[n-1]
		a.freeList = a.freeList[:n-1]
		slot = a.slots[index]
		slot.gen++
	} else {
		index = int32(len(a.slots))
		slot = &arenaSlot{gen: 1}
		a.slots = append(a.slots, slot)
	}
	slot.alive = true
	slot.p = present.Present{}
	id := present.NewID(index, slot.gen)
	slot.p.SetID(id)
	return &slot.p
}

func (a *arena) get(id present.ID) (*present.Present, bool) {
	if !id.Valid() {
		return nil, false
	}
	idx := id.Index()
	if idx < 0 || int(idx) >= len(a.slots) {
		return nil, false
	}
	slot := a.slots[idx]
	if !slot.alive || slot.gen != id.Generation() {
		return nil, false
	}
	return &slot.p, true
}

func (a *arena) free(id present.ID) {
	p, ok := a.get(id)
	if !ok {
		return
	}
	p.Reset()
	idx := id.Index()
	a.slots[idx].alive = false
	a.freeList = append(a.freeList, idx)
}
