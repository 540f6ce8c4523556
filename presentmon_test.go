// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package presentmon

import (
	"encoding/binary"
	"testing"
	"unicode/utf16"

	"github.com/tinyrecon/presentmon/correlate"
	"github.com/tinyrecon/presentmon/metadata"
	"github.com/tinyrecon/presentmon/present"
	"github.com/tinyrecon/presentmon/trace"
)

const (
	evRuntimeStart uint16 = iota + 1
	evRuntimeStop
	evProcessStart
	evProcessEnd
)

func testClassify(h trace.Header) correlate.EventKind {
	switch h.EventID {
	case evRuntimeStart:
		return correlate.EventRuntimePresentStart
	case evRuntimeStop:
		return correlate.EventRuntimePresentStop
	case evProcessStart:
		return correlate.EventProcessStart
	case evProcessEnd:
		return correlate.EventProcessEnd
	}
	return correlate.EventUnknown
}

// u32Fields builds a RawEvent whose payload is the concatenation of vals, in
// order, each as a little-endian uint32, and primes cache with a Schema
// naming each at its offset.
func u32Fields(cache *metadata.Cache, header trace.Header, names []string, vals []uint32) trace.RawEvent {
	payload := make([]byte, 4*len(vals))
	fields := make([]metadata.Field, len(names))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(payload[i*4:], v)
		fields[i] = metadata.Field{Name: names[i], Offset: i * 4, Size: 4, Count: 1, Kind: metadata.KindUint}
	}
	cache.Prime(header, fields)
	return trace.RawEvent{Header: header, Payload: payload}
}

func TestEngineSimpleModeCompletesOnRuntimeStop(t *testing.T) {
	e := New(Options{Classifier: testClassify, SimpleMode: true})

	header := trace.Header{Provider: trace.ProviderDXGI, EventID: evRuntimeStart, ThreadID: 1, ProcessID: 10, TimestampQPC: 100}
	e.Consume(u32Fields(e.cache, header, []string{"pIDXGISwapChain", "Flags", "SyncInterval"}, []uint32{0xAA, 0, 1}))

	stopHeader := trace.Header{Provider: trace.ProviderDXGI, EventID: evRuntimeStop, ThreadID: 1, ProcessID: 10, TimestampQPC: 110}
	e.Consume(u32Fields(e.cache, stopHeader, []string{"Result"}, []uint32{0}))

	out := e.DrainCompleted()
	if len(out) != 1 {
		t.Fatalf("got %d completed presents, want 1", len(out))
	}
	if out[0].FinalState != present.StatePresented {
		t.Errorf("final_state = %v, want Presented", out[0].FinalState)
	}
	if out[0].TimeTaken != 10 {
		t.Errorf("time_taken = %d, want 10", out[0].TimeTaken)
	}

	if n := len(e.DrainCompleted()); n != 0 {
		t.Errorf("DrainCompleted a second time returned %d, want 0", n)
	}
}

// processStartPayload builds the little-endian ProcessId + NUL-terminated
// UTF-16 ImageFileName payload correlate.processStart decodes, along with
// the Schema fields naming them at their real offsets.
func processStartPayload(pid uint32, imageName string) ([]byte, []metadata.Field) {
	units := utf16.Encode([]rune(imageName))
	payload := make([]byte, 4+2*(len(units)+1)) // +1 unit for the NUL terminator
	binary.LittleEndian.PutUint32(payload[0:4], pid)
	for i, u := range units {
		binary.LittleEndian.PutUint16(payload[4+i*2:], u)
	}
	fields := []metadata.Field{
		{Name: "ProcessId", Offset: 0, Size: 4, Count: 1, Kind: metadata.KindUint},
		{Name: "ImageFileName", Offset: 4, Kind: metadata.KindString16},
	}
	return payload, fields
}

// processEndPayload builds the ProcessId-only payload correlate.processEnd
// decodes.
func processEndPayload(pid uint32) ([]byte, []metadata.Field) {
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, pid)
	fields := []metadata.Field{
		{Name: "ProcessId", Offset: 0, Size: 4, Count: 1, Kind: metadata.KindUint},
	}
	return payload, fields
}

func TestEngineProcessEventsAndLostEventTracking(t *testing.T) {
	e := New(Options{Classifier: testClassify})

	startHeader := trace.Header{Provider: trace.ProviderNTProcess, EventID: evProcessStart, ProcessID: 55}
	startPayload, startFields := processStartPayload(55, "game.exe")
	e.cache.Prime(startHeader, startFields)
	e.Consume(trace.RawEvent{Header: startHeader, Payload: startPayload})

	endHeader := trace.Header{Provider: trace.ProviderNTProcess, EventID: evProcessEnd, ProcessID: 55}
	endPayload, endFields := processEndPayload(55)
	e.cache.Prime(endHeader, endFields)
	e.Consume(trace.RawEvent{Header: endHeader, Payload: endPayload})

	events := e.DrainProcessEvents()
	if len(events) != 2 {
		t.Fatalf("got %d process events, want 2", len(events))
	}
	if events[0].ProcessID != 55 || events[0].ImageName != "game.exe" {
		t.Errorf("events[0] = %+v, want {ProcessID: 55, ImageName: game.exe}", events[0])
	}
	if events[1].ProcessID != 55 || events[1].ImageName != "" {
		t.Errorf("events[1] = %+v, want {ProcessID: 55, ImageName: \"\"}", events[1])
	}

	if n := len(e.DrainProcessEvents()); n != 0 {
		t.Errorf("DrainProcessEvents a second time returned %d, want 0", n)
	}

	e.TickLostEvents(3, 1)

	if e.Unreliable(1000) {
		t.Errorf("Unreliable(1000) = true after only 3 lost events, want false")
	}
	if !e.Unreliable(2) {
		t.Errorf("Unreliable(2) = false after 3 lost events, want true")
	}
}

func TestEngineStatsReflectsStuckAndDoubleCompletions(t *testing.T) {
	e := New(Options{Classifier: testClassify})

	stuck, double := e.Stats()
	if stuck != 0 || double != 0 {
		t.Fatalf("Stats() = %d, %d on a fresh Engine, want 0, 0", stuck, double)
	}
}

func TestDefaultConfigCoversEveryCoreProvider(t *testing.T) {
	cfg := DefaultConfig()
	want := map[trace.Provider]bool{
		trace.ProviderDXGI:              false,
		trace.ProviderD3D9:              false,
		trace.ProviderDXGKernel:         false,
		trace.ProviderWin32KComposition: false,
		trace.ProviderDWMCompositor:     false,
		trace.ProviderNTProcess:         false,
	}
	for _, pc := range cfg.Providers {
		if _, ok := want[pc.Provider]; !ok {
			t.Errorf("unexpected provider %v in DefaultConfig", pc.Provider)
		}
		want[pc.Provider] = true
	}
	for p, seen := range want {
		if !seen {
			t.Errorf("DefaultConfig is missing provider %v", p)
		}
	}

	if got := ScheduleSources(cfg); len(got.Providers) != len(cfg.Providers) {
		t.Errorf("ScheduleSources changed the provider list: got %d, want %d", len(got.Providers), len(cfg.Providers))
	}
}
