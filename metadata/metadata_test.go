// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metadata

import (
	"encoding/binary"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/tinyrecon/presentmon/trace"
)

func testHeader(provider trace.Provider, eventID uint16) trace.Header {
	return trace.Header{Provider: provider, EventID: eventID}
}

func TestCachePrimeBypassesPlatformResolve(t *testing.T) {
	prev := platformResolve
	defer func() { platformResolve = prev }()
	platformResolve = func(trace.Provider, uint16, uint8) ([]Field, error) {
		t.Fatalf("platformResolve called despite Prime")
		return nil, nil
	}

	c := NewCache(nil)
	header := testHeader(trace.ProviderDXGI, 1)
	c.Prime(header, []Field{{Name: "Flags", Offset: 0, Size: 4, Count: 1, Kind: KindUint}})

	schema, err := c.Resolve(header)
	if err != nil {
		t.Fatalf("Resolve returned error after Prime: %v", err)
	}
	if _, ok := schema.Fields["Flags"]; !ok {
		t.Fatalf("primed schema missing field %q", "Flags")
	}
}

func TestCacheResolveCachesPlatformResolveResult(t *testing.T) {
	prev := platformResolve
	defer func() { platformResolve = prev }()

	var calls int32
	platformResolve = func(trace.Provider, uint16, uint8) ([]Field, error) {
		atomic.AddInt32(&calls, 1)
		return []Field{{Name: "Result", Offset: 0, Size: 4, Count: 1, Kind: KindUint}}, nil
	}

	c := NewCache(nil)
	header := testHeader(trace.ProviderDXGI, 2)

	for i := 0; i < 3; i++ {
		if _, err := c.Resolve(header); err != nil {
			t.Fatalf("Resolve call %d: %v", i, err)
		}
	}
	if calls != 1 {
		t.Fatalf("platformResolve called %d times, want 1", calls)
	}
}

func TestCacheResolveMissPropagatesError(t *testing.T) {
	prev := platformResolve
	defer func() { platformResolve = prev }()
	sentinel := errors.New("no schema for this event")
	platformResolve = func(trace.Provider, uint16, uint8) ([]Field, error) {
		return nil, sentinel
	}

	c := NewCache(nil)
	if _, err := c.Resolve(testHeader(trace.ProviderDXGI, 3)); err == nil {
		t.Fatalf("Resolve returned no error for a platform resolve failure")
	}
}

func schemaOf(fields ...Field) Schema {
	m := make(map[string]Field, len(fields))
	for _, f := range fields {
		m[f.Name] = f
	}
	return Schema{Fields: m}
}

func TestGetFieldZeroExtendsNarrowerField(t *testing.T) {
	schema := schemaOf(Field{Name: "Small", Offset: 0, Size: 2, Count: 1, Kind: KindUint})
	payload := make([]byte, 2)
	binary.LittleEndian.PutUint16(payload, 0xBEEF)
	ev := trace.RawEvent{Payload: payload}

	got, err := GetField[uint32](schema, ev, "Small", 0)
	if err != nil {
		t.Fatalf("GetField: %v", err)
	}
	if got != 0xBEEF {
		t.Fatalf("GetField = %#x, want %#x", got, 0xBEEF)
	}
}

func TestGetFieldRejectsWiderField(t *testing.T) {
	schema := schemaOf(Field{Name: "Big", Offset: 0, Size: 8, Count: 1, Kind: KindUint})
	ev := trace.RawEvent{Payload: make([]byte, 8)}

	if _, err := GetField[uint32](schema, ev, "Big", 0); !errors.Is(err, ErrDecodeWidth) {
		t.Fatalf("GetField error = %v, want ErrDecodeWidth", err)
	}
}

func TestGetFieldSignExtendsSignedField(t *testing.T) {
	schema := schemaOf(Field{Name: "Signed", Offset: 0, Size: 1, Count: 1, Kind: KindInt})
	ev := trace.RawEvent{Payload: []byte{0xFF}}

	got, err := GetField[int32](schema, ev, "Signed", 0)
	if err != nil {
		t.Fatalf("GetField: %v", err)
	}
	if got != -1 {
		t.Fatalf("GetField = %d, want -1", got)
	}
}

func TestGetFieldMissingNameReturnsErrFieldAbsent(t *testing.T) {
	schema := schemaOf()
	ev := trace.RawEvent{Payload: nil}

	if _, err := GetField[uint32](schema, ev, "Absent", 0); !errors.Is(err, ErrFieldAbsent) {
		t.Fatalf("GetField error = %v, want ErrFieldAbsent", err)
	}
}

func TestGetFieldPointerWidthFollowsIs32BitPtr(t *testing.T) {
	schema := schemaOf(Field{Name: "Ptr", Offset: 0, Kind: KindPointer})
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint32(payload, 0xCAFEF00D)

	got32, err := GetField[uint64](schema, trace.RawEvent{Payload: payload, Is32BitPtr: true}, "Ptr", 0)
	if err != nil {
		t.Fatalf("GetField (32-bit): %v", err)
	}
	if got32 != 0xCAFEF00D {
		t.Fatalf("GetField (32-bit) = %#x, want %#x", got32, 0xCAFEF00D)
	}

	binary.LittleEndian.PutUint64(payload, 0x1122334455667788)
	got64, err := GetField[uint64](schema, trace.RawEvent{Payload: payload, Is32BitPtr: false}, "Ptr", 0)
	if err != nil {
		t.Fatalf("GetField (64-bit): %v", err)
	}
	if got64 != 0x1122334455667788 {
		t.Fatalf("GetField (64-bit) = %#x, want %#x", got64, uint64(0x1122334455667788))
	}
}

func TestGetFieldArrayIndexing(t *testing.T) {
	schema := schemaOf(Field{Name: "Items", Offset: 4, Size: 4, Count: 3, Kind: KindUint})
	payload := make([]byte, 4+4*3)
	binary.LittleEndian.PutUint32(payload[4:], 10)
	binary.LittleEndian.PutUint32(payload[8:], 20)
	binary.LittleEndian.PutUint32(payload[12:], 30)
	ev := trace.RawEvent{Payload: payload}

	for i, want := range []uint32{10, 20, 30} {
		got, err := GetField[uint32](schema, ev, "Items", i)
		if err != nil {
			t.Fatalf("GetField index %d: %v", i, err)
		}
		if got != want {
			t.Errorf("GetField index %d = %d, want %d", i, got, want)
		}
	}
}

func TestGetStringExplicitLength(t *testing.T) {
	schema := schemaOf(Field{Name: "Name", Offset: 0, Size: 5, Kind: KindString8})
	ev := trace.RawEvent{Payload: []byte("hello\x00\x00garbage")}

	got, err := GetString(schema, ev, "Name")
	if err != nil {
		t.Fatalf("GetString: %v", err)
	}
	if got != "hello" {
		t.Fatalf("GetString = %q, want %q", got, "hello")
	}
}

func TestGetStringNulScan(t *testing.T) {
	schema := schemaOf(Field{Name: "Name", Offset: 0, Kind: KindString8})
	ev := trace.RawEvent{Payload: []byte("present.exe\x00trailing")}

	got, err := GetString(schema, ev, "Name")
	if err != nil {
		t.Fatalf("GetString: %v", err)
	}
	if got != "present.exe" {
		t.Fatalf("GetString = %q, want %q", got, "present.exe")
	}
}

func TestGetStringUTF16LengthField(t *testing.T) {
	word := "hi"
	payload := make([]byte, 4+len(word)*2)
	binary.LittleEndian.PutUint32(payload, uint32(len(word)))
	for i, r := range word {
		binary.LittleEndian.PutUint16(payload[4+i*2:], uint16(r))
	}
	schema := schemaOf(
		Field{Name: "Len", Offset: 0, Size: 4, Kind: KindUint},
		Field{Name: "Name", Offset: 4, Kind: KindString16, LengthFieldName: "Len"},
	)
	ev := trace.RawEvent{Payload: payload}

	got, err := GetString(schema, ev, "Name")
	if err != nil {
		t.Fatalf("GetString: %v", err)
	}
	if got != word {
		t.Fatalf("GetString = %q, want %q", got, word)
	}
}

func TestOnceMapComputesEachKeyOnce(t *testing.T) {
	var calls int32
	m := newOnceMap(func(k string) (int, error) {
		atomic.AddInt32(&calls, 1)
		return len(k), nil
	})

	for i := 0; i < 5; i++ {
		v, err := m.get("abc")
		if err != nil || v != 3 {
			t.Fatalf("get(%d) = %d, %v, want 3, nil", i, v, err)
		}
	}
	if calls != 1 {
		t.Fatalf("new called %d times, want 1", calls)
	}
}

func TestOnceMapSetPreemptsCompute(t *testing.T) {
	m := newOnceMap(func(string) (int, error) {
		panic("new should never be called for a key installed with set")
	})
	m.set("k", 42)

	v, err := m.get("k")
	if err != nil || v != 42 {
		t.Fatalf("get = %d, %v, want 42, nil", v, err)
	}
}
