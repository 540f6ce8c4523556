// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metadata

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"
	"unsafe"

	"github.com/tinyrecon/presentmon/trace"
)

// integer is the set of types GetField can decode a fixed-width field into.
type integer interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// GetField decodes the named field of event into T, consulting schema for
// its offset/size/kind (spec §4.1: "get_field<T>(event, name, array_index)").
// If the stored field is narrower than T it is zero-extended (sign-extended
// for KindInt fields); if wider, ErrDecodeWidth is returned. Pointer-typed
// fields honor event.Is32BitPtr.
func GetField[T integer](schema Schema, event trace.RawEvent, name string, arrayIndex int) (T, error) {
	var zero T
	field, ok := schema.Fields[name]
	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrFieldAbsent, name)
	}

	size := field.Size
	if field.Kind == KindPointer {
		if event.Is32BitPtr {
			size = 4
		} else {
			size = 8
		}
	}

	wantSize := typeSize[T]()
	if size > wantSize {
		return zero, fmt.Errorf("%w: field %q is %d bytes, requested type is %d", ErrDecodeWidth, name, size, wantSize)
	}

	offset := field.Offset + arrayIndex*size
	if offset < 0 || offset+size > len(event.Payload) {
		return zero, fmt.Errorf("%w: field %q at offset %d (size %d) exceeds payload of %d bytes", ErrFieldAbsent, name, offset, size, len(event.Payload))
	}

	raw := readUint(event.Payload[offset:offset+size], field.Kind == KindInt)
	return T(raw), nil
}

// readUint assembles an unsigned value from a little-endian byte slice of
// 1, 2, 4, or 8 bytes, sign-extending first when signed is true.
func readUint(b []byte, signed bool) uint64 {
	var v uint64
	switch len(b) {
	case 1:
		v = uint64(b[0])
		if signed && b[0]&0x80 != 0 {
			v |= ^uint64(0xff)
		}
	case 2:
		u := binary.LittleEndian.Uint16(b)
		v = uint64(u)
		if signed && u&0x8000 != 0 {
			v |= ^uint64(0xffff)
		}
	case 4:
		u := binary.LittleEndian.Uint32(b)
		v = uint64(u)
		if signed && u&0x80000000 != 0 {
			v |= ^uint64(0xffffffff)
		}
	case 8:
		v = binary.LittleEndian.Uint64(b)
	}
	return v
}

func typeSize[T integer]() int {
	var z T
	return int(unsafe.Sizeof(z))
}

// GetString decodes a string-typed field (8-bit or 16-bit) out of event's
// payload. Per spec §4.1, the string is sized from a preceding length
// property when present, else an explicit length property, else by
// scanning for a NUL terminator within the remaining payload.
func GetString(schema Schema, event trace.RawEvent, name string) (string, error) {
	field, ok := schema.Fields[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrFieldAbsent, name)
	}
	if field.Offset < 0 || field.Offset > len(event.Payload) {
		return "", fmt.Errorf("%w: field %q offset %d exceeds payload of %d bytes", ErrFieldAbsent, name, field.Offset, len(event.Payload))
	}

	remaining := event.Payload[field.Offset:]

	length := -1
	if field.LengthFieldName != "" {
		if n, err := GetField[uint32](schema, event, field.LengthFieldName, 0); err == nil {
			length = int(n)
		}
	} else if field.Size > 0 {
		length = field.Size
	}

	switch field.Kind {
	case KindString16:
		return decodeUTF16(remaining, length)
	case KindString8:
		return decodeAnsi(remaining, length)
	default:
		return "", fmt.Errorf("metadata: field %q is not a string field", name)
	}
}

func decodeUTF16(b []byte, length int) (string, error) {
	if length >= 0 {
		byteLen := length * 2
		if byteLen > len(b) {
			return "", fmt.Errorf("%w: utf16 field length %d exceeds remaining payload", ErrFieldAbsent, length)
		}
		b = b[:byteLen]
	} else {
		// Scan for a NUL terminator.
		end := len(b)
		for i := 0; i+1 < len(b); i += 2 {
			if b[i] == 0 && b[i+1] == 0 {
				end = i
				break
			}
		}
		b = b[:end]
	}
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	return string(utf16.Decode(units)), nil
}

func decodeAnsi(b []byte, length int) (string, error) {
	if length >= 0 {
		if length > len(b) {
			return "", fmt.Errorf("%w: ansi field length %d exceeds remaining payload", ErrFieldAbsent, length)
		}
		return string(b[:length]), nil
	}
	for i, c := range b {
		if c == 0 {
			return string(b[:i]), nil
		}
	}
	return string(b), nil
}
