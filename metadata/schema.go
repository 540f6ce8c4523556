// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metadata implements the Event Metadata Cache (spec §4.1): given a
// raw event's header, it resolves and caches a Schema describing the named
// fields in that event kind's payload, and decodes individual fields out of
// the payload bytes.
package metadata

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tinyrecon/presentmon/trace"
)

// ErrFieldAbsent is returned by GetField and GetString when the named field
// does not appear in the resolved Schema for an event, or lies outside the
// payload. Per spec §4.1/§7 this is a
// recoverable decode miss, never a reason to abort the pipeline.
var ErrFieldAbsent = errors.New("metadata: field absent")

// ErrDecodeWidth is returned when a field's stored width is wider than the
// requested type T (spec §4.1: "if wider, fail with DecodeError").
var ErrDecodeWidth = errors.New("metadata: field wider than requested type")

// Kind describes how a Field's bytes should be interpreted.
type Kind uint8

const (
	KindInt Kind = iota
	KindUint
	KindPointer // width depends on Header.Is32BitPtr at decode time
	KindString8
	KindString16
	KindStruct
)

// Field describes one named property of an event's payload: its offset, its
// byte width, whether it is an array and how many elements, and how to
// interpret its bytes (spec §4.1: "field name -> (offset, size, count,
// inner-type)").
type Field struct {
	Name   string
	Offset int
	Size   int // size of one element, in bytes; 0 for variable-length strings
	Count  int // 1 for scalar fields

	Kind Kind

	// CountFieldName names the field that holds the element count of a
	// variable-count array. No resolver in this package fills it in, and
	// GetField reads neither Count nor CountFieldName: an array index is not
	// checked against the element count.
	CountFieldName string

	// LengthFieldName is set when a string field's length is given by a
	// preceding length property rather than an explicit size or a
	// terminator scan (spec §4.1).
	LengthFieldName string
}

// Schema is the decoded field table for one (provider, event ID, version)
// triple.
type Schema struct {
	Key    eventKey
	Fields map[string]Field
}

type eventKey struct {
	provider trace.Provider
	eventID  uint16
	version  uint8
}

// Cache decodes named fields from provider event payloads, caching one
// Schema per (provider, event-id, version) so the platform's event-metadata
// facility is never re-queried for an event kind it has already resolved
// (spec §4.1, §9 "Provider decoding").
type Cache struct {
	schemas *onceMap[eventKey, Schema]
	log     *zap.Logger
}

// NewCache constructs a Cache. A nil logger is replaced with a no-op logger,
// so Cache is silent by default and a caller opts into diagnostics (§10.2).
func NewCache(log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Cache{log: log}
	c.schemas = newOnceMap(c.resolve)
	return c
}

// Resolve returns the cached Schema for header's event kind, populating the
// cache from the platform facility on a miss (spec §4.1: "resolve(event) ->
// Schema").
func (c *Cache) Resolve(header trace.Header) (Schema, error) {
	key := eventKey{header.Provider, header.EventID, header.Version}
	schema, err := c.schemas.get(key)
	if err != nil {
		c.log.Debug("metadata: schema resolve failed",
			zap.Uint8("provider", uint8(header.Provider)),
			zap.Uint16("eventID", header.EventID),
			zap.Uint8("version", header.Version),
			zap.Error(err))
	}
	return schema, err
}

// Prime installs an explicit Schema for header's event kind, bypassing the
// platform event-metadata facility entirely. This is the mechanism for
// loading schemas from a side channel — a captured trace's embedded event
// manifest, a hand-maintained table for providers the platform resolver
// doesn't know about — instead of querying the OS live (spec §9: "expose it
// as an immutable table keyed by provider/event-id/version").
func (c *Cache) Prime(header trace.Header, fields []Field) {
	key := eventKey{header.Provider, header.EventID, header.Version}
	m := make(map[string]Field, len(fields))
	for _, f := range fields {
		m[f.Name] = f
	}
	c.schemas.set(key, Schema{Key: key, Fields: m})
}

// platformResolve queries the platform's event-metadata facility for the
// named fields of one event kind. It is a var, not a direct call to
// defaultPlatformResolve, so tests can stub it out without touching the
// real platform facility.
var platformResolve = defaultPlatformResolve

func (c *Cache) resolve(key eventKey) (Schema, error) {
	fields, err := platformResolve(key.provider, key.eventID, key.version)
	if err != nil {
		return Schema{}, fmt.Errorf("resolve schema for provider %d event %d v%d: %w", key.provider, key.eventID, key.version, err)
	}
	m := make(map[string]Field, len(fields))
	for _, f := range fields {
		m[f.Name] = f
	}
	return Schema{Key: key, Fields: m}, nil
}
