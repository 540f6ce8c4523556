// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !windows

package metadata

import (
	"fmt"

	"github.com/tinyrecon/presentmon/trace"
)

// On non-Windows builds there is no ETW/TDH facility to query. Every
// resolve is a miss: callers get a clean, typed error instead of a syscall
// that could never work.
func defaultPlatformResolve(provider trace.Provider, eventID uint16, version uint8) ([]Field, error) {
	return nil, fmt.Errorf("metadata: no event-metadata facility on this platform (provider %d event %d v%d)", provider, eventID, version)
}
