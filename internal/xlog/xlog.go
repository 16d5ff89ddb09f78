// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package xlog is the module's one diagnostic-logging call site. It wraps
// the standard log package with a "[minicriu]" prefix. Per spec.md §6, no
// environment variable gates the core protocol; Debug is a plain
// compile-time/link-time toggle (flip it in a build, or override with
// "-ldflags -X") rather than an env var, and the teacher's own plain
// log.Printf style (cmd/viewcore, ogle/program/server never reach for a
// structured logging library) is kept rather than adopting one here.
package xlog

import (
	"log"
	"os"
)

// Debug gates Debugf output. It is a var, not a const, only so a build can
// flip it with -ldflags "-X .../internal/xlog.debugFlag=1"; the protocol
// itself never reads it or any environment variable.
var Debug = debugFlag == "1"

// debugFlag is the string the linker's -X flag sets; -X cannot set a bool.
var debugFlag string

var l = log.New(os.Stderr, "[minicriu] ", log.LstdFlags)

// Printf logs an informational line unconditionally.
func Printf(format string, args ...any) {
	l.Printf(format, args...)
}

// Debugf logs only when Debug has been compiled/linked on.
func Debugf(format string, args ...any) {
	if !Debug {
		return
	}
	l.Printf("debug: "+format, args...)
}
