// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracer

// currentRSP and currentRBP are implemented in capture_amd64.s: reading the
// hardware stack/frame pointer is not expressible in portable Go.
func currentRSP() uint64
func currentRBP() uint64
