// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracer

import (
	"fmt"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	archGetFS = 0x1003
	archGetGS = 0x1004
)

// archPrctlGet reads a segment base via arch_prctl(2). golang.org/x/sys/unix
// does not wrap arch_prctl, so this open-codes the raw syscall — the same
// justification spec.md gives for open-coding futex in the CHECKPOINT
// handler.
func archPrctlGet(code uintptr) (uint64, error) {
	var val uint64
	_, _, errno := unix.Syscall(unix.SYS_ARCH_PRCTL, code, uintptr(unsafe.Pointer(&val)), 0)
	if errno != 0 {
		return 0, fmt.Errorf("tracer: arch_prctl(%#x): %w", code, errno)
	}
	return val, nil
}

// CaptureSelf records the calling thread's own status. Both the dumper
// (from inside Dump) and every registered sibling (from inside its own
// Participate loop, once parked at the quiescent point spec.md §4.5
// describes) call this on their own locked OS thread — there is exactly
// one register-capture mechanism in this package, not one for the dumper
// and a different one for siblings. The general-purpose caller-saved
// registers (rax, rcx, rdx, rsi, rdi, r8-r11) are not meaningful to
// capture this way: Go's register-based calling convention does not leave
// them holding any caller context by the time this function runs, unlike
// a true asynchronous signal handler reading a ucontext_t. rbp and rsp are
// read by the small asm helpers in capture_amd64.s, and rip is approximated
// by the caller's program counter (runtime.Caller). Every other register
// field, rflags included, is left zero.
func CaptureSelf() (Status, error) {
	tid := unix.Gettid()

	fsBase, err := archPrctlGet(archGetFS)
	if err != nil {
		return Status{}, err
	}
	gsBase, err := archPrctlGet(archGetGS)
	if err != nil {
		return Status{}, err
	}

	pc, _, _, _ := runtime.Caller(1)

	return Status{
		Tid:    tid,
		Rbp:    currentRBP(),
		Rsp:    currentRSP(),
		Rip:    uint64(pc),
		FSBase: fsBase,
		GSBase: gsBase,
	}, nil
}

