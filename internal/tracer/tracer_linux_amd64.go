// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tracer is the Register Capturer (spec.md §4.5). Every
// participating thread — the dumper and every registered sibling alike —
// fills its own Status record by calling CaptureSelf on its own locked OS
// thread; see persist_linux_amd64.go.
//
// An earlier revision of this package captured sibling threads externally
// via PTRACE_SEIZE/PTRACE_INTERRUPT/PTRACE_GETREGS, modeled on gvisor's
// subprocess.go. That does not work here: gvisor's tracer and tracee are
// separate processes (a forked stub), while a minicriu sibling is another
// OS thread of the very same process as the dumper. Linux's
// ptrace_attach() rejects that unconditionally — kernel/ptrace.c's
// same_thread_group(task, current) check returns -EPERM whenever the
// tracer and tracee share a thread group, which every registered sibling
// always does. There is no ptrace path from one thread of a process to
// another thread of that same process. Each thread capturing its own
// state cooperatively, at the quiescent point package criu's Participate
// parks it at, is what the original C source's own PERSIST handler did
// for the dumping thread in the first place; this package now does that
// for every thread uniformly instead of splitting dumper/sibling capture
// across two different mechanisms.
package tracer

// Status is one thread's captured CPU state: the general-purpose registers
// plus segment bases, in the field order spec.md §3 names them. It becomes
// one NT_PRSTATUS note.
type Status struct {
	Tid int

	R15, R14, R13, R12 uint64
	Rbp, Rbx           uint64
	R11, R10, R9, R8   uint64
	Rax, Rcx, Rdx      uint64
	Rsi, Rdi           uint64
	Rip, Rsp, Rflags   uint64

	FSBase, GSBase uint64
}
