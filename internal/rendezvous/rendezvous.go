// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rendezvous implements the quiesce/barrier/release choreography
// of spec.md §4.4: every registered sibling acknowledging a checkpoint
// request, an N-way barrier around register capture and core-file
// emission, and a release futex that lets every sibling resume.
//
// The original C source drives this with a real CHECKPOINT signal
// (rt_tgsigqueueinfo, handled by a per-thread signal handler) because its
// threads are independent pthreads the dumper can interrupt asynchronously
// from outside. A Go program cannot do that safely: os/signal delivers a
// process-wide notification on a channel, not a synchronous handler
// targeted at one specific goroutine's OS thread, so an unhandled signal
// queued at a sibling tid that never calls signal.Notify for it is fatal
// to the whole process rather than a no-op on the other threads (Go's
// runtime default-terminates on a delivered signal with no registered
// handler). Every sibling already learns about a new Dump cooperatively,
// by waiting on the in-process broadcaster in package criu, so there is no
// need for an OS signal to cross threads at all — the "CHECKPOINT
// broadcast" spec.md describes is realized here as that broadcaster wakeup
// plus the Session counters and Barrier below. CHECKPOINT and PERSIST are
// kept as named signal numbers (criu.Dump refuses to start if a registered
// sibling's SigBlk mask blocks CHECKPOINT); nothing in this module sends
// them.
//
// Open question, left unresolved per spec.md §9: if a registered sibling
// exits (or is otherwise never going to acknowledge) between the roster
// snapshot and the checkpoint broadcast, the barrier in Phase C will never
// reach its full count and the dumping thread deadlocks. No timeout is
// implemented; adding one is a design decision the original author never
// made, and spec.md explicitly treats introducing one as out of scope for
// a faithful rewrite.
package rendezvous

import (
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/checkpoint-restore/go-minicriu/internal/tracer"
)

// CHECKPOINT and PERSIST are the two signal numbers spec.md §4.4 nominates
// for the original's signal-handler choreography. See the package doc
// comment for why this Go rewrite never actually queues them.
const (
	CHECKPOINT = syscall.SIGSYS
	PERSIST    = syscall.SIGUSR1
)

// sigrtmin is glibc's usual SIGRTMIN (34): glibc reserves the first two
// real-time signals, 32 and 33, for its own pthread cancellation/setxid
// internals, and x/sys/unix has no portable constant for it since the
// kernel's raw RT range starts at 32 but libc narrows what user code may
// touch.
const sigrtmin = 34

// Internal reports whether sig is in the kernel-internal range (above
// SIGSYS but below SIGRTMIN) or is SIGKILL/SIGSTOP — signals the
// choreographer must never touch, per spec.md §4.4.
func Internal(sig syscall.Signal) bool {
	return sig == syscall.SIGKILL || sig == syscall.SIGSTOP ||
		(sig > syscall.SIGSYS && int(sig) < sigrtmin)
}

// Session holds the three futex counters and the barrier for one dump.
// Exactly one Session exists per in-flight Dump call; the criu package
// enforces that with a mutex (spec.md §9's "Global mutable state" note).
type Session struct {
	checkpoint      uint32 // siblings remaining to capture+acknowledge
	barrierInit     uint32 // 0 until the barrier has been constructed
	restore         uint32 // 0 until release, then 1
	restoredThreads uint32 // count of siblings that have passed the release gate

	Barrier *Barrier

	capturesMu sync.Mutex
	captures   map[int]tracer.Status // keyed by tid; dumper's own entry included
}

// NewSession creates a Session with all counters zeroed.
func NewSession() *Session {
	return &Session{captures: make(map[int]tracer.Status)}
}

// BeginCheckpoint sets the checkpoint counter to n, the number of siblings
// the dumper is about to wait on: every registered sibling, once it learns
// of this Session via the broadcaster in package criu, captures its own
// registers and calls AckCheckpoint exactly once.
func (s *Session) BeginCheckpoint(n int) {
	atomic.StoreUint32(&s.checkpoint, uint32(n))
}

// AckCheckpoint is called by a sibling, once it has captured its own
// Status (or given up trying to), to signal the dumper that it has reached
// the quiescent point; the sibling parks on the barrier right after.
func (s *Session) AckCheckpoint() {
	atomic.AddUint32(&s.checkpoint, ^uint32(0)) // -1
	futexWake(&s.checkpoint, 1)
}

// WaitCheckpointQuiesced blocks until every sibling counted in
// BeginCheckpoint has acknowledged (counter reaches zero).
func (s *Session) WaitCheckpointQuiesced() {
	for {
		v := atomic.LoadUint32(&s.checkpoint)
		if v == 0 {
			return
		}
		futexWait(&s.checkpoint, v)
	}
}

// RecordCapture stores tid's captured Status. Safe to call concurrently
// from the dumper and every sibling; each caller only ever writes its own
// tid's entry.
func (s *Session) RecordCapture(tid int, st tracer.Status) {
	s.capturesMu.Lock()
	s.captures[tid] = st
	s.capturesMu.Unlock()
}

// Capture returns the Status tid recorded, if any.
func (s *Session) Capture(tid int) (tracer.Status, bool) {
	s.capturesMu.Lock()
	defer s.capturesMu.Unlock()
	st, ok := s.captures[tid]
	return st, ok
}

// InitBarrier constructs the N-way barrier and publishes it to waiting
// siblings.
func (s *Session) InitBarrier(n int) {
	s.Barrier = NewBarrier(n)
	atomic.StoreUint32(&s.barrierInit, 1)
	futexWake(&s.barrierInit, n)
}

// WaitBarrierInit blocks until InitBarrier has run. Participate does not
// call it: Dump runs InitBarrier before it publishes the Session.
func (s *Session) WaitBarrierInit() {
	for atomic.LoadUint32(&s.barrierInit) == 0 {
		futexWait(&s.barrierInit, 0)
	}
}

// Release sets the restore gate and wakes every sibling parked on it.
func (s *Session) Release(n int) {
	atomic.StoreUint32(&s.restore, 1)
	futexWake(&s.restore, n)
}

// WaitRestore blocks until Release has run.
func (s *Session) WaitRestore() {
	for atomic.LoadUint32(&s.restore) == 0 {
		futexWait(&s.restore, 0)
	}
}

// AckRestored is called by a sibling once it has finished its own
// post-release restoration and is about to return to Participate's
// top-of-loop wait.
func (s *Session) AckRestored() {
	atomic.AddUint32(&s.restoredThreads, 1)
	futexWake(&s.restoredThreads, 1)
}

// WaitAllRestored blocks until n siblings have called AckRestored, which
// the dumper must observe before it unmaps any injected mapping (spec.md
// §5: "map cleanup strictly happens after all siblings have observed
// restore=1 and incremented restored-threads").
func (s *Session) WaitAllRestored(n int) {
	for {
		v := atomic.LoadUint32(&s.restoredThreads)
		if int(v) >= n {
			return
		}
		futexWait(&s.restoredThreads, v)
	}
}
