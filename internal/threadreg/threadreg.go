// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package threadreg is the Go-native stand-in for the original's
// thread-library accessor. The original reaches into glibc's opaque
// pthread control block at a fixed byte offset to read/write the cached
// kernel tid; a Go binary does not represent goroutines with a pthread TCB
// at all, so there is nothing at that offset to poke (an earlier revision
// of this package tried to locate glibc's struct rseq the same way, at a
// fixed fs-relative offset — wrong unconditionally for a non-cgo Go
// binary, whose OS threads are raw clone(2) threads with no pthread TCB,
// glibc or otherwise, backing that address; see DESIGN.md). Instead, this
// package is an explicit registry: any goroutine that wants to participate
// in a checkpoint must call Register, which locks it to its current OS
// thread (runtime.LockOSThread) and records its kernel tid. Only
// registered threads are ever reconciled — unregistered runtime-internal
// OS threads (sysmon, GC workers) are left alone, which is the adaptation
// documented in DESIGN.md's Resolved Open Questions.
package threadreg

import (
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sys/unix"
)

// Thread is a registered participant in the checkpoint protocol.
type Thread struct {
	Tid int

	mu sync.Mutex
}

// Registry is the process-wide roster of registered threads, keyed by
// kernel tid. There is exactly one live Registry per process; the criu
// package owns the singleton instance.
type Registry struct {
	mu      sync.Mutex
	threads map[int]*Thread
	order   []int // insertion order, preserved for NT_PRSTATUS ordering
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{threads: make(map[int]*Thread)}
}

// Register locks the calling goroutine to its current OS thread and adds it
// to the registry. The returned Thread must be released with Unregister,
// normally via defer, when the goroutine is done participating in
// checkpoints (typically: never, for a long-lived worker goroutine, until
// process exit).
//
// Register must be called from the goroutine that will represent this
// thread; it is not safe to register on behalf of another goroutine.
func (r *Registry) Register() (*Thread, error) {
	runtime.LockOSThread()
	tid := unix.Gettid()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.threads[tid]; dup {
		runtime.UnlockOSThread()
		return nil, fmt.Errorf("threadreg: tid %d already registered", tid)
	}
	t := &Thread{Tid: tid}
	r.threads[tid] = t
	r.order = append(r.order, tid)
	return t, nil
}

// Unregister removes t from the registry and unlocks its OS thread. Must be
// called from the same goroutine that registered t.
func (r *Registry) Unregister(t *Thread) {
	r.mu.Lock()
	delete(r.threads, t.Tid)
	for i, tid := range r.order {
		if tid == t.Tid {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()
	runtime.UnlockOSThread()
}

// Siblings returns every registered thread except the one whose tid is
// `self`, in registration order.
func (r *Registry) Siblings(self int) []*Thread {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Thread, 0, len(r.order))
	for _, tid := range r.order {
		if tid == self {
			continue
		}
		out = append(out, r.threads[tid])
	}
	return out
}

// Count returns the number of registered threads.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// RefreshTid updates t's kernel tid to the current gettid() result and
// re-keys the registry entry, used by reconciliation after an operation
// (e.g. re-exec into a new PID namespace) that can change every thread's
// kernel tid out from under the registry. Must be called from t's own
// goroutine.
func (r *Registry) RefreshTid(t *Thread) {
	t.mu.Lock()
	old := t.Tid
	t.Tid = unix.Gettid()
	new := t.Tid
	t.mu.Unlock()
	if old == new {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.threads, old)
	r.threads[new] = t
	for i, tid := range r.order {
		if tid == old {
			r.order[i] = new
			break
		}
	}
}
