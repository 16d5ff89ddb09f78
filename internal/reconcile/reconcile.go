// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package reconcile is the Post-Dump Reconciler (spec.md §4.7). Once the
// core file has been emitted, it puts the dumper's own thread back the way
// it found it, releases every sibling, waits for them to report their own
// restoration done, and cleans up whatever the dump transiently mapped.
package reconcile

import (
	"fmt"
	"sort"

	"golang.org/x/sys/unix"

	"github.com/checkpoint-restore/go-minicriu/internal/procfs"
	"github.com/checkpoint-restore/go-minicriu/internal/rendezvous"
	"github.com/checkpoint-restore/go-minicriu/internal/threadreg"
	"github.com/checkpoint-restore/go-minicriu/internal/xlog"
)

// SavedState is what the dumper must capture before quiescing, so this
// package has something to restore afterward: its signal mask.
type SavedState struct {
	Mask unix.Sigset_t
}

// Snapshot captures the dumper's current signal mask, for later restoration
// by RestoreSignalMask (via RestoreSelf). Must be called before the
// checkpoint session is published.
func Snapshot() (SavedState, error) {
	var s SavedState
	if err := unix.PthreadSigmask(unix.SIG_SETMASK, nil, &s.Mask); err != nil {
		return SavedState{}, fmt.Errorf("reconcile: read signal mask: %w", err)
	}
	return s, nil
}

// RestoreSignalMask reinstalls the mask Snapshot captured.
func RestoreSignalMask(s SavedState) error {
	if err := unix.PthreadSigmask(unix.SIG_SETMASK, &s.Mask, nil); err != nil {
		return fmt.Errorf("reconcile: restore signal mask: %w", err)
	}
	return nil
}

// RestoreSelf puts the dumper's own thread back: refreshes its registry
// slot (its tid cannot have changed mid-dump on Linux, but spec.md §4.7
// requires the refresh unconditionally, since a future retargeting of this
// protocol at PID-namespace re-entry would change tids and the refresh
// must already be in place for that), and restores its signal mask.
func RestoreSelf(reg *threadreg.Registry, self *threadreg.Thread, s SavedState) error {
	reg.RefreshTid(self)
	return RestoreSignalMask(s)
}

// ReleaseAndWait sets the restore gate, waking every sibling parked in
// Participate, then blocks until all of them have acknowledged their own
// restoration — per spec.md §5, map cleanup must not begin until every
// sibling has observed restore=1 and incremented restored-threads.
func ReleaseAndWait(session *rendezvous.Session, siblingCount int) {
	session.Release(siblingCount)
	session.WaitAllRestored(siblingCount)
}

// MapSnapshot is the set of mappings observed at one point in time, indexed
// by the (start,end) range, used to diff against a later snapshot.
type MapSnapshot map[[2]uint64]procfs.Mapping

// SnapshotMaps reads /proc/self/maps into a MapSnapshot.
func SnapshotMaps() (MapSnapshot, error) {
	mappings, err := procfs.ParseMapsFile("/proc/self/maps")
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}
	out := make(MapSnapshot, len(mappings))
	for _, m := range mappings {
		out[[2]uint64{m.Start, m.End}] = m
	}
	return out, nil
}

// CleanupInjectedMappings unmaps every range present in `after` but absent
// from `before`: a mapping the dump itself injected (e.g. a scratch region
// used to stage data for a sibling) and that nothing else is still using
// once restoration has completed. It deliberately ignores the symmetric
// case (ranges present in `before` but missing from `after`) since a
// mapping that disappeared on its own needs no cleanup call.
//
// golang.org/x/sys/unix.Munmap takes a []byte, not a raw address — it can
// only unmap memory Go itself mmap'd as a slice — so a range recovered from
// /proc/self/maps by address is unmapped via a raw SYS_MUNMAP syscall
// instead.
func CleanupInjectedMappings(before, after MapSnapshot) error {
	var injected [][2]uint64
	for rng := range after {
		if _, ok := before[rng]; !ok {
			injected = append(injected, rng)
		}
	}
	// Deterministic order for logging/debugging reproducibility; cleanup
	// order otherwise doesn't matter, since these ranges are disjoint.
	sort.Slice(injected, func(i, j int) bool { return injected[i][0] < injected[j][0] })

	for _, rng := range injected {
		start, end := rng[0], rng[1]
		if _, _, errno := unix.Syscall(unix.SYS_MUNMAP, uintptr(start), uintptr(end-start), 0); errno != 0 {
			return fmt.Errorf("reconcile: munmap %#x-%#x: %w", start, end, errno)
		}
		xlog.Printf("reconcile: unmapped injected range %#x-%#x", start, end)
	}
	return nil
}
