// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package criu is minicriu's public surface: an in-process checkpoint
// facility for a multi-threaded Go process on Linux/x86_64. Every
// participating goroutine calls Register once and then runs Participate in
// a loop; exactly one of them (or a dedicated control goroutine) calls
// Dump to freeze its siblings, write a core file, and resume the process.
package criu

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/checkpoint-restore/go-minicriu/internal/coredump"
	"github.com/checkpoint-restore/go-minicriu/internal/procfs"
	"github.com/checkpoint-restore/go-minicriu/internal/reclist"
	"github.com/checkpoint-restore/go-minicriu/internal/reconcile"
	"github.com/checkpoint-restore/go-minicriu/internal/rendezvous"
	"github.com/checkpoint-restore/go-minicriu/internal/threadreg"
	"github.com/checkpoint-restore/go-minicriu/internal/tracer"
	"github.com/checkpoint-restore/go-minicriu/internal/xlog"
)

// Thread is a handle to a goroutine that has called Register; it must be
// passed to Unregister and Participate from the same goroutine that
// obtained it.
type Thread = threadreg.Thread

var (
	registry = threadreg.NewRegistry()

	// dumpMu is the "global mutable state" guard spec.md §9 requires:
	// exactly one Dump runs at a time, process-wide.
	dumpMu sync.Mutex

	broadcaster sessionBroadcaster
)

// Register locks the calling goroutine to its current OS thread and
// admits it to the checkpoint protocol. The goroutine must call Participate
// afterward (normally in a loop, for the remainder of its life) and must
// eventually call Unregister before exiting, from the same goroutine.
func Register() (*Thread, error) {
	return registry.Register()
}

// Unregister withdraws t from the protocol and unlocks its OS thread.
func Unregister(t *Thread) {
	registry.Unregister(t)
}

// sessionBroadcaster lets every Participate loop learn about a newly
// started Dump without polling: it is the same sync.Cond idiom
// internal/rendezvous.Barrier uses, generalized to "wait for the next
// value," rather than "wait for N arrivals."
type sessionBroadcaster struct {
	mu   sync.Mutex
	cond *sync.Cond
	cur  *rendezvous.Session
	gen  int
}

func (b *sessionBroadcaster) publish(s *rendezvous.Session) {
	b.mu.Lock()
	if b.cond == nil {
		b.cond = sync.NewCond(&b.mu)
	}
	b.cur = s
	b.gen++
	b.cond.Broadcast()
	b.mu.Unlock()
}

// await blocks until a session newer than lastGen is published and returns
// it along with its generation. It does not honor ctx cancellation while
// parked in cond.Wait — a goroutine that must exit on cancellation should
// not be mid-Participate when ctx is canceled; this is a known limitation,
// acceptable since Participate is meant to run for the registered
// goroutine's entire lifetime.
func (b *sessionBroadcaster) await(ctx context.Context, lastGen int) (*rendezvous.Session, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cond == nil {
		b.cond = sync.NewCond(&b.mu)
	}
	for b.gen == lastGen {
		b.cond.Wait()
	}
	return b.cur, b.gen
}

// Participate runs the sibling half of the checkpoint protocol for t,
// forever, until ctx is canceled. It must be called from the same
// goroutine that called Register for t, since capturing t's own registers
// (see internal/tracer.CaptureSelf) requires running on that goroutine's
// locked OS thread.
//
// Each cycle: wait for a new Dump to be published, capture this thread's
// own registers and record them on the Session, acknowledge the
// checkpoint, pass the two-rendezvous barrier spec.md §4.5 requires (the
// first confirms every sibling has reached this quiescent point before the
// dumper builds the core file's notes; the second releases once the core
// file has been written), wait for the release gate, and acknowledge
// restoration.
func Participate(ctx context.Context, t *Thread) error {
	gen := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		s, newGen := broadcaster.await(ctx, gen)
		gen = newGen
		if s == nil {
			continue // a finished Dump cleared the session; wait for the next one
		}

		if st, err := tracer.CaptureSelf(); err != nil {
			xlog.Printf("criu: tid %d: capturing own registers: %v", t.Tid, err)
		} else {
			s.RecordCapture(t.Tid, st)
		}

		s.AckCheckpoint()
		s.Barrier.Wait() // rendezvous 1: parked, every capture recorded
		s.Barrier.Wait() // rendezvous 2: dumper has finished capture+emit

		s.WaitRestore()
		s.AckRestored()
	}
}

// Dump freezes every registered sibling, writes a core file named
// "minicriu-core.<pid>" in the current directory, and resumes the
// process. self must be the Thread handle the calling goroutine obtained
// from Register; Dump must be called from that same goroutine.
func Dump(self *Thread) error {
	dumpMu.Lock()
	defer dumpMu.Unlock()

	pid := os.Getpid()

	// spec.md §2 step (a): the pre-dump argv/exe/comm identity must be
	// captured before anything else touches process state, so that §4.7's
	// restoration reinstates what was actually true before the freeze, not
	// whatever happens to be true after the dump completes.
	preDumpIdentity, haveIdentity := captureIdentity(pid)

	mask, err := reconcile.Snapshot()
	if err != nil {
		return fmt.Errorf("criu: %w", err)
	}
	beforeMaps, err := reconcile.SnapshotMaps()
	if err != nil {
		return fmt.Errorf("criu: %w", err)
	}

	siblings := registry.Siblings(self.Tid)

	// Precondition: no registered sibling may block CHECKPOINT. This runs
	// before the session is published, so a refusal leaves nothing to undo.
	for _, sib := range siblings {
		statusPath := fmt.Sprintf("/proc/self/task/%d/status", sib.Tid)
		blocked, err := procfs.SigBlocked(statusPath, rendezvous.CHECKPOINT)
		if err != nil {
			return fmt.Errorf("criu: %w", err)
		}
		if blocked {
			return fmt.Errorf("criu: tid %d blocks %v, refusing to dump", sib.Tid, rendezvous.CHECKPOINT)
		}
	}

	s := rendezvous.NewSession()
	s.InitBarrier(len(siblings) + 1)
	s.BeginCheckpoint(len(siblings))
	broadcaster.publish(s)
	defer broadcaster.publish(nil)

	selfStatus, err := tracer.CaptureSelf()
	if err != nil {
		return fmt.Errorf("criu: capturing dumper's own registers: %w", err)
	}
	s.RecordCapture(self.Tid, selfStatus)

	// Every sibling learns of s via the broadcaster publish above and, once
	// it has recorded its own capture, calls AckCheckpoint; no signal ever
	// crosses threads (see internal/rendezvous's package doc comment).
	s.WaitCheckpointQuiesced()

	s.Barrier.Wait() // rendezvous 1: every sibling has captured, acked, and parked

	threads := collectCaptures(s, self, siblings)

	in, err := buildInput(pid, threads)
	if err != nil {
		return fmt.Errorf("criu: %w", err)
	}

	path := fmt.Sprintf("minicriu-core.%d", pid)
	if err := coredump.Emit(path, in); err != nil {
		return fmt.Errorf("criu: %w", err)
	}

	s.Barrier.Wait() // rendezvous 2: release siblings now that the core is on disk

	if err := reconcile.RestoreSelf(registry, self, mask); err != nil {
		xlog.Printf("criu: restoring dumper's own state: %v", err)
	}
	reconcile.ReleaseAndWait(s, len(siblings))

	afterMaps, err := reconcile.SnapshotMaps()
	if err != nil {
		xlog.Printf("criu: post-dump map snapshot: %v", err)
	} else if err := reconcile.CleanupInjectedMappings(beforeMaps, afterMaps); err != nil {
		xlog.Printf("criu: cleaning up injected mappings: %v", err)
	}

	if !haveIdentity {
		xlog.Printf("criu: no pre-dump identity snapshot available, skipping identity restore")
	} else if err := reconcile.RestoreIdentity(preDumpIdentity); err != nil {
		xlog.Printf("criu: restoring process identity: %v", err)
	}

	return nil
}

// collectCaptures reads back every recorded Status from s, in the order
// spec.md §4.6 requires for NT_PRSTATUS: the dumper first, then siblings
// in registration order. A sibling that never managed to capture its own
// registers (it logged why in Participate) is simply omitted rather than
// failing the whole dump — a core file missing one thread's registers is
// far more useful than no core file at all. This is the thread-status
// record list internal/reclist exists for, pre-reserved to
// reclist.MaxThreads.
func collectCaptures(s *rendezvous.Session, self *Thread, siblings []*Thread) []tracer.Status {
	out := reclist.New[tracer.Status](reclist.MaxThreads)
	if st, ok := s.Capture(self.Tid); ok {
		out.Append(st)
	}
	for _, sib := range siblings {
		st, ok := s.Capture(sib.Tid)
		if !ok {
			xlog.Printf("criu: no register capture recorded for tid %d, omitting", sib.Tid)
			continue
		}
		out.Append(st)
	}
	return out.Slice()
}

// buildInput gathers the process-wide metadata coredump.Emit needs:
// memory map, auxv, and process identity fields.
func buildInput(pid int, threads []tracer.Status) (coredump.Input, error) {
	mappings, err := procfs.ParseMapsFile("/proc/self/maps")
	if err != nil {
		return coredump.Input{}, fmt.Errorf("reading maps: %w", err)
	}
	auxv, err := procfs.ReadAuxv("/proc/self/auxv")
	if err != nil {
		return coredump.Input{}, fmt.Errorf("reading auxv: %w", err)
	}

	// spec.md §7 classifies a stat line with a missing argv range as a
	// non-fatal parse ambiguity: report it and skip argv-range
	// reconciliation, but still emit the core file. ParseStatFile already
	// returns a usable partial *Stat (pid/comm/state, just not
	// ArgStart/ArgEnd) alongside that specific error, so use it instead of
	// aborting the whole dump.
	st, err := procfs.ParseStatFile("/proc/self/stat")
	if st == nil {
		return coredump.Input{}, fmt.Errorf("reading stat: %w", err)
	}
	if err != nil {
		xlog.Printf("criu: %v; dumping without argv-range reconciliation", err)
	}

	cmdline, err := procfs.ReadCmdline("/proc/self/cmdline")
	if err != nil {
		return coredump.Input{}, fmt.Errorf("reading cmdline: %w", err)
	}

	return coredump.Input{
		Proc: coredump.ProcessInfo{
			Pid:   pid,
			State: st.State,
			Comm:  st.Comm,
			Args:  cmdline,
		},
		Mappings: mappings,
		Auxv:     auxv,
		Threads:  threads,
	}, nil
}

// captureIdentity reads the process's current argv range, exe-file link,
// and comm — the pre-dump snapshot reconcile.RestoreIdentity reinstates
// after the freeze, per spec.md §4.7 step 7. It reports ok=false only when
// /proc/self/stat could not be read/parsed at all, in which case Dump
// skips identity restoration entirely rather than feed RestoreIdentity a
// zero-value Identity (an empty ArgStart/ArgEnd pair is not "no change,"
// it is a request to point argv at address zero). A missing argv range
// specifically (stat parsed, but fields 48/49 absent) is tolerated the
// same way buildInput tolerates it: ok is still true, just with a zero
// ArgStart/ArgEnd that reconcile.RestoreIdentity's PR_SET_MM call will
// reject, falling back to its comm-only path.
func captureIdentity(pid int) (reconcile.Identity, bool) {
	st, err := procfs.ParseStatFile("/proc/self/stat")
	if st == nil {
		xlog.Printf("criu: capturing pre-dump identity: %v", err)
		return reconcile.Identity{}, false
	}
	if err != nil {
		xlog.Printf("criu: %v; identity restore will skip the argv range", err)
	}
	exe, err := procfs.ReadExe(fmt.Sprintf("/proc/%d/exe", pid))
	if err != nil {
		xlog.Printf("criu: reading exe-file link: %v", err)
		exe = ""
	}
	return reconcile.Identity{
		ArgStart: st.ArgStart,
		ArgEnd:   st.ArgEnd,
		ExeFile:  exe,
		Comm:     st.Comm,
	}, true
}
