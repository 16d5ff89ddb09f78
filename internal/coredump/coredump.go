// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package coredump is the Core Emitter (spec.md §4.6). It assembles the
// ELF64 program headers and notes gathered by internal/procfs and
// internal/tracer into a single "minicriu-core.<pid>" file, using
// internal/elfwriter for the low-level sequential write.
package coredump

import (
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/checkpoint-restore/go-minicriu/internal/elfwriter"
	"github.com/checkpoint-restore/go-minicriu/internal/procfs"
	"github.com/checkpoint-restore/go-minicriu/internal/reclist"
	"github.com/checkpoint-restore/go-minicriu/internal/tracer"
	"github.com/checkpoint-restore/go-minicriu/internal/xlog"
)

// ProcessInfo carries the NT_PRPSINFO fields that aren't derivable from a
// mapping or a register snapshot.
type ProcessInfo struct {
	Pid   int
	State byte // e.g. 'R' running, 'S' sleeping; see procfs.Stat.State
	Comm  string
	Args  string // space-joined argv, from /proc/self/cmdline
}

// Input bundles everything the emitter needs: the process's own metadata,
// its memory map, its raw auxv blob, and one Status per participating
// thread with the dumping thread first (spec.md §4.6 requires the dumper's
// own NT_PRSTATUS appear before its siblings').
type Input struct {
	Proc     ProcessInfo
	Mappings []procfs.Mapping
	Auxv     []byte
	Threads  []tracer.Status
}

// notePayload pairs a note type with its already-serialized payload bytes.
type notePayload struct {
	typ     elf.NType
	payload []byte
}

// Emit writes a complete core file to path. The on-disk layout is: ELF
// header, PT_NOTE program header, one PT_LOAD program header per loadable
// mapping, the note segment (prpsinfo, auxv, one prstatus per thread, then
// file), then each PT_LOAD's payload bytes in program-header order.
func Emit(path string, in Input) error {
	mappings := loadableMappings(in.Mappings)

	notes := buildNotes(in)
	notesSize := notesFileSize(payloadBytes(notes))

	phnum := 1 + len(mappings) // PT_NOTE + one PT_LOAD per mapping
	notesOffset := uint64(ehdrSize) + uint64(phnum)*phdrSize
	segs := buildSegments(mappings, notesOffset+notesSize)

	w, err := elfwriter.Open(path)
	if err != nil {
		return fmt.Errorf("coredump: %w", err)
	}
	defer w.Close()

	if err := w.WriteELFHeader(uint16(phnum)); err != nil {
		return fmt.Errorf("coredump: %w", err)
	}
	if err := w.WriteProgramHeader(elf.PT_NOTE, 0, notesOffset, 0, notesSize, notesSize, 4); err != nil {
		return fmt.Errorf("coredump: %w", err)
	}
	for _, s := range segs {
		if err := w.WriteProgramHeader(elf.PT_LOAD, s.flags, s.offset, s.mapping.Start, s.filesz, s.memsz, loadAlign); err != nil {
			return fmt.Errorf("coredump: %w", err)
		}
	}

	for _, n := range notes {
		if err := w.WriteNote(n.typ, n.payload); err != nil {
			return fmt.Errorf("coredump: %w", err)
		}
	}

	if err := writePayloads(w, segs); err != nil {
		return fmt.Errorf("coredump: %w", err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("coredump: %w", err)
	}
	xlog.Printf("coredump: wrote %s (%d mappings, %d threads)", path, len(mappings), len(in.Threads))
	return nil
}

// buildNotes assembles the note list in on-disk order: prpsinfo, auxv, one
// prstatus per thread (dumper first, since Input.Threads is constructed
// that way), then file. Backed by reclist.List rather than a bare slice:
// this is the growable, pre-reserved record sequence internal/reclist
// exists for, sized against the thread-count hint since one NT_PRSTATUS
// per thread dominates its length.
func buildNotes(in Input) []notePayload {
	// debug/elf defines NT_PRSTATUS and NT_PRPSINFO but not these two.
	const (
		ntAuxv elf.NType = 6
		ntFile elf.NType = 0x46494c45 // "FILE"
	)
	notes := reclist.New[notePayload](reclist.MaxThreads)
	notes.Append(notePayload{elf.NT_PRPSINFO, buildPRPSInfo(in.Proc.Pid, in.Proc.State, in.Proc.Comm, in.Proc.Args)})
	notes.Append(notePayload{ntAuxv, buildAuxv(in.Auxv)})
	for _, st := range in.Threads {
		notes.Append(notePayload{elf.NT_PRSTATUS, buildPRStatus(st)})
	}
	notes.Append(notePayload{ntFile, buildNTFile(fileTableFromMappings(in.Mappings))})
	return notes.Slice()
}

func payloadBytes(notes []notePayload) [][]byte {
	out := make([][]byte, len(notes))
	for i, n := range notes {
		out[i] = n.payload
	}
	return out
}

// writePayloads reads each segment's bytes from /proc/self/mem and writes
// them in program-header order. A read that fails with EFAULT or EIO (a
// mapping that looked readable in /proc/self/maps but faults on access — a
// lazily-unmapped page, or a reservation with no backing) is recovered by
// zero-filling the remainder rather than aborting the whole dump, matching
// the "best effort over all-or-nothing" posture spec.md §4.6 describes for
// PT_LOAD payloads.
func writePayloads(w *elfwriter.Writer, segs []segment) error {
	mem, err := os.OpenFile("/proc/self/mem", os.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("open /proc/self/mem: %w", err)
	}
	defer mem.Close()

	for _, s := range segs {
		if s.filesz == 0 {
			continue
		}
		if err := copySegment(w, mem, s); err != nil {
			return err
		}
	}
	return nil
}

// copySegment streams one mapping's bytes through a fixed-size buffer,
// zero-filling any run that /proc/self/mem refuses with EFAULT or EIO.
func copySegment(w *elfwriter.Writer, mem *os.File, s segment) error {
	const chunk = 1 << 20
	buf := make([]byte, chunk)

	remaining := s.filesz
	addr := int64(s.mapping.Start)
	for remaining > 0 {
		n := uint64(chunk)
		if remaining < n {
			n = remaining
		}
		read, err := mem.ReadAt(buf[:n], addr)
		if err != nil && !errors.Is(err, io.EOF) {
			if errors.Is(err, syscall.EFAULT) || errors.Is(err, syscall.EIO) {
				xlog.Printf("coredump: zero-filling unreadable range %#x-%#x (%s)", addr, addr+int64(n), s.mapping.Path)
				if err := w.WritePadding(int(n)); err != nil {
					return err
				}
				addr += int64(n)
				remaining -= n
				continue
			}
			return fmt.Errorf("read %#x from /proc/self/mem: %w", addr, err)
		}
		if uint64(read) < n {
			if err := w.Write(buf[:read]); err != nil {
				return err
			}
			if err := w.WritePadding(int(n) - read); err != nil {
				return err
			}
		} else if err := w.Write(buf[:n]); err != nil {
			return err
		}
		addr += int64(n)
		remaining -= n
	}
	return nil
}
