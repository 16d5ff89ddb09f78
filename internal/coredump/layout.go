// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package coredump

import (
	"debug/elf"

	"github.com/checkpoint-restore/go-minicriu/internal/elfwriter"
	"github.com/checkpoint-restore/go-minicriu/internal/procfs"
	"github.com/checkpoint-restore/go-minicriu/internal/reclist"
)

const (
	ehdrSize  = 64
	phdrSize  = 56
	loadAlign = 4096
)

// segment is one PT_LOAD the emitter will write: its program-header fields
// plus the mapping it came from, carried along so the payload-writing pass
// doesn't need to re-derive which bytes belong to which header.
type segment struct {
	mapping procfs.Mapping
	offset  uint64
	filesz  uint64
	memsz   uint64
	flags   elf.ProgFlag
}

// loadableMappings filters out the mappings that never get a PT_LOAD: the
// vsyscall page, always, per spec.md §3. Pseudo-regions like [stack] and
// [heap] DO get PT_LOADs; only [vsyscall] is special-cased out, since its
// page is neither readable via /proc/self/mem nor meaningful to restore.
func loadableMappings(mappings []procfs.Mapping) []procfs.Mapping {
	var out []procfs.Mapping
	for _, m := range mappings {
		if m.Vsyscall() {
			continue
		}
		out = append(out, m)
	}
	return out
}

// buildSegments computes the PT_LOAD layout: offsets packed immediately
// after the note segment, each subsequent offset rounded up to loadAlign
// from the previous segment's (offset + filesz), per spec.md §4.6. A
// mapping whose permission triple is "---" carries no bytes in the file
// (filesz 0); every other mapping's filesz equals its memsz, and recovery
// from unreadable-but-not-"---" pages happens later, at payload-write time,
// by zero-filling rather than by shrinking filesz. The program-header list
// is built with reclist.List, pre-reserved to reclist.MaxProgramHeaders.
func buildSegments(mappings []procfs.Mapping, notesEnd uint64) []segment {
	segs := reclist.New[segment](reclist.MaxProgramHeaders)
	next := alignUp(notesEnd, loadAlign)
	for _, m := range mappings {
		memsz := m.End - m.Start
		filesz := uint64(0)
		dumped := m.Read || m.Write || m.Exec
		if dumped {
			filesz = memsz
		}

		var flags elf.ProgFlag
		if m.Read {
			flags |= elf.PF_R
		}
		if m.Write {
			flags |= elf.PF_W
		}
		if m.Exec {
			flags |= elf.PF_X
		}

		segs.Append(segment{
			mapping: m,
			offset:  next,
			filesz:  filesz,
			memsz:   memsz,
			flags:   flags,
		})
		next = alignUp(next+filesz, loadAlign)
	}
	return segs.Slice()
}

func alignUp(v, align uint64) uint64 {
	rem := v % align
	if rem == 0 {
		return v
	}
	return v + (align - rem)
}

// notesFileSize sums the on-disk size of every note this dump will write,
// in the order buildNotes assembles them, so the PT_NOTE program header and
// the first PT_LOAD's offset can be computed before any bytes are written.
func notesFileSize(notes [][]byte) uint64 {
	var total uint64
	for _, n := range notes {
		total += elfwriter.NoteSize(len(n))
	}
	return total
}
