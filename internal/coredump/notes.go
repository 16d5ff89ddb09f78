// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package coredump

import (
	"bytes"
	"encoding/binary"

	"github.com/checkpoint-restore/go-minicriu/internal/procfs"
	"github.com/checkpoint-restore/go-minicriu/internal/reclist"
	"github.com/checkpoint-restore/go-minicriu/internal/tracer"
)

// prstatusSize is sizeof(struct elf_prstatus) on x86_64 Linux.
const prstatusSize = 336

// prPidOffset and prRegOffset/prRegSize are the byte offsets the teacher's
// core-file reader (internal/core/process.go) documents for struct
// elf_prstatus and elf_gregset_t on amd64; used here in reverse, to write
// rather than read.
const (
	prPidOffset = 32
	prRegOffset = 112
	prRegSize   = 216 // 27 registers * 8 bytes
)

// buildPRStatus serializes one Status into an NT_PRSTATUS payload. Register
// order within pr_reg matches the teacher's documented layout exactly:
// r15 r14 r13 r12 rbp rbx r11 r10 r9 r8 rax rcx rdx rsi rdi orig_rax rip cs
// eflags rsp ss fs_base gs_base ds es fs gs.
func buildPRStatus(st tracer.Status) []byte {
	buf := make([]byte, prstatusSize)
	binary.LittleEndian.PutUint32(buf[prPidOffset:prPidOffset+4], uint32(st.Tid))

	regs := []uint64{
		st.R15, st.R14, st.R13, st.R12,
		st.Rbp, st.Rbx,
		st.R11, st.R10, st.R9, st.R8,
		st.Rax, st.Rcx, st.Rdx,
		st.Rsi, st.Rdi,
		0, // orig_rax: not meaningful outside an actual syscall-entry trap
		st.Rip,
		0, // cs
		st.Rflags,
		st.Rsp,
		0, // ss
		st.FSBase, st.GSBase,
		0, 0, // ds, es
		0, 0, // fs, gs (selectors; fs_base/gs_base above are what matters)
	}
	off := prRegOffset
	for _, r := range regs {
		binary.LittleEndian.PutUint64(buf[off:off+8], r)
		off += 8
	}
	return buf
}

// prpsinfoSize is sizeof(struct elf_prpsinfo) on x86_64 Linux.
const prpsinfoSize = 136

// buildPRPSInfo serializes the process-info note: state, short program
// name, and the space-joined command line.
func buildPRPSInfo(pid int, state byte, comm, args string) []byte {
	buf := make([]byte, prpsinfoSize)
	buf[0] = state // pr_state
	buf[1] = state // pr_sname
	if state == 'Z' {
		buf[2] = 1 // pr_zomb
	}
	binary.LittleEndian.PutUint32(buf[24:28], uint32(pid))

	fname := comm
	if len(fname) > 15 {
		fname = fname[:15]
	}
	copy(buf[40:56], fname)

	psargs := args
	if len(psargs) > 79 {
		psargs = psargs[:79]
	}
	copy(buf[56:136], psargs)
	return buf
}

// buildAuxv returns the auxv note payload: the verbatim blob captured from
// /proc/self/auxv.
func buildAuxv(raw []byte) []byte {
	return raw
}

// fileTableEntry is one (start, end, offset-in-pages) triple plus its
// backing path, used to build the NT_FILE note.
type fileTableEntry struct {
	Start, End uint64
	OffsetPage uint64
	Path       string
}

// fileTableFromMappings filters procfs.Mapping values down to the
// file-backed, non-pseudo entries NT_FILE must list, per spec.md §3: paths
// beginning with '[' are excluded, and [vsyscall] is always excluded
// (redundantly, since its path begins with '[' too, but called out
// explicitly since its PT_LOAD is skipped by a different code path). Built
// via reclist.List, the map-snapshot-entry list internal/reclist exists
// for, pre-reserved against the same program-header-count hint as
// buildSegments since this list and the PT_LOAD list are drawn from the
// same mapping set.
func fileTableFromMappings(mappings []procfs.Mapping) []fileTableEntry {
	out := reclist.New[fileTableEntry](reclist.MaxProgramHeaders)
	for _, m := range mappings {
		if !m.HasPath || m.Pseudo() {
			continue
		}
		out.Append(fileTableEntry{
			Start:      m.Start,
			End:        m.End,
			OffsetPage: m.OffsetPages(),
			Path:       m.Path,
		})
	}
	return out.Slice()
}

const pageSize = 4096

// buildNTFile serializes the NT_FILE note: count, page size, the
// (start,end,offset) triples, then the concatenated NUL-terminated paths
// in the same order, per spec.md §4.6.
func buildNTFile(entries []fileTableEntry) []byte {
	var buf bytes.Buffer
	var tmp [8]byte

	putU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(tmp[:], v)
		buf.Write(tmp[:])
	}

	putU64(uint64(len(entries)))
	putU64(pageSize)
	for _, e := range entries {
		putU64(e.Start)
		putU64(e.End)
		putU64(e.OffsetPage)
	}
	for _, e := range entries {
		buf.WriteString(e.Path)
		buf.WriteByte(0)
	}
	return buf.Bytes()
}
