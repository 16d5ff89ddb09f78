// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package coredump

import (
	"encoding/binary"
	"testing"

	"github.com/checkpoint-restore/go-minicriu/internal/procfs"
	"github.com/checkpoint-restore/go-minicriu/internal/tracer"
)

func TestBuildPRStatusPidAndRegisters(t *testing.T) {
	st := tracer.Status{
		Tid: 4321,
		R15: 0x15, R8: 0x8, Rax: 0xaa,
		Rip: 0x401000, Rsp: 0x7ffe0000, Rflags: 0x246,
		FSBase: 0xdead, GSBase: 0xbeef,
	}
	buf := buildPRStatus(st)
	if len(buf) != prstatusSize {
		t.Fatalf("len = %d, want %d", len(buf), prstatusSize)
	}
	if got := binary.LittleEndian.Uint32(buf[prPidOffset : prPidOffset+4]); got != uint32(st.Tid) {
		t.Errorf("pr_pid = %d, want %d", got, st.Tid)
	}
	// pr_reg[0] is r15, the first of the 27 registers at prRegOffset.
	if got := binary.LittleEndian.Uint64(buf[prRegOffset : prRegOffset+8]); got != st.R15 {
		t.Errorf("pr_reg[0] (r15) = %#x, want %#x", got, st.R15)
	}
	// rip is the 17th register (index 16): rbp rbx r11 r10 r9 r8 rax rcx
	// rdx rsi rdi orig_rax rip -> index 16.
	ripOff := prRegOffset + 16*8
	if got := binary.LittleEndian.Uint64(buf[ripOff : ripOff+8]); got != st.Rip {
		t.Errorf("pr_reg[16] (rip) = %#x, want %#x", got, st.Rip)
	}
}

func TestBuildPRPSInfoTruncatesLongFields(t *testing.T) {
	longComm := "a-very-long-comm-that-exceeds-sixteen-bytes"
	buf := buildPRPSInfo(99, 'R', longComm, "arg0 arg1")
	if len(buf) != prpsinfoSize {
		t.Fatalf("len = %d, want %d", len(buf), prpsinfoSize)
	}
	if buf[0] != 'R' || buf[1] != 'R' {
		t.Errorf("state/sname = %q/%q, want R/R", buf[0], buf[1])
	}
	if got := binary.LittleEndian.Uint32(buf[24:28]); got != 99 {
		t.Errorf("pr_pid = %d, want 99", got)
	}
	fname := string(buf[40:56])
	if len(longComm[:15]) != 15 || fname[:15] != longComm[:15] {
		t.Errorf("fname not truncated to 15 bytes: %q", fname)
	}
}

func TestFileTableFromMappingsExcludesPseudo(t *testing.T) {
	mappings := []procfs.Mapping{
		{Start: 0x1000, End: 0x2000, Offset: 0, Path: "/usr/bin/demo", HasPath: true},
		{Start: 0x2000, End: 0x3000, Path: "[heap]", HasPath: true},
		{Start: 0x3000, End: 0x4000, Path: "[vsyscall]", HasPath: true},
		{Start: 0x4000, End: 0x5000}, // anonymous
	}
	got := fileTableFromMappings(mappings)
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1 (only the file-backed mapping)", len(got))
	}
	if got[0].Path != "/usr/bin/demo" {
		t.Errorf("Path = %q, want /usr/bin/demo", got[0].Path)
	}
}

func TestBuildNTFileLayout(t *testing.T) {
	entries := []fileTableEntry{
		{Start: 0x1000, End: 0x3000, OffsetPage: 0, Path: "/bin/a"},
		{Start: 0x4000, End: 0x5000, OffsetPage: 2, Path: "/bin/b"},
	}
	buf := buildNTFile(entries)

	count := binary.LittleEndian.Uint64(buf[0:8])
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
	if ps := binary.LittleEndian.Uint64(buf[8:16]); ps != pageSize {
		t.Errorf("page size = %d, want %d", ps, pageSize)
	}

	triplesOff := 16
	start0 := binary.LittleEndian.Uint64(buf[triplesOff : triplesOff+8])
	if start0 != 0x1000 {
		t.Errorf("first triple start = %#x, want 0x1000", start0)
	}

	pathsOff := triplesOff + len(entries)*24
	rest := string(buf[pathsOff:])
	want := "/bin/a\x00/bin/b\x00"
	if rest != want {
		t.Errorf("path table = %q, want %q", rest, want)
	}
}

func TestBuildSegmentsOffsetsMonotonic(t *testing.T) {
	mappings := []procfs.Mapping{
		{Start: 0x1000, End: 0x2000, Read: true, Write: true},
		{Start: 0x2000, End: 0x2000 + 3000, Read: true},
		{Start: 0x400000, End: 0x401000}, // "---" guard page: filesz 0
	}
	segs := buildSegments(mappings, 200)
	if len(segs) != 3 {
		t.Fatalf("len = %d, want 3", len(segs))
	}
	if segs[0].offset%loadAlign != 0 {
		t.Errorf("first segment offset %d not page-aligned", segs[0].offset)
	}
	if segs[2].filesz != 0 {
		t.Errorf("guard-page segment filesz = %d, want 0", segs[2].filesz)
	}
	for i := 1; i < len(segs); i++ {
		if segs[i].offset < segs[i-1].offset+segs[i-1].filesz {
			t.Errorf("segment %d offset %d overlaps segment %d (ends at %d)",
				i, segs[i].offset, i-1, segs[i-1].offset+segs[i-1].filesz)
		}
	}
}

func TestLoadableMappingsExcludesVsyscallOnly(t *testing.T) {
	mappings := []procfs.Mapping{
		{Path: "[heap]", HasPath: true},
		{Path: "[vsyscall]", HasPath: true},
		{Path: "/bin/demo", HasPath: true},
	}
	got := loadableMappings(mappings)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	for _, m := range got {
		if m.Vsyscall() {
			t.Errorf("vsyscall mapping leaked through: %+v", m)
		}
	}
}
