// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elfwriter

import (
	"debug/elf"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteELFHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "core")
	w, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteELFHeader(3); err != nil {
		t.Fatal(err)
	}
	// The header announces 3 program headers, so write them: elf.Open reads
	// the whole program-header table.
	for i := 0; i < 3; i++ {
		if err := w.WriteProgramHeader(elf.PT_LOAD, elf.PF_R, 0, 0, 0, 0, 4096); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := elf.Open(path)
	if err != nil {
		t.Fatalf("produced file is not valid ELF: %v", err)
	}
	defer f.Close()

	if f.Type != elf.ET_CORE {
		t.Errorf("Type = %v, want ET_CORE", f.Type)
	}
	if f.Machine != elf.EM_X86_64 {
		t.Errorf("Machine = %v, want EM_X86_64", f.Machine)
	}
	if f.Class != elf.ELFCLASS64 {
		t.Errorf("Class = %v, want ELFCLASS64", f.Class)
	}
}

func TestWriteNoteAlignment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "core")
	w, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteELFHeader(0); err != nil {
		t.Fatal(err)
	}
	// 3-byte payload forces padding both after the name and after the data.
	if err := w.WriteNote(elf.NT_PRPSINFO, []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if w.Offset()%4 != 0 {
		t.Errorf("offset %d not 4-byte aligned after note", w.Offset())
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNoteSizeMatchesWritten(t *testing.T) {
	path := filepath.Join(t.TempDir(), "core")
	w, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteELFHeader(0); err != nil {
		t.Fatal(err)
	}
	before := w.Offset()
	payload := []byte("hello, core")
	if err := w.WriteNote(elf.NType(6) /* NT_AUXV */, payload); err != nil {
		t.Fatal(err)
	}
	got := w.Offset() - before
	want := NoteSize(len(payload))
	if got != want {
		t.Errorf("note wrote %d bytes, NoteSize predicted %d", got, want)
	}
	w.Close()
}

func TestCloseTwiceIsSafeOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "core")
	w, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	w.WriteELFHeader(0)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	// A second Close reports the already-closed file; only the on-disk
	// result is checked here.
	w.Close()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("core file missing after close: %v", err)
	}
}
