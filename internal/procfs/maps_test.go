// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package procfs

import "testing"

func TestParseMapsLine(t *testing.T) {
	cases := []struct {
		line string
		want Mapping
	}{
		{
			line: "00400000-00452000 r-xp 00000000 08:02 173521 /usr/bin/dbus-daemon",
			want: Mapping{Start: 0x400000, End: 0x452000, Read: true, Exec: true, Private: true, Path: "/usr/bin/dbus-daemon", HasPath: true},
		},
		{
			line: "7ffedcba0000-7ffedcbc1000 rw-p 00000000 00:00 0                          [stack]",
			want: Mapping{Start: 0x7ffedcba0000, End: 0x7ffedcbc1000, Read: true, Write: true, Private: true, Path: "[stack]", HasPath: true},
		},
		{
			line: "7f1234500000-7f1234600000 ---p 00000000 00:00 0",
			want: Mapping{Start: 0x7f1234500000, End: 0x7f1234600000},
		},
	}
	for _, c := range cases {
		got, err := parseMapsLine(c.line)
		if err != nil {
			t.Fatalf("parseMapsLine(%q): %v", c.line, err)
		}
		if got.Start != c.want.Start || got.End != c.want.End ||
			got.Read != c.want.Read || got.Write != c.want.Write ||
			got.Exec != c.want.Exec || got.Path != c.want.Path {
			t.Errorf("parseMapsLine(%q) = %+v, want %+v", c.line, got, c.want)
		}
	}
}

func TestMappingPseudoAndVsyscall(t *testing.T) {
	m := Mapping{Path: "[vsyscall]"}
	if !m.Pseudo() {
		t.Error("Pseudo() = false, want true")
	}
	if !m.Vsyscall() {
		t.Error("Vsyscall() = false, want true")
	}
	m2 := Mapping{Path: "/lib/libc.so"}
	if m2.Pseudo() {
		t.Error("Pseudo() = true for a file-backed mapping")
	}
}

func TestParseMapsLineMalformed(t *testing.T) {
	if _, err := parseMapsLine("garbage"); err == nil {
		t.Fatal("expected error for malformed line")
	}
}
