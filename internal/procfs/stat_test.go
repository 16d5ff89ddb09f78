// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package procfs

import (
	"fmt"
	"strings"
	"testing"
)

// buildStatLine constructs a synthetic /proc/<pid>/stat line with comm,
// state and an argv range at the correct field positions (48, 49),
// regardless of how many filler fields precede them.
func buildStatLine(pid int, comm string, state byte, argStart, argEnd uint64) string {
	// rest[0] is field 3 (state); argStart is field 48 => rest[45];
	// argEnd is field 49 => rest[46]. So we need 45 filler tokens
	// (state + 44 more) before the two range values.
	fillers := make([]string, 0, 45)
	fillers = append(fillers, string(state))
	for i := 0; i < 44; i++ {
		fillers = append(fillers, "0")
	}
	return fmt.Sprintf("%d (%s) %s %d %d",
		pid, comm, strings.Join(fillers, " "), argStart, argEnd)
}

func TestParseStatNormal(t *testing.T) {
	line := buildStatLine(1234, "myproc", 'S', 140737488347136, 140737488347152)
	st, err := parseStat(line)
	if err != nil {
		t.Fatal(err)
	}
	if st.Pid != 1234 {
		t.Errorf("Pid = %d, want 1234", st.Pid)
	}
	if st.Comm != "myproc" {
		t.Errorf("Comm = %q, want myproc", st.Comm)
	}
	if st.ArgStart != 140737488347136 {
		t.Errorf("ArgStart = %d", st.ArgStart)
	}
	if st.ArgEnd != 140737488347152 {
		t.Errorf("ArgEnd = %d", st.ArgEnd)
	}
}

func TestParseStatWeirdComm(t *testing.T) {
	// A process whose name contains spaces and parens.
	line := buildStatLine(55, "weird (na me) ", 'R', 1000, 2000)
	st, err := parseStat(line)
	if err != nil {
		t.Fatal(err)
	}
	if st.Comm != "weird (na me) " {
		t.Errorf("Comm = %q", st.Comm)
	}
	if st.State != 'R' {
		t.Errorf("State = %c, want R", st.State)
	}
}

func TestParseStatTruncated(t *testing.T) {
	if _, err := parseStat("12 (x) R 1 12 12"); err == nil {
		t.Fatal("expected error for truncated stat line")
	}
}
