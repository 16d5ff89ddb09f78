// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package procfs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Stat holds the fields of /proc/<pid>/stat this package cares about. Only
// fields up through ArgEnd (48-49) are populated; see
// https://man7.org/linux/man-pages/man5/proc.5.html.
type Stat struct {
	Pid      int
	Comm     string
	State    byte
	PPid     int
	ArgStart uint64 // field 48
	ArgEnd   uint64 // field 49
}

// ParseStatFile parses a /proc/<pid>/stat file. The comm field (2nd field)
// is tolerant of whitespace and parentheses: it is everything between the
// first '(' and the last ')', per the man page's own warning that a process
// can name itself almost anything.
func ParseStatFile(path string) (*Stat, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("procfs: open %s: %w", path, err)
	}
	return parseStat(string(raw))
}

func parseStat(s string) (*Stat, error) {
	s = strings.TrimRight(s, "\n")

	open := strings.IndexByte(s, '(')
	shut := strings.LastIndexByte(s, ')')
	if open < 0 || shut < 0 || shut < open {
		return nil, fmt.Errorf("procfs: malformed stat line, no (comm): %q", s)
	}

	pidField := strings.TrimSpace(s[:open])
	pid, err := strconv.Atoi(pidField)
	if err != nil {
		return nil, fmt.Errorf("procfs: bad pid field %q: %w", pidField, err)
	}
	comm := s[open+1 : shut]

	rest := strings.Fields(s[shut+1:])
	// rest[0] is field 3 (state); field N (1-indexed overall) is rest[N-3].
	st := &Stat{Pid: pid, Comm: comm}
	if len(rest) > 0 {
		st.State = rest[0][0]
	}
	field := func(n int) (string, bool) {
		i := n - 3
		if i < 0 || i >= len(rest) {
			return "", false
		}
		return rest[i], true
	}
	if v, ok := field(4); ok {
		if i, err := strconv.Atoi(v); err == nil {
			st.PPid = i
		}
	}
	argStart, okStart := field(48)
	argEnd, okEnd := field(49)
	if !okStart || !okEnd {
		return st, fmt.Errorf("procfs: stat line has only %d fields, missing argv range", len(rest)+2)
	}
	v, err := strconv.ParseUint(argStart, 10, 64)
	if err != nil {
		return st, fmt.Errorf("procfs: bad ArgStart %q: %w", argStart, err)
	}
	st.ArgStart = v
	v, err = strconv.ParseUint(argEnd, 10, 64)
	if err != nil {
		return st, fmt.Errorf("procfs: bad ArgEnd %q: %w", argEnd, err)
	}
	st.ArgEnd = v
	return st, nil
}
