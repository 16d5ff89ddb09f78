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

// Tasks lists the kernel thread ids in /proc/<pid>/task. Directory entries
// that don't parse as decimal integers (e.g. "." and "..", which on most
// kernels are elided already, but some overlay/fuse procfs mounts surface
// them) are skipped rather than treated as an error.
func Tasks(taskDir string) ([]int, error) {
	entries, err := os.ReadDir(taskDir)
	if err != nil {
		return nil, fmt.Errorf("procfs: readdir %s: %w", taskDir, err)
	}
	var tids []int
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		tid, err := strconv.Atoi(name)
		if err != nil {
			continue
		}
		tids = append(tids, tid)
	}
	return tids, nil
}

// ReadComm reads /proc/<pid>/comm, trimming the trailing newline the kernel
// always appends.
func ReadComm(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("procfs: open %s: %w", path, err)
	}
	return strings.TrimRight(string(b), "\n"), nil
}

// ReadExe resolves the /proc/<pid>/exe symlink to its target path.
func ReadExe(path string) (string, error) {
	target, err := os.Readlink(path)
	if err != nil {
		return "", fmt.Errorf("procfs: readlink %s: %w", path, err)
	}
	return target, nil
}

// ReadCmdline reads /proc/<pid>/cmdline and returns it with NUL separators
// converted to spaces, as NT_PRPSINFO's psargs field requires.
func ReadCmdline(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("procfs: open %s: %w", path, err)
	}
	b = []byte(strings.TrimRight(string(b), "\x00"))
	for i, c := range b {
		if c == 0 {
			b[i] = ' '
		}
	}
	return string(b), nil
}
