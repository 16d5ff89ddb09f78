// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package reconcile

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/checkpoint-restore/go-minicriu/internal/procfs"
	"github.com/checkpoint-restore/go-minicriu/internal/xlog"
)

// linuxCapV3 and capSysResource are the capget(2) ABI version and the bit
// index of CAP_SYS_RESOURCE, the capability PR_SET_MM's argv/exe-file
// subcommands require.
const (
	linuxCapV3     = 0x20080522
	capSysResource = 24
)

type capHeader struct {
	version uint32
	pid     int32
}

type capData struct {
	effective   uint32
	permitted   uint32
	inheritable uint32
}

// hasSysResource reports whether the calling process currently holds
// CAP_SYS_RESOURCE in its effective set, following the same capget(2)
// shape as the pack's caps_linux.go helper — root always has every
// capability, so that case short-circuits without a syscall.
func hasSysResource() bool {
	if os.Geteuid() == 0 {
		return true
	}
	hdr := capHeader{version: linuxCapV3}
	var data [2]capData
	if _, _, errno := unix.RawSyscall(unix.SYS_CAPGET, uintptr(unsafe.Pointer(&hdr)), uintptr(unsafe.Pointer(&data)), 0); errno != 0 {
		return false
	}
	effective := uint64(data[0].effective) | uint64(data[1].effective)<<32
	return effective&(1<<capSysResource) != 0
}

// Identity is the argv/exe-file metadata a checkpoint may want to restore
// verbatim via PR_SET_MM, or fall back to a comm-only rewrite for.
type Identity struct {
	ArgStart, ArgEnd uint64
	ExeFile          string
	Comm             string
}

// RestoreIdentity reinstates a process's recorded argv range and, if
// CAP_SYS_RESOURCE is held, its exe-file link via prctl(PR_SET_MM, ...);
// otherwise it falls back to rewriting /proc/self/comm, which needs no
// special privilege and at least keeps `ps`/`top` output recognizable.
//
// The PR_SET_MM_ARG_START/ARG_END ordering matters: the kernel rejects a
// new arg_start that would sit past the current arg_end (and vice versa),
// so when the new range lies wholly above the current one ARG_END is set
// first, and when it lies wholly below ARG_START is set first, to avoid a
// transient start >= end window the kernel would reject outright.
func RestoreIdentity(id Identity) error {
	if !hasSysResource() {
		return restoreCommOnly(id.Comm)
	}

	if err := setArgRange(id.ArgStart, id.ArgEnd); err != nil {
		xlog.Printf("reconcile: PR_SET_MM argv restore failed, falling back to comm: %v", err)
		return restoreCommOnly(id.Comm)
	}

	if id.ExeFile != "" {
		if err := setExeFile(id.ExeFile); err != nil {
			xlog.Printf("reconcile: PR_SET_MM_EXE_FILE restore failed: %v", err)
		}
	}
	return nil
}

func setArgRange(start, end uint64) error {
	// There is no PR_GET_MM_ARG_START/END prctl subcommand; the kernel
	// only exposes the current range via /proc/self/stat's arg_start/
	// arg_end fields (procfs.Stat already parses these), so that's where
	// we learn which bound is moving inward and must go first.
	st, err := procfs.ParseStatFile("/proc/self/stat")
	if err != nil {
		return fmt.Errorf("read current arg range: %w", err)
	}
	curStart, curEnd := st.ArgStart, st.ArgEnd

	setStart := func() error {
		return unix.Prctl(unix.PR_SET_MM, unix.PR_SET_MM_ARG_START, uintptr(start), 0, 0)
	}
	setEnd := func() error {
		return unix.Prctl(unix.PR_SET_MM, unix.PR_SET_MM_ARG_END, uintptr(end), 0, 0)
	}

	// Moving end outward first only matters when the new start would
	// otherwise exceed the current end; same for start.
	if start > curEnd {
		if err := setEnd(); err != nil {
			return fmt.Errorf("PR_SET_MM_ARG_END: %w", err)
		}
		return setStart()
	}
	if end < curStart {
		if err := setStart(); err != nil {
			return fmt.Errorf("PR_SET_MM_ARG_START: %w", err)
		}
		return setEnd()
	}
	if err := setStart(); err != nil {
		return fmt.Errorf("PR_SET_MM_ARG_START: %w", err)
	}
	return setEnd()
}

func setExeFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return unix.Prctl(unix.PR_SET_MM, unix.PR_SET_MM_EXE_FILE, f.Fd(), 0, 0)
}

// restoreCommOnly rewrites /proc/self/comm, the unprivileged fallback when
// PR_SET_MM's argv/exe-file subcommands are unavailable.
func restoreCommOnly(comm string) error {
	if comm == "" {
		return nil
	}
	if err := os.WriteFile("/proc/self/comm", []byte(comm), 0); err != nil {
		return fmt.Errorf("reconcile: write /proc/self/comm: %w", err)
	}
	return nil
}
