// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rendezvous

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// futexWait blocks while *addr == val, exactly like the FUTEX_WAIT
// contract: a mismatching value means someone already changed it and the
// wait returns immediately. Open-coded via a raw syscall rather than a
// library wrapper because golang.org/x/sys/unix does not expose futex(2)
// (it is a kernel-only primitive with no libc wrapper to mirror), matching
// spec.md §9's own note that the CHECKPOINT handler cannot use an
// errno-setting library wrapper at that point in the protocol anyway.
//
// spec.md §9's note is about the original's signal-handler context, which
// this Go rewrite never runs in (see the package doc comment); futex is
// still open-coded here for the same missing-wrapper reason, not because
// any caller of futexWait runs inside a signal handler.
func futexWait(addr *uint32, val uint32) {
	for {
		_, _, errno := unix.Syscall6(unix.SYS_FUTEX,
			uintptr(unsafe.Pointer(addr)), uintptr(futexWaitOp), uintptr(val), 0, 0, 0)
		if errno == 0 || errno == unix.EAGAIN {
			if atomic.LoadUint32(addr) != val {
				return
			}
			continue
		}
		if errno == unix.EINTR {
			continue
		}
		// Any other errno (EFAULT, etc.) means the address is no longer
		// valid; stop waiting rather than spin forever.
		return
	}
}

// futexWake wakes up to n waiters on addr.
func futexWake(addr *uint32, n int) {
	unix.Syscall6(unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)), uintptr(futexWakeOp), uintptr(n), 0, 0, 0)
}

const (
	futexWaitOp = 0 // FUTEX_WAIT
	futexWakeOp = 1 // FUTEX_WAKE
)
