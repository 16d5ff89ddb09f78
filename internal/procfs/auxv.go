// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package procfs

import (
	"fmt"
	"io"
	"os"
)

// MaxAuxvBytes bounds the verbatim auxv capture, per spec.
const MaxAuxvBytes = 1024

// ReadAuxv reads /proc/<pid>/auxv verbatim, up to MaxAuxvBytes.
func ReadAuxv(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("procfs: open %s: %w", path, err)
	}
	defer f.Close()

	buf, err := io.ReadAll(io.LimitReader(f, MaxAuxvBytes))
	if err != nil {
		return nil, fmt.Errorf("procfs: read %s: %w", path, err)
	}
	return buf, nil
}
