// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/chzyer/readline"
)

// newReadline builds the interactive prompt. The pid suffix makes it easy
// to tell two side-by-side demo instances apart during manual testing.
func newReadline() (*readline.Instance, error) {
	return readline.New(fmt.Sprintf("minicriu[%s]> ", pidSuffix()))
}
