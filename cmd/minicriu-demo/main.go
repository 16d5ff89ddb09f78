// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The minicriu-demo tool is a small multi-threaded program that exercises
// the checkpoint facility: it spawns a handful of worker goroutines that
// register with criu, then triggers a checkpoint dump either on SIGINT or
// from an interactive "dump" command.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	criu "github.com/checkpoint-restore/go-minicriu"
	"github.com/checkpoint-restore/go-minicriu/internal/xlog"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var workers int
	var interactive bool

	root := &cobra.Command{
		Use:   "minicriu-demo",
		Short: "Exercise the minicriu checkpoint facility against a multi-threaded demo workload",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), workers, interactive)
		},
	}
	root.Flags().IntVar(&workers, "workers", 4, "number of worker goroutines to register")
	root.Flags().BoolVar(&interactive, "interactive", false, "drive dumps from a readline prompt instead of SIGINT")
	return root
}

// run spawns workers, each of which registers with criu and then runs the
// Participate loop forever, and blocks until either SIGINT fires a dump
// (the default) or, in --interactive mode, the user types "dump" at a
// prompt driven by chzyer/readline.
func run(ctx context.Context, workers int, interactive bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	dumper, err := criu.Register()
	if err != nil {
		return fmt.Errorf("registering dumper goroutine: %w", err)
	}
	defer criu.Unregister(dumper)

	for i := 0; i < workers; i++ {
		go spawnWorker(ctx, i)
	}

	if interactive {
		return runInteractive(ctx, dumper)
	}
	return runUntilSignal(ctx, dumper)
}

// spawnWorker registers one worker goroutine and keeps it participating in
// the checkpoint protocol for the program's lifetime; this is the one
// goroutine-lifecycle invariant criu.Participate requires (same goroutine
// that registered, for as long as the process runs).
func spawnWorker(ctx context.Context, id int) {
	th, err := criu.Register()
	if err != nil {
		xlog.Printf("worker %d: register failed: %v", id, err)
		return
	}
	defer criu.Unregister(th)

	if err := criu.Participate(ctx, th); err != nil {
		xlog.Printf("worker %d: participate returned: %v", id, err)
	}
}

func runUntilSignal(ctx context.Context, dumper *criu.Thread) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case <-sigCh:
	case <-ctx.Done():
		return ctx.Err()
	}

	fmt.Fprintln(os.Stderr, "minicriu-demo: SIGINT received, dumping")
	return criu.Dump(dumper)
}

// runInteractive drives dumps from a readline prompt: typing "dump" runs
// one, "quit" (or "exit") exits. Any other non-empty input prints a one-line
// hint naming those commands; this is a demo harness, not a shell.
func runInteractive(ctx context.Context, dumper *criu.Thread) error {
	rl, err := newReadline()
	if err != nil {
		return fmt.Errorf("starting readline: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			return nil // EOF or Ctrl-D: treat as a clean exit
		}
		switch line {
		case "dump":
			if err := criu.Dump(dumper); err != nil {
				fmt.Fprintf(os.Stderr, "dump failed: %v\n", err)
			} else {
				fmt.Fprintln(os.Stderr, "dump written")
			}
		case "quit", "exit":
			return nil
		case "":
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q (try: dump, quit)\n", line)
		}
	}
}

// pidSuffix is used only to vary the demo's prompt when more than one
// instance is run side by side during manual testing.
func pidSuffix() string {
	return strconv.Itoa(os.Getpid())
}
