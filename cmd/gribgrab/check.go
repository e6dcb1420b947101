package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func runCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ExitOnError)

	load := configFlags(fs)

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: gribgrab check [options]

Probe every index file a fetch would need and report whether the cycle
is available. Availability is all-or-nothing: a single missing index
means the cycle has not finished publishing.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	cfg, err := load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	_, dl, err := buildDownload(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	ok, err := dl.Exists(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitGeneralError
	}

	cycle := cfg.Cycle.Format("2006010215")
	if !ok {
		fmt.Printf("cycle %s: not available\n", cycle)
		return ExitNotAvailable
	}
	fmt.Printf("cycle %s: available\n", cycle)
	return ExitSuccess
}
