package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/davesproson/gribgrab/internal/nomads"
)

func runPlan(args []string) int {
	fs := flag.NewFlagSet("plan", flag.ExitOnError)

	load := configFlags(fs)
	urls := fs.Bool("urls", false, "Print full data and index URLs")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: gribgrab plan [options]

Print the steps a fetch would download for the given cycle, resolution,
horizon and minimum step interval. No network calls are made.

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

	plan, err := nomads.NewPlan(cfg.Endpoint(), cfg.Cycle, cfg.Resolution, cfg.Horizon, cfg.MinStep)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if *urls {
		fmt.Fprintln(w, "STEP\tDATA URL\tINDEX URL")
		for _, sp := range plan.Steps {
			fmt.Fprintf(w, "%d\t%s\t%s\n", sp.Step, sp.DataURL, sp.IndexURL)
		}
	} else {
		fmt.Fprintln(w, "STEP\tFILE")
		for _, sp := range plan.Steps {
			fmt.Fprintf(w, "%d\t%s\n", sp.Step, sp.Filename)
		}
	}
	w.Flush()

	fmt.Fprintf(os.Stderr, "[gribgrab] %d steps planned\n", len(plan.Steps))
	return ExitSuccess
}
