package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/davesproson/gribgrab/internal/config"
	"github.com/davesproson/gribgrab/internal/downloader"
	gribhttp "github.com/davesproson/gribgrab/internal/http"
	"github.com/davesproson/gribgrab/internal/nomads"
	"github.com/davesproson/gribgrab/internal/progress"
)

// configFlags registers the flags shared by every command that builds a
// download plan, and returns a loader that assembles the final Config
// from file, environment and flags (in increasing precedence).
func configFlags(fs *flag.FlagSet) func() (config.Config, error) {
	configPath := fs.String("config", "", "YAML configuration file")
	cycle := fs.String("cycle", "", "Forecast cycle as YYYYMMDDHH (required)")
	resolution := fs.String("resolution", "", "Grid resolution in degrees (0.25, 0.5, 1, 2.5)")
	horizon := fs.Int("horizon", 0, "Maximum lead time in hours, -1 for unbounded")
	minStep := fs.Int("min-step", 0, "Keep only steps divisible by this interval")

	var patterns []string
	fs.Func("match", "Subset pattern, repeatable; applied in order", func(v string) error {
		patterns = append(patterns, v)
		return nil
	})

	return func() (config.Config, error) {
		cfg := config.Default()

		if *configPath != "" {
			fileCfg, err := config.LoadFromFile(*configPath)
			if err != nil {
				return config.Config{}, err
			}
			cfg = fileCfg
		}
		if err := cfg.LoadFromEnv(); err != nil {
			return config.Config{}, err
		}

		var override config.Config
		if *cycle != "" {
			t, err := config.ParseCycle(*cycle)
			if err != nil {
				return config.Config{}, err
			}
			override.Cycle = t
		}
		if *resolution != "" {
			res, err := nomads.ParseResolution(*resolution)
			if err != nil {
				return config.Config{}, err
			}
			override.Resolution = res
		}
		override.Horizon = *horizon
		override.MinStep = *minStep
		override.Patterns = patterns

		return cfg.Merge(override), nil
	}
}

func runFetch(args []string) int {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)

	load := configFlags(fs)
	merge := fs.String("merge", "", "Append every step to this single output file")
	template := fs.String("template", "", "Per-step filename template (strftime tokens plus {step})")
	dest := fs.String("dest", "", "Destination directory or bucket URL (default .)")
	workers := fs.Int("workers", 0, "Number of parallel step fetches (requires -template)")
	showProgress := fs.Bool("progress", false, "Show download progress")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: gribgrab fetch [options]

Download a subset of one forecast cycle. The cycle's index files are
probed first; if any is missing the cycle is reported as not yet
available and nothing is transferred.

Patterns are matched against index lines such as

  31:3449279:d=2025083000:UGRD:10 m above ground:3 hour fcst:

anchored at the line start, so they usually begin with '.*'.

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
	cfg = cfg.Merge(config.Config{
		MergeFile:    *merge,
		FileTemplate: *template,
		Destination:  *dest,
		Workers:      *workers,
		Progress:     *showProgress,
	})

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
		fmt.Fprintln(os.Stderr, "\n[gribgrab] Received interrupt, shutting down...")
		cancel()
	}()

	return fetch(ctx, cfg)
}

func fetch(ctx context.Context, cfg config.Config) int {
	plan, dl, err := buildDownload(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	bucket, err := openBucket(ctx, cfg.Destination)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitStorageError
	}
	defer bucket.Close()

	err = dl.Download(ctx, bucket)
	switch {
	case errors.Is(err, downloader.ErrDataNotAvailable):
		fmt.Fprintf(os.Stderr, "[gribgrab] Cycle %s not yet available, try again later\n",
			plan.Cycle.Format("2006010215"))
		return ExitNotAvailable
	case err != nil:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitDownloadError
	}

	fmt.Fprintf(os.Stderr, "[gribgrab] Fetched %d steps to %s\n", len(plan.Steps), cfg.Destination)
	return ExitSuccess
}

// buildDownload turns a validated config into a plan and downloader.
func buildDownload(cfg config.Config) (*nomads.Plan, *downloader.Downloader, error) {
	plan, err := nomads.NewPlan(cfg.Endpoint(), cfg.Cycle, cfg.Resolution, cfg.Horizon, cfg.MinStep)
	if err != nil {
		return nil, nil, err
	}

	var reporter *progress.Reporter
	if cfg.Progress {
		reporter = progress.NewReporter(progress.Options{
			TotalSteps: len(plan.Steps),
			Workers:    cfg.Workers,
			Source: fmt.Sprintf("gfs %s %sdeg",
				cfg.Cycle.Format("2006010215"), cfg.Resolution),
		})
	}

	dl, err := downloader.New(plan, downloader.Options{
		Patterns: cfg.Patterns,
		Naming: nomads.Naming{
			MergeFile: cfg.MergeFile,
			Template:  cfg.FileTemplate,
		},
		Workers:  cfg.Workers,
		Progress: reporter,
		HTTPOptions: gribhttp.Options{
			Attempts:   cfg.Retry.Attempts,
			Backoff:    cfg.Retry.Backoff,
			MaxBackoff: cfg.Retry.MaxBackoff,
		},
	})
	if err != nil {
		return nil, nil, err
	}

	return plan, dl, nil
}

// openBucket opens the destination: a gocloud bucket URL, or a local
// directory served through fileblob.
func openBucket(ctx context.Context, dest string) (*blob.Bucket, error) {
	if strings.Contains(dest, "://") {
		return blob.OpenBucket(ctx, dest)
	}
	return fileblob.OpenBucket(dest, &fileblob.Options{
		CreateDir: true,
		Metadata:  fileblob.MetadataDontWrite, // no .attrs sidecars next to the gribs
	})
}
