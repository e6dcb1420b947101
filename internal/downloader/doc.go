// Package downloader orchestrates subset downloads of a forecast cycle.
//
// For each planned step it fetches the index sidecar, filters it against
// the configured patterns, merges the matching byte ranges into a single
// Range header and issues one ranged GET, streaming the response into the
// destination bucket. Destinations are storage-agnostic via
// gocloud.dev/blob; a local directory is just a fileblob bucket.
//
// # Usage
//
//	plan, err := nomads.NewPlan(ep, cycle, nomads.Res0p25, 48, 3)
//	dl, err := downloader.New(plan, downloader.Options{
//	    Patterns: []string{`.*:UGRD:10 m above ground:.*`},
//	    Naming:   nomads.Naming{Template: "gfs.t%Hz.{step}.grb2"},
//	    Workers:  4,
//	})
//	err = dl.Download(ctx, bucket)
//
// # Availability
//
// Download begins with an all-or-nothing existence check over every
// planned index URL and returns ErrDataNotAvailable without transferring
// anything if any probe fails. Callers poll and retry the whole cycle.
//
// # Failure handling
//
// Each network call carries its own retry budget (see internal/http).
// Once a step's budget is spent the step fails with a StepError naming
// the step and URL; other steps still run, except under the merged-output
// policy, which stops at the first failure to keep the output stream
// contiguous.
package downloader
