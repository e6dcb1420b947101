// Package http provides the HTTP client used for forecast archive access.
//
// This package handles:
//   - HEAD probes for existence checks
//   - Plain GET requests for index sidecar files
//   - Multi-range GET requests for subsetting GRIB2 files
//   - Retry with exponential backoff and jitter
//
// # Usage
//
//	client := http.NewClient(http.DefaultOptions())
//
//	// Probe an index file
//	err := client.Head(ctx, idxURL)
//
//	// Fetch the message subset
//	body, err := client.GetRanges(ctx, dataURL, "bytes=0-73572,263118-")
//	defer body.Close()
//
// Each call gets its own retry budget (5 attempts by default). Status
// errors like 404 are surfaced immediately; only transport failures and
// 5xx responses are retried.
package http
