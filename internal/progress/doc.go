// Package progress reports download progress to the terminal.
//
// The reporter counts forecast steps rather than bytes against a total:
// a subset download never knows its final size up front, only how many
// steps remain. Byte and speed figures cover what has been transferred.
//
// # Usage
//
//	reporter := progress.NewReporter(progress.Options{
//	    TotalSteps: len(plan.Steps),
//	    Workers:    4,
//	    Source:     "gfs 2025083000 0.25deg",
//	})
//	reporter.Start()
//	defer reporter.Stop()
//
// Workers call StepStarted, then StepCompleted or StepFailed. All counters
// are safe for concurrent use.
package progress
