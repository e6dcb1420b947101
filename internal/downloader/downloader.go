package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"gocloud.dev/blob"

	gribhttp "github.com/davesproson/gribgrab/internal/http"
	"github.com/davesproson/gribgrab/internal/nomads"
	"github.com/davesproson/gribgrab/internal/progress"
	"github.com/davesproson/gribgrab/pkg/inventory"
)

// ErrDataNotAvailable is returned when the existence check fails: at least
// one planned index file is not on the server. Forecast cycles publish as
// a batch, so partial availability means the cycle is not ready yet.
// Retrying the whole download later is the expected recovery.
var ErrDataNotAvailable = errors.New("downloader: data not available on server")

// StepError records a failure fetching one forecast step.
type StepError struct {
	Step int    // forecast lead time in hours
	URL  string // the URL that failed
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Step, e.URL, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Options configures the downloader.
type Options struct {
	// Patterns are the subset patterns, applied in order against each
	// step's index. Empty means the whole file is fetched.
	Patterns []string

	// Naming selects the output naming policy.
	Naming nomads.Naming

	// Workers is the number of steps fetched in parallel. Values above 1
	// require the per-step template policy, since no other policy
	// guarantees exclusive output targets. Default: 1.
	Workers int

	// Progress is an optional progress reporter.
	Progress *progress.Reporter

	// HTTPOptions configures the HTTP client.
	HTTPOptions gribhttp.Options
}

// Downloader fetches the subset of a forecast cycle described by its plan.
type Downloader struct {
	plan   *nomads.Plan
	opts   Options
	client *gribhttp.Client
}

// New creates a downloader for the given plan. Configuration conflicts
// are rejected here, before any network activity.
func New(plan *nomads.Plan, opts Options) (*Downloader, error) {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	if err := opts.Naming.Validate(); err != nil {
		return nil, err
	}
	if opts.Workers > 1 && !opts.Naming.PerStep() {
		return nil, errors.New("downloader: concurrent fetch requires the per-step template naming policy")
	}

	return &Downloader{
		plan:   plan,
		opts:   opts,
		client: gribhttp.NewClient(opts.HTTPOptions),
	}, nil
}

// Exists reports whether every planned index file is present on the
// server. The check is all-or-nothing: one missing index makes the whole
// cycle unavailable. Only context cancellation is surfaced as an error;
// any probe failure simply reports false.
func (d *Downloader) Exists(ctx context.Context) (bool, error) {
	for _, sp := range d.plan.Steps {
		if err := d.client.Head(ctx, sp.IndexURL); err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			return false, nil
		}
	}
	return true, nil
}

// Download checks availability, then fetches every planned step into
// bucket under the configured naming policy. Steps fail independently:
// with per-step output a failed step does not stop the others and all
// failures are joined into the returned error. A merged output aborts on
// the first failure to keep the concatenated stream contiguous.
func (d *Downloader) Download(ctx context.Context, bucket *blob.Bucket) error {
	ok, err := d.Exists(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrDataNotAvailable
	}

	if d.opts.Progress != nil {
		d.opts.Progress.Start()
		defer d.opts.Progress.Stop()
	}

	if d.opts.Naming.Merged() {
		return d.downloadMerged(ctx, bucket)
	}
	return d.downloadPerStep(ctx, bucket)
}

// downloadMerged appends every step, in step order, to the single merged
// output file.
func (d *Downloader) downloadMerged(ctx context.Context, bucket *blob.Bucket) error {
	// Canceling the writer context aborts the blob instead of committing
	// a truncated merge on failure.
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := bucket.NewWriter(wctx, d.opts.Naming.MergeFile, nil)
	if err != nil {
		return fmt.Errorf("open %s: %w", d.opts.Naming.MergeFile, err)
	}

	for _, sp := range d.plan.Steps {
		if err := d.fetchStep(ctx, sp, w); err != nil {
			cancel()
			w.Close()
			return err
		}
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("close %s: %w", d.opts.Naming.MergeFile, err)
	}
	return nil
}

// downloadPerStep fetches steps into individual output files, optionally
// in parallel. The plan is fully materialized before any fetch begins and
// is read-only from here on.
func (d *Downloader) downloadPerStep(ctx context.Context, bucket *blob.Bucket) error {
	jobs := make(chan nomads.StepPlan)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	for i := 0; i < d.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sp := range jobs {
				if err := d.downloadStep(ctx, bucket, sp); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
			}
		}()
	}

	for _, sp := range d.plan.Steps {
		select {
		case jobs <- sp:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()

	return errors.Join(errs...)
}

// downloadStep fetches one step into its own output file.
func (d *Downloader) downloadStep(ctx context.Context, bucket *blob.Bucket, sp nomads.StepPlan) error {
	name, err := d.opts.Naming.OutputName(d.plan, sp)
	if err != nil {
		return &StepError{Step: sp.Step, URL: sp.DataURL, Err: err}
	}

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := bucket.NewWriter(wctx, name, nil)
	if err != nil {
		return &StepError{Step: sp.Step, URL: sp.DataURL, Err: err}
	}

	if err := d.fetchStep(ctx, sp, w); err != nil {
		cancel()
		w.Close()
		return err
	}

	if err := w.Close(); err != nil {
		return &StepError{Step: sp.Step, URL: sp.DataURL, Err: fmt.Errorf("close %s: %w", name, err)}
	}
	return nil
}

// fetchStep fetches the index for one step, derives the byte ranges for
// the configured patterns and streams the ranged response into w.
func (d *Downloader) fetchStep(ctx context.Context, sp nomads.StepPlan, w io.Writer) error {
	if d.opts.Progress != nil {
		d.opts.Progress.StepStarted()
	}

	if err := d.fetchStepBody(ctx, sp, w); err != nil {
		if d.opts.Progress != nil {
			d.opts.Progress.StepFailed()
		}
		return err
	}
	return nil
}

// fetchStepBody does the actual transfer; successful completion is
// reported from here so the byte count is attributed in one place.
func (d *Downloader) fetchStepBody(ctx context.Context, sp nomads.StepPlan, w io.Writer) error {
	idxBody, err := d.client.Get(ctx, sp.IndexURL)
	if err != nil {
		return &StepError{Step: sp.Step, URL: sp.IndexURL, Err: err}
	}

	coll, err := inventory.ParseCollection(idxBody)
	idxBody.Close()
	if err != nil {
		return &StepError{Step: sp.Step, URL: sp.IndexURL, Err: err}
	}

	ranges, err := d.matchRanges(coll)
	if err != nil {
		return &StepError{Step: sp.Step, URL: sp.IndexURL, Err: err}
	}

	// Patterns configured but nothing matched: there is nothing to
	// transfer for this step.
	if len(d.opts.Patterns) > 0 && len(ranges) == 0 {
		if d.opts.Progress != nil {
			d.opts.Progress.StepCompleted(0)
		}
		return nil
	}

	body, err := d.client.GetRanges(ctx, sp.DataURL, inventory.RangeHeader(ranges))
	if err != nil {
		return &StepError{Step: sp.Step, URL: sp.DataURL, Err: err}
	}
	defer body.Close()

	n, err := io.Copy(w, body)
	if err != nil {
		return &StepError{Step: sp.Step, URL: sp.DataURL, Err: fmt.Errorf("write response: %w", err)}
	}

	if d.opts.Progress != nil {
		d.opts.Progress.StepCompleted(n)
	}
	return nil
}

// matchRanges applies every pattern in caller order, concatenating the
// byte ranges of all matches in match order. Overlaps and duplicates are
// kept; the ranged request carries them faithfully.
func (d *Downloader) matchRanges(coll *inventory.Collection) ([]inventory.ByteRange, error) {
	var ranges []inventory.ByteRange
	for _, pattern := range d.opts.Patterns {
		matches, err := coll.Filter(pattern)
		if err != nil {
			return nil, err
		}
		for _, rec := range matches {
			br, err := coll.ByteRange(rec)
			if err != nil {
				return nil, err
			}
			ranges = append(ranges, br)
		}
	}
	return ranges, nil
}
