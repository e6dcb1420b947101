package downloader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/memblob"

	gribhttp "github.com/davesproson/gribgrab/internal/http"
	"github.com/davesproson/gribgrab/internal/nomads"
)

var testCycle = time.Date(1995, 10, 30, 0, 0, 0, 0, time.UTC)

// archive is a fake forecast archive. Each step's GRIB2 file holds three
// messages at offsets 0, 100 and 200, tagged with the step so subset
// contents are distinguishable across steps.
type archive struct {
	dataGets atomic.Int32
	missing  map[int]bool // steps whose index is absent
	badIdx   map[int]bool // steps whose index is malformed
}

func stepData(step int) []byte {
	data := make([]byte, 300)
	for i := range data {
		data[i] = byte((i + step) % 256)
	}
	return data
}

func stepIdx(step int) string {
	return fmt.Sprintf("1:0:d=1995103000:GUST:surface:%d hour fcst:\n", step) +
		fmt.Sprintf("2:100:d=1995103000:MSLET:mean sea level:%d hour fcst:\n", step) +
		fmt.Sprintf("3:200:d=1995103000:PRES:surface:%d hour fcst:\n", step)
}

// subset is the expected body for patterns matching GUST and PRES: bytes
// 0-99 plus the open-ended tail from 200.
func subset(step int) []byte {
	data := stepData(step)
	return append(append([]byte{}, data[:100]...), data[200:]...)
}

func (a *archive) parseStep(path string) (int, bool) {
	base := path[strings.LastIndex(path, "/")+1:]
	base = strings.TrimSuffix(base, ".idx")
	i := strings.LastIndex(base, ".f")
	if i < 0 {
		return 0, false
	}
	step, err := strconv.Atoi(base[i+2:])
	if err != nil {
		return 0, false
	}
	return step, true
}

func (a *archive) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		step, ok := a.parseStep(r.URL.Path)
		if !ok {
			http.NotFound(w, r)
			return
		}

		if strings.HasSuffix(r.URL.Path, ".idx") {
			if a.missing[step] {
				http.NotFound(w, r)
				return
			}
			if r.Method == http.MethodHead {
				return
			}
			if a.badIdx[step] {
				fmt.Fprintln(w, "this is not an index")
				return
			}
			fmt.Fprint(w, stepIdx(step))
			return
		}

		a.dataGets.Add(1)
		data := stepData(step)

		rangeHeader := r.Header.Get("Range")
		if rangeHeader == "" {
			w.Write(data)
			return
		}

		// Serve multi-range requests as a plain concatenation of the
		// requested spans; the downloader writes the body verbatim.
		w.WriteHeader(http.StatusPartialContent)
		for _, spec := range strings.Split(strings.TrimPrefix(rangeHeader, "bytes="), ",") {
			bounds := strings.SplitN(spec, "-", 2)
			start, _ := strconv.Atoi(bounds[0])
			end := len(data) - 1
			if bounds[1] != "" {
				end, _ = strconv.Atoi(bounds[1])
			}
			w.Write(data[start : end+1])
		}
	})
}

func testPlan(t *testing.T, serverURL string, horizon int) *nomads.Plan {
	t.Helper()

	ep := nomads.Endpoint{Server: serverURL, BasePath: "/data/nccf/com/gfs/prod"}
	plan, err := nomads.NewPlan(ep, testCycle, nomads.Res0p50, horizon, 0)
	if err != nil {
		t.Fatalf("NewPlan: %v", err)
	}
	return plan
}

func openTestBucket(t *testing.T, ctx context.Context) *blob.Bucket {
	t.Helper()

	bucket, err := blob.OpenBucket(ctx, "mem://")
	if err != nil {
		t.Fatalf("open bucket: %v", err)
	}
	t.Cleanup(func() { bucket.Close() })
	return bucket
}

func fastHTTPOptions() gribhttp.Options {
	opts := gribhttp.DefaultOptions()
	opts.Backoff = time.Millisecond
	opts.MaxBackoff = 5 * time.Millisecond
	return opts
}

var testPatterns = []string{`.*:GUST:.*`, `.*:PRES:.*`}

func TestDownloadDefaultNaming(t *testing.T) {
	var a archive
	server := httptest.NewServer(a.handler(t))
	defer server.Close()

	plan := testPlan(t, server.URL, 3) // steps 0 and 3

	dl, err := New(plan, Options{
		Patterns:    testPatterns,
		HTTPOptions: fastHTTPOptions(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	bucket := openTestBucket(t, ctx)

	if err := dl.Download(ctx, bucket); err != nil {
		t.Fatalf("Download: %v", err)
	}

	for _, sp := range plan.Steps {
		got, err := bucket.ReadAll(ctx, sp.Filename)
		if err != nil {
			t.Fatalf("read %s: %v", sp.Filename, err)
		}
		want := subset(sp.Step)
		if string(got) != string(want) {
			t.Errorf("step %d: got %d bytes, want %d", sp.Step, len(got), len(want))
		}
	}
}

func TestDownloadMergedOrder(t *testing.T) {
	var a archive
	server := httptest.NewServer(a.handler(t))
	defer server.Close()

	plan := testPlan(t, server.URL, 6) // steps 0, 3, 6

	dl, err := New(plan, Options{
		Patterns:    testPatterns,
		Naming:      nomads.Naming{MergeFile: "merged.grb2"},
		HTTPOptions: fastHTTPOptions(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	bucket := openTestBucket(t, ctx)

	if err := dl.Download(ctx, bucket); err != nil {
		t.Fatalf("Download: %v", err)
	}

	got, err := bucket.ReadAll(ctx, "merged.grb2")
	if err != nil {
		t.Fatalf("read merged.grb2: %v", err)
	}

	var want []byte
	for _, step := range []int{0, 3, 6} {
		want = append(want, subset(step)...)
	}
	if string(got) != string(want) {
		t.Errorf("merged output out of order or wrong: got %d bytes, want %d", len(got), len(want))
	}
}

func TestDownloadTemplateConcurrent(t *testing.T) {
	var a archive
	server := httptest.NewServer(a.handler(t))
	defer server.Close()

	plan := testPlan(t, server.URL, 12) // steps 0..12 by 3

	dl, err := New(plan, Options{
		Patterns:    testPatterns,
		Naming:      nomads.Naming{Template: "gfs.t%Hz.{step}.grb2"},
		Workers:     3,
		HTTPOptions: fastHTTPOptions(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	bucket := openTestBucket(t, ctx)

	if err := dl.Download(ctx, bucket); err != nil {
		t.Fatalf("Download: %v", err)
	}

	for _, step := range []int{0, 3, 6, 9, 12} {
		name := fmt.Sprintf("gfs.t00z.%03d.grb2", step)
		got, err := bucket.ReadAll(ctx, name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if string(got) != string(subset(step)) {
			t.Errorf("%s: wrong contents", name)
		}
	}
}

func TestDownloadWholeFileWithoutPatterns(t *testing.T) {
	var a archive
	server := httptest.NewServer(a.handler(t))
	defer server.Close()

	plan := testPlan(t, server.URL, 0) // step 0 only

	dl, err := New(plan, Options{HTTPOptions: fastHTTPOptions()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	bucket := openTestBucket(t, ctx)

	if err := dl.Download(ctx, bucket); err != nil {
		t.Fatalf("Download: %v", err)
	}

	got, err := bucket.ReadAll(ctx, plan.Steps[0].Filename)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 300 {
		t.Errorf("expected whole file (300 bytes), got %d", len(got))
	}
}

func TestDownloadNotAvailable(t *testing.T) {
	a := archive{missing: map[int]bool{6: true}}
	server := httptest.NewServer(a.handler(t))
	defer server.Close()

	plan := testPlan(t, server.URL, 6)

	dl, err := New(plan, Options{
		Patterns:    testPatterns,
		HTTPOptions: fastHTTPOptions(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	bucket := openTestBucket(t, ctx)

	if err := dl.Download(ctx, bucket); !errors.Is(err, ErrDataNotAvailable) {
		t.Fatalf("expected ErrDataNotAvailable, got %v", err)
	}
	if a.dataGets.Load() != 0 {
		t.Errorf("expected no data transfers, got %d", a.dataGets.Load())
	}
}

func TestExistsAllOrNothing(t *testing.T) {
	a := archive{missing: map[int]bool{3: true}}
	server := httptest.NewServer(a.handler(t))
	defer server.Close()

	plan := testPlan(t, server.URL, 6)

	dl, err := New(plan, Options{HTTPOptions: fastHTTPOptions()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ok, err := dl.Exists(context.Background())
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Error("expected false with one index missing")
	}

	a.missing = nil
	ok, err = dl.Exists(context.Background())
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !ok {
		t.Error("expected true with all indices present")
	}
}

func TestMalformedIndexFailsOnlyThatStep(t *testing.T) {
	a := archive{badIdx: map[int]bool{0: true}}
	server := httptest.NewServer(a.handler(t))
	defer server.Close()

	plan := testPlan(t, server.URL, 3)

	dl, err := New(plan, Options{
		Patterns:    testPatterns,
		HTTPOptions: fastHTTPOptions(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	bucket := openTestBucket(t, ctx)

	err = dl.Download(ctx, bucket)
	if err == nil {
		t.Fatal("expected error for malformed index")
	}

	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected StepError, got %v", err)
	}
	if stepErr.Step != 0 {
		t.Errorf("expected failure at step 0, got %d", stepErr.Step)
	}

	// The healthy step still completed.
	if _, err := bucket.ReadAll(ctx, plan.Steps[1].Filename); err != nil {
		t.Errorf("expected step 3 output despite step 0 failure: %v", err)
	}
}

func TestNamingConflictRejectedBeforeNetwork(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer server.Close()

	plan := testPlan(t, server.URL, 3)

	_, err := New(plan, Options{
		Naming: nomads.Naming{MergeFile: "out.grb2", Template: "gfs.{step}.grb2"},
	})
	if !errors.Is(err, nomads.ErrConflictingNaming) {
		t.Fatalf("expected ErrConflictingNaming, got %v", err)
	}
	if requests.Load() != 0 {
		t.Errorf("expected no network calls, got %d", requests.Load())
	}
}

func TestConcurrencyRequiresTemplate(t *testing.T) {
	plan := testPlan(t, "http://unused.invalid", 3)

	if _, err := New(plan, Options{Workers: 4}); err == nil {
		t.Error("expected error for workers > 1 without per-step template")
	}
	if _, err := New(plan, Options{Workers: 4, Naming: nomads.Naming{MergeFile: "out"}}); err == nil {
		t.Error("expected error for workers > 1 with merged output")
	}
	if _, err := New(plan, Options{Workers: 4, Naming: nomads.Naming{Template: "f{step}"}}); err != nil {
		t.Errorf("New with template: %v", err)
	}
}

func TestNoMatchesWritesEmptyOutput(t *testing.T) {
	var a archive
	server := httptest.NewServer(a.handler(t))
	defer server.Close()

	plan := testPlan(t, server.URL, 0)

	dl, err := New(plan, Options{
		Patterns:    []string{`.*:NOSUCHVAR:.*`},
		HTTPOptions: fastHTTPOptions(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	bucket := openTestBucket(t, ctx)

	if err := dl.Download(ctx, bucket); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if a.dataGets.Load() != 0 {
		t.Errorf("expected no data transfer for unmatched patterns, got %d", a.dataGets.Load())
	}

	got, err := bucket.ReadAll(ctx, plan.Steps[0].Filename)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty output, got %d bytes", len(got))
	}
}
