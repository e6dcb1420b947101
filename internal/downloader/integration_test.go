//go:build integration

package downloader

import (
	"context"
	"fmt"
	"testing"
	"time"

	_ "gocloud.dev/blob/s3blob"

	gribhttp "github.com/davesproson/gribgrab/internal/http"
	"github.com/davesproson/gribgrab/internal/nomads"
	"github.com/davesproson/gribgrab/internal/testutils"
)

// TestFetchIntoS3 downloads a subset of a fake cycle into a Minio bucket.
func TestFetchIntoS3(t *testing.T) {
	ctx := context.Background()
	cycle := time.Date(2025, 8, 30, 0, 0, 0, 0, time.UTC)

	var files []testutils.ArchiveFile
	for _, step := range []int{0, 3, 6} {
		data := make([]byte, 300)
		for i := range data {
			data[i] = byte((i + step) % 256)
		}
		files = append(files, testutils.ArchiveFile{
			Path: fmt.Sprintf("/prod/gfs.2025083000/gfs.t00z.pgrb2.0p50.f%03d", step),
			Data: data,
			Index: fmt.Sprintf("1:0:d=2025083000:GUST:surface:%d hour fcst:\n", step) +
				fmt.Sprintf("2:100:d=2025083000:MSLET:mean sea level:%d hour fcst:\n", step) +
				fmt.Sprintf("3:200:d=2025083000:PRES:surface:%d hour fcst:\n", step),
		})
	}

	server := testutils.StartArchiveServer(t, files)
	defer server.Close()

	env := testutils.StartMinioContainer(t, ctx, "gribgrab-test")
	defer env.Close(ctx)

	bucket, err := env.OpenBucket(ctx)
	if err != nil {
		t.Fatalf("open bucket: %v", err)
	}
	defer bucket.Close()

	ep := nomads.Endpoint{Server: server.URL, BasePath: "/prod"}
	plan, err := nomads.NewPlan(ep, cycle, nomads.Res0p50, 6, 0)
	if err != nil {
		t.Fatalf("NewPlan: %v", err)
	}

	httpOpts := gribhttp.DefaultOptions()
	httpOpts.Backoff = 10 * time.Millisecond

	dl, err := New(plan, Options{
		Patterns:    []string{`.*:GUST:.*`, `.*:PRES:.*`},
		Naming:      nomads.Naming{Template: "gfs.t%Hz.{step}.grb2"},
		Workers:     3,
		HTTPOptions: httpOpts,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := dl.Download(ctx, bucket); err != nil {
		t.Fatalf("Download: %v", err)
	}

	for i, step := range []int{0, 3, 6} {
		name := fmt.Sprintf("gfs.t00z.%03d.grb2", step)
		got, err := bucket.ReadAll(ctx, name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}

		data := files[i].Data
		want := append(append([]byte{}, data[:100]...), data[200:]...)
		if string(got) != string(want) {
			t.Errorf("%s: got %d bytes, want %d", name, len(got), len(want))
		}
	}
}
