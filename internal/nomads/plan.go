package nomads

import (
	"fmt"
	"time"
)

// IndexSuffix is appended to a data URL to form its index URL.
const IndexSuffix = ".idx"

// filePattern is the archive's file naming template: cycle hour,
// resolution tag, zero-padded 3-digit step.
const filePattern = "gfs.t%02dz.pgrb2.%s.f%03d"

// Endpoint locates the remote forecast archive. Values are injected into
// plan construction rather than read from package state, so tests can
// point a plan at a fake server.
type Endpoint struct {
	// Server is the scheme and host, e.g. "https://www.ftp.ncep.noaa.gov".
	Server string

	// BasePath is the archive root below the server.
	BasePath string
}

// DefaultEndpoint returns the production NOMADS archive location.
func DefaultEndpoint() Endpoint {
	return Endpoint{
		Server:   "https://www.ftp.ncep.noaa.gov",
		BasePath: "/data/nccf/com/gfs/prod",
	}
}

// cycleURL returns the base URL of one cycle's directory, with a trailing
// slash.
func (e Endpoint) cycleURL(cycle time.Time) string {
	return fmt.Sprintf("%s%s/gfs.%s/", e.Server, e.BasePath, cycle.Format("2006010215"))
}

// StepPlan is one entry of a cycle's download plan.
type StepPlan struct {
	// Step is the forecast lead time in hours.
	Step int

	// DataURL is the remote GRIB2 file for this step.
	DataURL string

	// IndexURL is the companion index file (DataURL + IndexSuffix).
	IndexURL string

	// Filename is the remote file's base name, used by the default
	// output naming policy.
	Filename string
}

// Plan is the ordered, immutable download plan for one forecast cycle.
type Plan struct {
	Cycle      time.Time
	Resolution Resolution
	Steps      []StepPlan
}

// NewPlan builds the download plan for a cycle. The resolution's schedule
// is generated fresh, then narrowed to steps evenly divisible by minStep
// (if minStep > 0) and to steps at or below horizon (if horizon >= 0).
func NewPlan(ep Endpoint, cycle time.Time, res Resolution, horizon, minStep int) (*Plan, error) {
	if !res.Valid() {
		return nil, fmt.Errorf("unsupported resolution %s (supported: %s)", res, supportedList())
	}

	base := ep.cycleURL(cycle)
	tag := res.Tag()

	var steps []StepPlan
	for _, step := range res.Schedule() {
		if minStep > 0 && step%minStep != 0 {
			continue
		}
		if horizon >= 0 && step > horizon {
			continue
		}
		name := fmt.Sprintf(filePattern, cycle.Hour(), tag, step)
		dataURL := base + name
		steps = append(steps, StepPlan{
			Step:     step,
			DataURL:  dataURL,
			IndexURL: dataURL + IndexSuffix,
			Filename: name,
		})
	}

	return &Plan{Cycle: cycle, Resolution: res, Steps: steps}, nil
}
