package nomads

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lestrrat-go/strftime"
)

// stepToken is replaced in output templates by the zero-padded 3-digit
// step number, matching the remote archive naming.
const stepToken = "{step}"

// ErrConflictingNaming is returned when both a merged output file and a
// per-step template are configured.
var ErrConflictingNaming = errors.New("nomads: only one of merge file and file template may be set")

// Naming selects the output naming policy for downloaded steps. The zero
// value names each output after the remote file. Setting MergeFile appends
// every step to one file; setting Template names each step's file from a
// strftime pattern. The two are mutually exclusive.
type Naming struct {
	// MergeFile is the single output file all steps are appended to, in
	// step order.
	MergeFile string

	// Template is a per-step filename template. It accepts strftime
	// tokens, expanded from the cycle time, plus "{step}" for the
	// zero-padded step number, e.g. "gfs.t%Hz.{step}.grb2".
	Template string
}

// Validate rejects conflicting policies and unparseable templates.
func (n Naming) Validate() error {
	if n.MergeFile != "" && n.Template != "" {
		return ErrConflictingNaming
	}
	if n.Template != "" {
		if _, err := strftime.New(n.Template); err != nil {
			return fmt.Errorf("nomads: bad file template: %w", err)
		}
	}
	return nil
}

// Merged reports whether all steps share one output file. Merged output
// requires sequential fetching to keep the concatenated stream in step
// order.
func (n Naming) Merged() bool {
	return n.MergeFile != ""
}

// PerStep reports whether the per-step template policy is active. Only
// this policy is safe for concurrent fetching, since no output target is
// shared.
func (n Naming) PerStep() bool {
	return n.Template != ""
}

// OutputName returns the output filename for one planned step under the
// active policy.
func (n Naming) OutputName(plan *Plan, sp StepPlan) (string, error) {
	if err := n.Validate(); err != nil {
		return "", err
	}

	switch {
	case n.MergeFile != "":
		return n.MergeFile, nil
	case n.Template != "":
		name, err := strftime.Format(n.Template, plan.Cycle)
		if err != nil {
			return "", fmt.Errorf("nomads: expand file template: %w", err)
		}
		return strings.ReplaceAll(name, stepToken, fmt.Sprintf("%03d", sp.Step)), nil
	default:
		return sp.Filename, nil
	}
}
