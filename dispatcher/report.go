package dispatcher

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/vislab/fleet/cloud/cluster"
	fleeterrors "github.com/vislab/fleet/common/errors"
	"github.com/vislab/fleet/jobs"
)

// State of a job within one dispatch pass:
// PENDING -> PROBING -> ASSIGNED | SKIPPED | FAILED.
type State int

const (
	Pending State = iota
	Probing
	Assigned
	Skipped
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Probing:
		return "PROBING"
	case Assigned:
		return "ASSIGNED"
	case Skipped:
		return "SKIPPED"
	case Failed:
		return "FAILED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Outcome is what happened to one job. Machine is only set for ASSIGNED jobs
// (and for FAILED jobs whose hand-off failed).
type Outcome struct {
	Job     jobs.Job
	State   State
	Machine cluster.Machine
	// Machines probed for this job, in order.
	Probed []cluster.Machine
	Err    error
}

// Report covers one dispatch pass. It only knows about hand-offs: whether a
// job later succeeded on its machine is not tracked.
type Report struct {
	PassID   string
	Outcomes []Outcome
}

func (r *Report) Count(s State) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.State == s {
			n++
		}
	}
	return n
}

// Assignments maps job names to the machine they were handed to.
func (r *Report) Assignments() map[string]cluster.Machine {
	m := map[string]cluster.Machine{}
	for _, o := range r.Outcomes {
		if o.State == Assigned {
			m[o.Job.String()] = o.Machine
		}
	}
	return m
}

// Err is ErrNoMachineAvailable if any job found no live machine, otherwise
// the first hand-off error, otherwise nil.
func (r *Report) Err() error {
	var first error
	for _, o := range r.Outcomes {
		if o.Err == nil {
			continue
		}
		if fleeterrors.IsNoMachineAvailable(o.Err) {
			return errors.Wrapf(fleeterrors.ErrNoMachineAvailable, "%d of %d jobs", r.noMachine(), len(r.Outcomes))
		}
		if first == nil {
			first = o.Err
		}
	}
	return first
}

func (r *Report) noMachine() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err != nil && fleeterrors.IsNoMachineAvailable(o.Err) {
			n++
		}
	}
	return n
}

func (r *Report) String() string {
	return fmt.Sprintf("pass %s: %d assigned, %d skipped, %d failed, %d pending",
		r.PassID, r.Count(Assigned), r.Count(Skipped), r.Count(Failed), r.Count(Pending))
}
