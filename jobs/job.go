// Package jobs reads work queues and decides whether a job is already done.
package jobs

import (
	"os"

	"github.com/vislab/fleet/cloud/cluster"
)

// Job is one unit of work: a shell command and the files it is expected to
// produce.
type Job struct {
	Name    string
	Command string
	// Required machine class; empty means any.
	Class cluster.Class
	// Output paths. The job counts as done when all of them exist. A job
	// without expected outputs is never done.
	Expects []string
}

func (j Job) String() string {
	if j.Name != "" {
		return j.Name
	}
	return j.Command
}

// Marker is the idempotency check run before a job is dispatched.
type Marker interface {
	Done(job Job) bool
}

// MarkerFunc adapts a function to Marker.
type MarkerFunc func(job Job) bool

func (f MarkerFunc) Done(job Job) bool { return f(job) }

// NeverDone dispatches every job.
var NeverDone Marker = MarkerFunc(func(Job) bool { return false })

// FileMarker reports a job done when every expected path exists.
var FileMarker Marker = MarkerFunc(func(job Job) bool {
	return allExist(job.Expects)
})

func allExist(paths []string) bool {
	if len(paths) == 0 {
		return false
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}

// Source enumerates a work queue in dispatch order.
type Source interface {
	Jobs() ([]Job, error)
}
