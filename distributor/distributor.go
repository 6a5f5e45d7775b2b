package distributor

import (
	"github.com/vislab/fleet/cloud/cluster"
	"github.com/vislab/fleet/jobs"
)

/*
 * Interface for choosing the machines a job may be sent to.
 *
 * Candidates returns indices into machines in the order they should be
 * probed. Each index appears at most once, and only machines of the job's
 * required class (if any) are included, so the probe loop is bounded by
 * len(machines).
 *
 * Assigned tells the distributor which index took the job.
 *
 * Reset is called at the start of every pass, so that a pass over the same
 * queue and the same live machines makes the same assignments.
 *
 * Distributors are used from the single goroutine that runs a dispatch pass
 * and are not safe for concurrent use.
 */
type Distributor interface {
	Candidates(job jobs.Job, machines []cluster.Machine) []int
	Assigned(index int)
	Reset()
}

// eligible returns the indices of machines that can run job, in pool order.
func eligible(job jobs.Job, machines []cluster.Machine) []int {
	var r []int
	for i, m := range machines {
		if job.Class == "" || m.Class == job.Class {
			r = append(r, i)
		}
	}
	return r
}

// rotate returns idx starting at position start, wrapping around.
func rotate(idx []int, start int) []int {
	r := make([]int, 0, len(idx))
	for i := 0; i < len(idx); i++ {
		r = append(r, idx[(start+i)%len(idx)])
	}
	return r
}
