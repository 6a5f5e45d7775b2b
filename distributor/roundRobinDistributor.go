package distributor

import (
	"sort"

	"github.com/vislab/fleet/cloud/cluster"
	"github.com/vislab/fleet/jobs"
)

/*
 * RoundRobin evenly distributes load throughout the pool: the scan for each
 * job starts right after the machine that took the previous job.
 */
type RoundRobin struct {
	start  int
	cursor int
}

// NewRoundRobin starts the first scan at index start.
func NewRoundRobin(start int) *RoundRobin {
	return &RoundRobin{start: start, cursor: start}
}

func (r *RoundRobin) Candidates(job jobs.Job, machines []cluster.Machine) []int {
	idx := eligible(job, machines)
	if len(idx) == 0 {
		return nil
	}
	cursor := r.cursor % len(machines)
	// First eligible machine at or after the cursor.
	start := sort.SearchInts(idx, cursor)
	if start == len(idx) {
		start = 0
	}
	return rotate(idx, start)
}

func (r *RoundRobin) Assigned(index int) {
	r.cursor = index + 1
}

// Reset moves the cursor back to where the first pass started.
func (r *RoundRobin) Reset() {
	r.cursor = r.start
}
