package distributor

import (
	"math/rand"
	"time"

	"github.com/vislab/fleet/cloud/cluster"
	"github.com/vislab/fleet/jobs"
)

/*
 * Random starts each scan at a machine chosen uniformly among those of the
 * job's class, then walks the rest of that class in pool order.
 */
type Random struct {
	rng *rand.Rand
}

// NewRandom uses rng, or a time-seeded source when rng is nil.
func NewRandom(rng *rand.Rand) *Random {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Random{rng: rng}
}

func (r *Random) Candidates(job jobs.Job, machines []cluster.Machine) []int {
	idx := eligible(job, machines)
	if len(idx) == 0 {
		return nil
	}
	return rotate(idx, r.rng.Intn(len(idx)))
}

func (r *Random) Assigned(index int) {}

func (r *Random) Reset() {}
