package cli

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vislab/fleet/cloud/cluster"
	"github.com/vislab/fleet/common/client"
	"github.com/vislab/fleet/dispatcher"
	"github.com/vislab/fleet/distributor"
)

// exclusionFlags are shared by the commands that can leave machines out.
type exclusionFlags struct {
	ids     string
	accel   string
	exclude string
}

func (f *exclusionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.ids, "exclude-ids", "", `Space-separated machine identifiers to leave out, e.g. "4 7"`)
	cmd.Flags().StringVar(&f.accel, "exclude-accel", "", `Per identifier in --exclude-ids, whether it is an accelerator machine, e.g. "0 1"`)
	cmd.Flags().StringVar(&f.exclude, "exclude", "", `Machines to leave out as id:class pairs, e.g. "4:general,7:accelerator"`)
}

// set parses the flags, plus the positional pair when given, and checks the
// result against the pool.
func (f *exclusionFlags) set(pool *cluster.Pool, args ...string) (cluster.ExclusionSet, error) {
	ids, accel := f.ids, f.accel
	if len(args) == 2 {
		ids, accel = args[0], args[1]
	}
	lists, err := cluster.ParseExclusionLists(ids, accel)
	if err != nil {
		return nil, err
	}
	pairs, err := cluster.ParseExclusions(f.exclude)
	if err != nil {
		return nil, err
	}
	ex := lists.Union(pairs)
	if err := pool.Validate(ex); err != nil {
		return nil, err
	}
	return ex, nil
}

type dispatchCmd struct {
	exclusionFlags
	dryRun bool
	random bool
	seed   int64
	start  int
}

func (c *dispatchCmd) RegisterFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "dispatch",
		Short: "Send each job of the work queue to one live machine",
		Long: "Reads the work queue from the config (params file or scripts dir), skips jobs\n" +
			"whose expected outputs exist, and runs each remaining job in the background\n" +
			"on the first machine that answers a probe.",
		Args: usage(cobra.NoArgs),
	}
	c.exclusionFlags.register(r)
	r.Flags().BoolVar(&c.dryRun, "dryrun", false, "Probe and assign, but print commands instead of sending them")
	r.Flags().BoolVar(&c.random, "random", false, "Start each job's scan at a random machine of its class instead of round-robin")
	r.Flags().Int64Var(&c.seed, "seed", 0, "Seed for --random. 0 seeds from the clock")
	r.Flags().IntVar(&c.start, "start", 0, "Pool index the round-robin scan starts from")
	return r
}

func (c *dispatchCmd) Run(cl *client.SimpleClient, cmd *cobra.Command, args []string) error {
	ex, err := c.set(cl.Pool)
	if err != nil {
		return err
	}
	src, err := cl.Config.Source()
	if err != nil {
		return err
	}
	queue, err := src.Jobs()
	if err != nil {
		return err
	}

	var dist distributor.Distributor = distributor.NewRoundRobin(c.start)
	if c.random {
		seed := c.seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		dist = distributor.NewRandom(rand.New(rand.NewSource(seed)))
	}
	d, err := dispatcher.New(dispatcher.Config{
		Machines:     cl.Pool.Without(ex),
		Distributor:  dist,
		Prober:       cl.Config.Prober(cl.Transport, cl.Stat),
		Executor:     cl.Transport,
		ProbeTimeout: cl.Config.Probe.Timeout.Std(),
		DryRun:       c.dryRun,
		Out:          cl.Out,
		Stat:         cl.Stat,
	})
	if err != nil {
		return err
	}
	report := d.Dispatch(context.Background(), queue)
	log.Info(report)
	fmt.Fprintf(cl.Out, "%d submitted, %d done already, %d failed\n",
		report.Count(dispatcher.Assigned), report.Count(dispatcher.Skipped), report.Count(dispatcher.Failed))
	return report.Err()
}
