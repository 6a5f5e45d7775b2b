package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/vislab/fleet/cloud/cluster"
	"github.com/vislab/fleet/common/client"
)

type probeCmd struct{}

func (c *probeCmd) RegisterFlags() *cobra.Command {
	return client.DescribeArgs(&cobra.Command{
		Use:   "probe [id:class ...]",
		Short: "Report which machines answer within the probe timeout",
	}, "  id:class  machines to probe, e.g. 4:general 7:accelerator; all of them when omitted")
}

func (c *probeCmd) Run(cl *client.SimpleClient, cmd *cobra.Command, args []string) error {
	machines := cl.Pool.All()
	if len(args) > 0 {
		machines = nil
		for _, a := range args {
			k, err := cluster.ParseKey(a)
			if err != nil {
				return err
			}
			m, err := cl.Pool.Lookup(k)
			if err != nil {
				return err
			}
			machines = append(machines, m)
		}
	}

	prober := cl.Config.Prober(cl.Transport, cl.Stat)
	alive := make([]bool, len(machines))
	var wg sync.WaitGroup
	for i, m := range machines {
		wg.Add(1)
		go func(i int, m cluster.Machine) {
			defer wg.Done()
			alive[i] = prober.IsAlive(context.Background(), m, cl.Config.Probe.Timeout.Std())
		}(i, m)
	}
	wg.Wait()

	up := 0
	for i, m := range machines {
		state := "dead"
		if alive[i] {
			state = "alive"
			up++
		}
		fmt.Fprintf(cl.Out, "%-12s %s\n", m.Name, state)
	}
	fmt.Fprintf(cl.Out, "%d of %d alive\n", up, len(machines))
	return nil
}

type machinesCmd struct{}

func (c *machinesCmd) RegisterFlags() *cobra.Command {
	return &cobra.Command{
		Use:   "machines",
		Short: "List the configured pool",
		Args:  usage(cobra.NoArgs),
	}
}

func (c *machinesCmd) Run(cl *client.SimpleClient, cmd *cobra.Command, args []string) error {
	for _, m := range cl.Pool.All() {
		fmt.Fprintf(cl.Out, "%-12s %-14s %s\n", m.Name, m.Key, m.Address)
	}
	return nil
}
