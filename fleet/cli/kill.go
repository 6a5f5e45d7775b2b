package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vislab/fleet/common/client"
	"github.com/vislab/fleet/killer"
)

func newKiller(cl *client.SimpleClient) (*killer.Killer, error) {
	return killer.New(killer.Config{
		Pool:         cl.Pool,
		Executor:     cl.Transport,
		Querier:      cl.Transport,
		Prober:       cl.Config.Prober(cl.Transport, cl.Stat),
		ProbeTimeout: cl.Config.Probe.Timeout.Std(),
		Commands:     cl.Config.KillCommands(),
		Stat:         cl.Stat,
	})
}

type killCmd struct {
	exclusionFlags
}

func (c *killCmd) RegisterFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "kill [exclude-ids exclude-accel]",
		Short: "Kill all your processes on every machine except the excluded ones",
		Args:  usage(zeroOr(2)),
	}
	client.DescribeArgs(r,
		"  exclude-ids    space-separated identifiers of machines to spare, e.g. \"4 7\"\n"+
			"  exclude-accel  for each identifier, 1 if it names an accelerator machine, else 0, e.g. \"0 1\"\n"+
			"  Both lists are matched by position and must have the same length.")
	c.exclusionFlags.register(r)
	return r
}

func (c *killCmd) Run(cl *client.SimpleClient, cmd *cobra.Command, args []string) error {
	ex, err := c.set(cl.Pool, args...)
	if err != nil {
		return err
	}
	k, err := newKiller(cl)
	if err != nil {
		return err
	}
	sent, err := k.KillAll(context.Background(), ex)
	if err != nil {
		return err
	}
	for _, m := range sent {
		fmt.Fprintf(cl.Out, "kill sent to %s\n", m)
	}
	return nil
}

type killPatternCmd struct{}

func (c *killPatternCmd) RegisterFlags() *cobra.Command {
	return client.DescribeArgs(&cobra.Command{
		Use:   "killpattern pattern",
		Short: "Kill your processes whose command line matches pattern on every machine",
		Args:  usage(cobra.ExactArgs(1)),
	}, "  pattern  matched against full command lines (pkill -f)")
}

func (c *killPatternCmd) Run(cl *client.SimpleClient, cmd *cobra.Command, args []string) error {
	k, err := newKiller(cl)
	if err != nil {
		return err
	}
	sent, err := k.KillByPattern(context.Background(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cl.Out, "kill %q sent to %d machines\n", args[0], len(sent))
	return nil
}

type killClientsCmd struct{}

func (c *killClientsCmd) RegisterFlags() *cobra.Command {
	return &cobra.Command{
		Use:   "killclients",
		Short: "Kill the detached batch runners left by submit, except on this host",
		Args:  usage(cobra.NoArgs),
	}
}

func (c *killClientsCmd) Run(cl *client.SimpleClient, cmd *cobra.Command, args []string) error {
	k, err := newKiller(cl)
	if err != nil {
		return err
	}
	killed, err := k.KillClients(context.Background())
	if err != nil {
		return err
	}
	for _, kc := range killed {
		fmt.Fprintf(cl.Out, "killed %s\n", kc)
	}
	fmt.Fprintf(cl.Out, "%d clients killed\n", len(killed))
	return nil
}
