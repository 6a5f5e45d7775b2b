// Package cli is the fleet command line: dispatch and submit jobs, kill
// processes across the pool, and check which machines are up.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	commoncli "github.com/vislab/fleet/common/client"
	fleeterrors "github.com/vislab/fleet/common/errors"
	fleetlog "github.com/vislab/fleet/common/log"
	"github.com/vislab/fleet/common/stats"
	"github.com/vislab/fleet/config/fleetconfig"
	osexecer "github.com/vislab/fleet/runner/execer/os"
)

// FleetCLIClient includes fields required for CLI client handling
type FleetCLIClient struct {
	commoncli.SimpleClient
}

func (c *FleetCLIClient) Exec() error {
	cmd, err := c.RootCmd.ExecuteC()
	if err != nil && cmd == c.RootCmd {
		// Unknown subcommands and root flag errors.
		if _, ok := err.(*fleeterrors.ExitCodeError); !ok {
			return fleeterrors.NewError(err, fleeterrors.UsageExitCode)
		}
	}
	return err
}

// NewCliClient builds the command tree. A non-nil transport replaces the one
// the config would build.
func NewCliClient(transport fleetconfig.Transport) commoncli.CLIClient {
	c := &FleetCLIClient{}
	c.Transport = transport
	c.In = os.Stdin
	c.Out = os.Stdout

	c.RootCmd = &cobra.Command{
		Use:                "fleet",
		Short:              "fleet hands jobs to the lab machines and cleans up after them",
		PersistentPreRunE:  c.Init,
		PersistentPostRunE: c.Close,
	}
	c.RootCmd.SetUsageTemplate(commoncli.UsageTemplate)
	c.RootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fleeterrors.NewError(err, fleeterrors.UsageExitCode)
	})
	c.RootCmd.PersistentFlags().StringVar(&c.ConfigFlag, "config", os.Getenv("FLEET_CONFIG"), "Config file, or literal YAML. Defaults to $FLEET_CONFIG")
	c.RootCmd.PersistentFlags().StringVar(&c.LogLevel, "log_level", "info", "Log everything at this level and above (error|info|debug)")
	c.RootCmd.PersistentFlags().BoolVar(&c.PrintStats, "stats", false, "Print collected stats as JSON when done")

	c.addCmd(&dispatchCmd{})
	c.addCmd(&submitCmd{})
	c.addCmd(&killCmd{})
	c.addCmd(&killPatternCmd{})
	c.addCmd(&killClientsCmd{})
	c.addCmd(&probeCmd{})
	c.addCmd(&machinesCmd{})
	return c
}

// Can only be called from cobra command run or hook
func (c *FleetCLIClient) Init(cmd *cobra.Command, args []string) error {
	// Arguments are valid by now; later errors are not usage errors.
	cmd.SilenceUsage = true

	if err := fleetlog.Configure(c.LogLevel, os.Stderr); err != nil {
		return fleeterrors.NewError(err, fleeterrors.UsageExitCode)
	}
	cfg, err := fleetconfig.Load(c.ConfigFlag)
	if err != nil {
		return err
	}
	c.Config = cfg
	if c.Pool, err = cfg.Pool(); err != nil {
		return err
	}
	c.Stat = stats.DefaultStatsReceiver()
	if c.Transport == nil {
		if c.Transport, err = cfg.Transport(osexecer.NewExecer()); err != nil {
			return err
		}
	}
	return nil
}

// Needs cobra parameters for use from rootCmd
func (c *FleetCLIClient) Close(cmd *cobra.Command, args []string) error {
	if c.PrintStats && c.Stat != nil {
		fmt.Fprintln(c.Out, string(c.Stat.Render(true)))
	}
	return nil
}

func (c *FleetCLIClient) addCmd(cmd commoncli.Cmd) {
	cobraCmd := cmd.RegisterFlags()
	cobraCmd.RunE = func(innerCmd *cobra.Command, args []string) error {
		return cmd.Run(&c.SimpleClient, innerCmd, args)
	}
	c.RootCmd.AddCommand(cobraCmd)
}

// usage turns an argument validator's failure into a usage error.
func usage(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return fleeterrors.NewError(err, fleeterrors.UsageExitCode)
		}
		return nil
	}
}

// zeroOr accepts no arguments or exactly n.
func zeroOr(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 && len(args) != n {
			return fmt.Errorf("accepts 0 or %d arg(s), received %d", n, len(args))
		}
		return nil
	}
}
