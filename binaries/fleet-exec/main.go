package main

import (
	"context"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vislab/fleet/common/client"
	fleeterrors "github.com/vislab/fleet/common/errors"
	fleetlog "github.com/vislab/fleet/common/log"
	"github.com/vislab/fleet/common/stats"
	osexecer "github.com/vislab/fleet/runner/execer/os"
	"github.com/vislab/fleet/worker/execclient"
)

// Runs one shard written by `fleet submit` on the local machine.
func main() {
	var opts execclient.Options
	var logLevel string
	root := &cobra.Command{
		Use:   "fleet-exec cmds_file expects_file",
		Short: "Run a shard of shell commands, skipping those whose expected outputs exist",
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.ExactArgs(2)(cmd, args); err != nil {
				return fleeterrors.NewError(err, fleeterrors.UsageExitCode)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			if err := fleetlog.Configure(logLevel, os.Stderr); err != nil {
				return err
			}
			stat := stats.DefaultStatsReceiver()
			res, err := execclient.New(opts, osexecer.NewExecer(), stat).Run(context.Background(), args[0], args[1])
			if err != nil {
				return err
			}
			log.Infof("%d commands: %d already done, %d ran, %d failed", res.Total, res.Skipped, res.Ran, res.Failed)
			return nil
		},
	}
	client.DescribeArgs(root,
		"  cmds_file     one shell command per line\n"+
			"  expects_file  on the matching line, the space-separated files that command produces")
	root.SetUsageTemplate(client.UsageTemplate)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fleeterrors.NewError(err, fleeterrors.UsageExitCode)
	})
	root.Flags().IntVarP(&opts.Threads, "threads", "t", -1, "Commands to run at once; <= 0 means one per CPU")
	root.Flags().IntVarP(&opts.Every, "every", "e", 1, "Report progress every N finished commands")
	root.Flags().IntVarP(&opts.Cap, "cap", "c", -1, "Only consider the first N commands, to try out a batch")
	root.Flags().BoolVarP(&opts.DryRun, "dryrun", "d", false, "List the commands that would run instead of running them")
	root.Flags().StringVar(&logLevel, "log_level", "info", "Log everything at this level and above (error|info|debug)")

	if err := root.Execute(); err != nil {
		os.Exit(int(fleeterrors.ExitCodeOf(err)))
	}
}
