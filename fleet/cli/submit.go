package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/rand"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/vislab/fleet/cloud/cluster"
	"github.com/vislab/fleet/common/client"
	fleeterrors "github.com/vislab/fleet/common/errors"
	"github.com/vislab/fleet/dispatcher"
	"github.com/vislab/fleet/distributor"
	"github.com/vislab/fleet/jobs"
	"github.com/vislab/fleet/remote"
)

// Lists the batch runner invocation of each shard, in shard order.
const recordFile = "ssh.cmds"

type submitCmd struct {
	exclusionFlags
	dryRun     bool
	yes        bool
	seed       int64
	threads    int
	every      int
	cap        int
	execDryRun bool
}

func (c *submitCmd) RegisterFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "submit",
		Short: "Split the work queue into one shard per machine and start the batch runner on each",
		Long: "Writes <job>_NNNNNNNNN.cmds/.expects shards into a freshly emptied pool dir, one per\n" +
			"machine (general machines first, each class shuffled), shows the first job and asks\n" +
			"for confirmation, then starts the batch runner on every machine in the background.",
		Args: usage(cobra.NoArgs),
	}
	c.exclusionFlags.register(r)
	r.Flags().BoolVar(&c.dryRun, "dryrun", false, "Write the shards but print the runner commands instead of sending them")
	r.Flags().BoolVarP(&c.yes, "yes", "y", false, "Don't ask before submitting")
	r.Flags().Int64Var(&c.seed, "seed", 0, "Seed for the machine shuffle. 0 seeds from the clock")
	r.Flags().IntVar(&c.threads, "exec-threads", 0, "Batch runner: commands run at once per machine (overrides exec.threads)")
	r.Flags().IntVar(&c.every, "exec-every", 0, "Batch runner: report progress every N commands (overrides exec.every)")
	r.Flags().IntVar(&c.cap, "exec-cap", 0, "Batch runner: only run the first N commands, to try out a batch (overrides exec.cap)")
	r.Flags().BoolVar(&c.execDryRun, "exec-dryrun", false, "Batch runner: list commands instead of running them")
	return r
}

func (c *submitCmd) Run(cl *client.SimpleClient, cmd *cobra.Command, args []string) error {
	cfg := cl.Config
	ex, err := c.set(cl.Pool)
	if err != nil {
		return err
	}
	src, err := cfg.Source()
	if err != nil {
		return err
	}
	queue, err := src.Jobs()
	if err != nil {
		return err
	}
	if len(queue) == 0 {
		fmt.Fprintln(cl.Out, "Nothing to submit.")
		return nil
	}

	seed := c.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	var machines []cluster.Machine
	for _, m := range cl.Pool.Shuffled(rand.New(rand.NewSource(seed))) {
		if !ex.Contains(m.Key) {
			machines = append(machines, m)
		}
	}
	if len(machines) == 0 {
		return errors.Wrap(fleeterrors.ErrNoMachineAvailable, "every machine is excluded")
	}

	poolDir := cfg.Path(cfg.Job.PoolDir)
	if err := jobs.ResetDir(poolDir); err != nil {
		return err
	}
	shards, err := jobs.WriteShards(poolDir, cfg.JobName(), queue, len(machines))
	if err != nil {
		return err
	}

	if !c.yes && !confirm(cl.In, cl.Out, preview(queue[0])) {
		return errors.New("submission aborted")
	}

	if cmd.Flags().Changed("exec-threads") {
		cfg.Exec.Threads = c.threads
	}
	if cmd.Flags().Changed("exec-every") {
		cfg.Exec.Every = c.every
	}
	if cmd.Flags().Changed("exec-cap") {
		cfg.Exec.Cap = c.cap
	}
	if c.execDryRun {
		cfg.Exec.DryRun = true
	}
	runner := append([]string{cfg.Job.ExecClient}, cfg.ExecArgs()...)

	batch := make([]jobs.Job, len(shards))
	for i, s := range shards {
		line := strings.Join(append(runner, remote.Quote(s.CmdsFile), remote.Quote(s.ExpectsFile)), " ")
		batch[i] = jobs.Job{Name: filepath.Base(s.CmdsFile), Command: line, Expects: shardExpects(s)}
	}

	// Shard i goes to machine i when it is up, otherwise to the next live one.
	d, err := dispatcher.New(dispatcher.Config{
		Machines:     machines,
		Distributor:  distributor.NewRoundRobin(0),
		Prober:       cfg.Prober(cl.Transport, cl.Stat),
		Executor:     cl.Transport,
		ProbeTimeout: cfg.Probe.Timeout.Std(),
		DryRun:       c.dryRun,
		Out:          cl.Out,
		Stat:         cl.Stat,
	})
	if err != nil {
		return err
	}
	report := d.Dispatch(context.Background(), batch)

	// Where each shard actually went.
	var record []string
	for _, o := range report.Outcomes {
		if o.State == dispatcher.Assigned {
			record = append(record, o.Machine.Name+"\t"+o.Job.Command)
		}
	}
	if err := jobs.WriteLines(filepath.Join(poolDir, recordFile), record); err != nil {
		return err
	}
	fmt.Fprintf(cl.Out, "%d jobs in %d shards: %d submitted, %d done already, %d failed\n", len(queue), len(shards),
		report.Count(dispatcher.Assigned), report.Count(dispatcher.Skipped), report.Count(dispatcher.Failed))
	return report.Err()
}

// shardExpects is the union of the shard's expected outputs, or nil when
// some job has none, so that a shard only counts as done when all its jobs do.
func shardExpects(s jobs.Shard) []string {
	var all []string
	for _, j := range s.Jobs {
		if len(j.Expects) == 0 {
			return nil
		}
		all = append(all, j.Expects...)
	}
	return all
}

func preview(j jobs.Job) string {
	argv, err := shlex.Split(j.Command)
	if err != nil || len(argv) == 0 {
		argv = []string{j.Command}
	}
	return "The first job will be:\n\t" + strings.Join(argv, "\n\t")
}

// confirm shows msg and reads a yes/no answer; anything but yes is no.
func confirm(in io.Reader, out io.Writer, msg string) bool {
	fmt.Fprintf(out, "%s\nProceed? [y/N] ", msg)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}
