// Package dispatcher hands jobs to live machines of the pool.
//
// A dispatch pass takes the work queue in order. For each job it checks the
// idempotency marker, then probes candidate machines in the order the
// Distributor gives until one is alive, and sends the job to it in the
// background. Machines that fail a probe are not probed again in the same
// pass. If no candidate is alive the job fails with ErrNoMachineAvailable and
// the pass moves on to the next job.
package dispatcher

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	uuid "github.com/nu7hatch/gouuid"
	"github.com/pkg/errors"

	"github.com/vislab/fleet/cloud/cluster"
	fleeterrors "github.com/vislab/fleet/common/errors"
	"github.com/vislab/fleet/common/log/tags"
	"github.com/vislab/fleet/common/stats"
	"github.com/vislab/fleet/distributor"
	"github.com/vislab/fleet/jobs"
	"github.com/vislab/fleet/remote"
)

const DefaultProbeTimeout = 2 * time.Second

type Config struct {
	// Candidate machines, in the order distributors index them.
	Machines    []cluster.Machine
	Distributor distributor.Distributor
	Prober      remote.Prober
	Executor    remote.Executor
	// Defaults to jobs.FileMarker.
	Marker       jobs.Marker
	ProbeTimeout time.Duration
	// Probe and report, but print commands instead of sending them.
	DryRun bool
	// Receives the per-job notices. Defaults to stdout.
	Out  io.Writer
	Stat stats.StatsReceiver
}

type Dispatcher struct {
	cfg  Config
	stat stats.StatsReceiver
}

func New(cfg Config) (*Dispatcher, error) {
	if cfg.Prober == nil || cfg.Executor == nil {
		return nil, fleeterrors.NewConfigError("dispatcher needs a prober and an executor")
	}
	if cfg.Distributor == nil {
		cfg.Distributor = distributor.NewRoundRobin(0)
	}
	if cfg.Marker == nil {
		cfg.Marker = jobs.FileMarker
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Stat == nil {
		cfg.Stat = stats.NilStatsReceiver()
	}
	return &Dispatcher{cfg: cfg, stat: cfg.Stat.Scope("dispatch")}, nil
}

// Dispatch runs one pass over queue. It returns once every assigned job has
// been handed off; it never waits for the jobs themselves.
//
// Cancelling ctx stops the pass: jobs not yet reached stay PENDING.
func (d *Dispatcher) Dispatch(ctx context.Context, queue []jobs.Job) *Report {
	report := &Report{PassID: newPassID(), Outcomes: make([]Outcome, len(queue))}
	for i, job := range queue {
		report.Outcomes[i].Job = job
	}
	logTags := tags.LogTags{PassID: report.PassID}
	d.cfg.Distributor.Reset()
	logTags.Entry().Infof("Dispatching %d jobs over %d machines", len(queue), len(d.cfg.Machines))

	dead := map[cluster.Key]bool{}
	var wg sync.WaitGroup
	var handedOff []*Outcome
	for i, job := range queue {
		out := &report.Outcomes[i]
		if ctx.Err() != nil {
			logTags.Entry().Warnf("Pass cancelled, %d jobs not dispatched", len(queue)-i)
			break
		}
		d.stat.Counter(stats.DispatchJobsCounter).Inc(1)
		latency := d.stat.Latency(stats.DispatchJobLatency_ms).Time()

		if d.cfg.Marker.Done(job) {
			out.State = Skipped
			d.stat.Counter(stats.DispatchSkippedCounter).Inc(1)
			fmt.Fprintf(d.cfg.Out, "%s: done already\n", job)
			latency.Stop()
			continue
		}

		out.State = Probing
		idx, ok := d.pick(ctx, job, dead, out, logTags)
		if !ok {
			out.State = Failed
			out.Err = errors.Wrapf(fleeterrors.ErrNoMachineAvailable, "%s: probed %d machines", job, len(out.Probed))
			d.stat.Counter(stats.DispatchNoMachineCounter).Inc(1)
			logTags.Entry().Errorf("%v", out.Err)
			latency.Stop()
			continue
		}

		machine := d.cfg.Machines[idx]
		d.cfg.Distributor.Assigned(idx)
		out.State = Assigned
		out.Machine = machine
		d.stat.Counter(stats.DispatchAssignedCounter).Inc(1)
		if d.cfg.DryRun {
			fmt.Fprintf(d.cfg.Out, "%s: would submit to %s: %s\n", job, machine, job.Command)
			latency.Stop()
			continue
		}

		wg.Add(1)
		go func(out *Outcome, machine cluster.Machine) {
			defer wg.Done()
			defer latency.Stop()
			mTags := logTags.WithMachine(machine.Name)
			if _, err := d.cfg.Executor.Run(ctx, machine, out.Job.Command, true); err != nil {
				out.State = Failed
				out.Err = errors.Wrapf(err, "handing %s to %s", out.Job, machine)
				d.stat.Counter(stats.DispatchHandoffErrCounter).Inc(1)
				mTags.Entry().Errorf("%v", out.Err)
				return
			}
			mTags.Entry().Debugf("Handed off %s", out.Job)
		}(out, machine)
		handedOff = append(handedOff, out)
	}
	wg.Wait()

	for _, out := range handedOff {
		if out.State == Failed {
			fmt.Fprintf(d.cfg.Out, "%s: could not submit to %s: %v\n", out.Job, out.Machine, out.Err)
			continue
		}
		fmt.Fprintf(d.cfg.Out, "%s: submitted to %s\n", out.Job, out.Machine)
	}
	return report
}

// pick probes the job's candidates in order and returns the first live one.
func (d *Dispatcher) pick(ctx context.Context, job jobs.Job, dead map[cluster.Key]bool, out *Outcome, logTags tags.LogTags) (int, bool) {
	for _, idx := range d.cfg.Distributor.Candidates(job, d.cfg.Machines) {
		m := d.cfg.Machines[idx]
		if dead[m.Key] {
			continue
		}
		out.Probed = append(out.Probed, m)
		if d.cfg.Prober.IsAlive(ctx, m, d.cfg.ProbeTimeout) {
			return idx, true
		}
		dead[m.Key] = true
		logTags.WithMachine(m.Name).Entry().Infof("%s is down, skipped for the rest of this pass", m)
	}
	return 0, false
}

func newPassID() string {
	u, err := uuid.NewV4()
	if err != nil {
		return fmt.Sprintf("pass-%d", time.Now().UnixNano())
	}
	return u.String()
}
