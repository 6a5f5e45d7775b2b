// Package execclient runs one shard of a batch on the machine it was handed
// to. It is the worker side of `fleet submit`: a local pool of shell commands,
// skipping the ones whose expected outputs already exist.
package execclient

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vislab/fleet/common/log/tags"
	"github.com/vislab/fleet/common/stats"
	"github.com/vislab/fleet/jobs"
	"github.com/vislab/fleet/runner/execer"
)

type Options struct {
	// Concurrent commands; <= 0 means one per CPU.
	Threads int
	// Report progress every this many finished commands.
	Every int
	// Only consider the first Cap commands; <= 0 means all.
	Cap    int
	DryRun bool

	Hostname string
	// Progress lines. Defaults to stderr.
	Progress io.Writer
	// Output of the commands themselves. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer
}

type Client struct {
	opts   Options
	execer execer.Execer
	marker jobs.Marker
	stat   stats.StatsReceiver
}

// Result counts what a run did with the shard.
type Result struct {
	Total   int
	Skipped int
	Ran     int
	Failed  int
}

func New(opts Options, ex execer.Execer, stat stats.StatsReceiver) *Client {
	if opts.Threads <= 0 {
		opts.Threads = runtime.NumCPU()
	}
	if opts.Every <= 0 {
		opts.Every = 1
	}
	if opts.Hostname == "" {
		opts.Hostname, _ = os.Hostname()
	}
	if opts.Progress == nil {
		opts.Progress = os.Stderr
	}
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	return &Client{opts: opts, execer: ex, marker: jobs.FileMarker, stat: stat.Scope("exec")}
}

// LogPath is where failures of a shard are appended.
func LogPath(cmdsFile string) string {
	if strings.HasSuffix(cmdsFile, ".cmds") {
		return cmdsFile + ".log"
	}
	return cmdsFile + ".cmds.log"
}

// Run executes the shard in cmdsFile/expectsFile. A failing command is
// recorded as "<command>: <exit code>" in the log and does not stop the others.
func (c *Client) Run(ctx context.Context, cmdsFile, expectsFile string) (*Result, error) {
	all, err := jobs.ReadShard(cmdsFile, expectsFile)
	if err != nil {
		return nil, err
	}
	if c.opts.Cap > 0 && len(all) > c.opts.Cap {
		all = all[:c.opts.Cap]
	}
	res := &Result{Total: len(all)}
	var pending []jobs.Job
	for _, j := range all {
		if c.marker.Done(j) {
			res.Skipped++
			c.stat.Counter(stats.ExecDoneCounter).Inc(1)
			continue
		}
		pending = append(pending, j)
	}

	logFile, err := os.OpenFile(LogPath(cmdsFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "opening shard log")
	}
	defer logFile.Close()
	if _, err := fmt.Fprintf(logFile, "Host: %s\n\n", c.opts.Hostname); err != nil {
		return nil, errors.Wrap(err, "writing shard log")
	}

	if c.opts.DryRun {
		for _, j := range pending {
			log.Infof("(%s) %s", c.opts.Hostname, j.Command)
		}
		return res, nil
	}

	log.Infof("%s: %d of %d commands to run, %d threads", c.opts.Hostname, len(pending), len(all), c.opts.Threads)
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Threads)
	for _, j := range pending {
		j := j
		g.Go(func() error {
			st := c.run(gctx, j)
			mu.Lock()
			defer mu.Unlock()
			res.Ran++
			c.stat.Counter(stats.ExecRunCounter).Inc(1)
			if st.State != execer.COMPLETE || st.ExitCode != 0 {
				res.Failed++
				c.stat.Counter(stats.ExecFailedCounter).Inc(1)
				code := st.ExitCode
				if st.State != execer.COMPLETE {
					code = -1
				}
				if _, err := fmt.Fprintf(logFile, "%s: %d\n", j.Command, code); err != nil {
					return errors.Wrap(err, "writing shard log")
				}
			}
			if res.Ran%c.opts.Every == 0 || res.Ran == len(pending) {
				fmt.Fprintf(c.opts.Progress, "%s: %d/%d\n", c.opts.Hostname, res.Ran, len(pending))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	return res, ctx.Err()
}

func (c *Client) run(ctx context.Context, j jobs.Job) execer.ProcessStatus {
	p, err := c.execer.Exec(execer.Command{
		Argv:    []string{"sh", "-c", j.Command},
		Stdout:  c.opts.Stdout,
		Stderr:  c.opts.Stderr,
		LogTags: tags.LogTags{Machine: c.opts.Hostname, Tag: j.Name},
	})
	if err != nil {
		return execer.ProcessStatus{State: execer.FAILED, ExitCode: -1, Error: err.Error()}
	}
	done := make(chan execer.ProcessStatus, 1)
	go func() { done <- p.Wait() }()
	select {
	case st := <-done:
		return st
	case <-ctx.Done():
		return p.Abort()
	}
}
