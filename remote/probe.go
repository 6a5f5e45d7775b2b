package remote

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/vislab/fleet/cloud/cluster"
	fleeterrors "github.com/vislab/fleet/common/errors"
	"github.com/vislab/fleet/common/stats"
)

// NewProber returns a Prober that runs NoOp in the foreground through exec.
func NewProber(exec Executor, stat stats.StatsReceiver) Prober {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	return &execProber{exec: exec, stat: stat.Scope("probe")}
}

type execProber struct {
	exec Executor
	stat stats.StatsReceiver
}

func (p *execProber) IsAlive(ctx context.Context, machine cluster.Machine, timeout time.Duration) bool {
	defer p.stat.Latency(stats.ProbeLatency_ms).Time().Stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	code, err := p.run(ctx, machine)
	switch {
	case err == nil && code == 0:
		p.stat.Counter(stats.ProbeAliveCounter).Inc(1)
		log.Debugf("%s is alive", machine)
		return true
	case errors.Cause(err) == fleeterrors.ErrProbeTimeout:
		p.stat.Counter(stats.ProbeTimeoutCounter).Inc(1)
		log.Infof("%s didn't answer within %v, presumed dead", machine, timeout)
	case err != nil:
		p.stat.Counter(stats.ProbeDeadCounter).Inc(1)
		log.Infof("%s is dead: %v", machine, err)
	default:
		p.stat.Counter(stats.ProbeDeadCounter).Inc(1)
		log.Infof("%s is dead: no-op exited %d", machine, code)
	}
	return false
}

// run enforces the deadline even when the executor ignores ctx.
func (p *execProber) run(ctx context.Context, machine cluster.Machine) (int, error) {
	type result struct {
		code int
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		code, err := p.exec.Run(ctx, machine, NoOp, false)
		ch <- result{code, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil && ctx.Err() == context.DeadlineExceeded {
			return -1, errors.Wrap(fleeterrors.ErrProbeTimeout, r.err.Error())
		}
		return r.code, r.err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return -1, fleeterrors.ErrProbeTimeout
		}
		return -1, ctx.Err()
	}
}
