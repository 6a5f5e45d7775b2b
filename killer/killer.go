// Package killer stops user processes across the pool.
package killer

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vislab/fleet/cloud/cluster"
	fleeterrors "github.com/vislab/fleet/common/errors"
	"github.com/vislab/fleet/common/log/tags"
	"github.com/vislab/fleet/common/stats"
	"github.com/vislab/fleet/remote"
)

// Commands run on each machine. KillPattern gets the quoted pattern appended.
type Commands struct {
	KillAll     string
	KillPattern string
	ListProcs   string
	// Process name KillClients looks for.
	ClientName string
}

// DefaultCommands targets the given user's processes. An empty user leaves
// $USER to be expanded by the remote shell.
func DefaultCommands(user string) Commands {
	u := "$USER"
	if user != "" {
		u = remote.Quote(user)
	}
	return Commands{
		KillAll:     "pkill -9 -u " + u,
		KillPattern: "pkill -9 -u " + u + " -f",
		ListProcs:   "ps a -u " + u + " x",
		ClientName:  "fleet-exec",
	}
}

type Config struct {
	Pool     *cluster.Pool
	Executor remote.Executor
	// Querier and Prober are only needed by KillClients.
	Querier      remote.Querier
	Prober       remote.Prober
	ProbeTimeout time.Duration
	Commands     Commands
	// Name of the host we run on. Defaults to os.Hostname.
	Hostname string
	Stat     stats.StatsReceiver
}

type Killer struct {
	cfg  Config
	stat stats.StatsReceiver
}

func New(cfg Config) (*Killer, error) {
	if cfg.Pool == nil || cfg.Executor == nil {
		return nil, fleeterrors.NewConfigError("killer needs a pool and an executor")
	}
	def := DefaultCommands("")
	if cfg.Commands.KillAll == "" {
		cfg.Commands.KillAll = def.KillAll
	}
	if cfg.Commands.KillPattern == "" {
		cfg.Commands.KillPattern = def.KillPattern
	}
	if cfg.Commands.ListProcs == "" {
		cfg.Commands.ListProcs = def.ListProcs
	}
	if cfg.Commands.ClientName == "" {
		cfg.Commands.ClientName = def.ClientName
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 2 * time.Second
	}
	if cfg.Hostname == "" {
		if h, err := os.Hostname(); err == nil {
			cfg.Hostname = h
		}
	}
	if cfg.Stat == nil {
		cfg.Stat = stats.NilStatsReceiver()
	}
	return &Killer{cfg: cfg, stat: cfg.Stat.Scope("kill")}, nil
}

// KillAll sends the kill command to every pool machine not in exclusions and
// returns the machines it was sent to. Sends are concurrent and independent:
// a failure on one machine is logged and does not affect the others.
//
// Exclusions naming machines outside the pool are a ConfigError, returned
// before anything is sent.
func (k *Killer) KillAll(ctx context.Context, exclusions cluster.ExclusionSet) ([]cluster.Machine, error) {
	if err := k.cfg.Pool.Validate(exclusions); err != nil {
		return nil, err
	}
	targets := k.cfg.Pool.Without(exclusions)
	k.stat.Counter(stats.KillExcludedCounter).Inc(int64(k.cfg.Pool.Len() - len(targets)))
	for _, key := range exclusions.Keys() {
		log.Infof("Sparing %s", key)
	}
	k.send(ctx, targets, k.cfg.Commands.KillAll)
	return targets, nil
}

// KillByPattern kills processes whose full command line matches pattern on
// every pool machine.
func (k *Killer) KillByPattern(ctx context.Context, pattern string) ([]cluster.Machine, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, fleeterrors.NewConfigError("empty kill pattern would match every process")
	}
	targets := k.cfg.Pool.All()
	k.send(ctx, targets, k.cfg.Commands.KillPattern+" "+remote.Quote(pattern))
	return targets, nil
}

func (k *Killer) send(ctx context.Context, machines []cluster.Machine, command string) {
	var wg sync.WaitGroup
	for _, m := range machines {
		wg.Add(1)
		go func(m cluster.Machine) {
			defer wg.Done()
			entry := tags.LogTags{Tag: "kill"}.WithMachine(m.Name).Entry()
			if _, err := k.cfg.Executor.Run(ctx, m, command, true); err != nil {
				k.stat.Counter(stats.KillErrCounter).Inc(1)
				entry.Errorf("Couldn't send %q: %v", command, err)
				return
			}
			k.stat.Counter(stats.KillSentCounter).Inc(1)
			entry.Debugf("Sent %q", command)
		}(m)
	}
	wg.Wait()
}
