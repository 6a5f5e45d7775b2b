package killer

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/vislab/fleet/cloud/cluster"
	fleeterrors "github.com/vislab/fleet/common/errors"
	"github.com/vislab/fleet/common/log/tags"
	"github.com/vislab/fleet/common/stats"
)

// Client is a detached batch runner found on a machine.
type Client struct {
	Machine cluster.Machine
	Pid     int
}

func (c Client) String() string {
	return fmt.Sprintf("%s:%d", c.Machine, c.Pid)
}

// PID TTY STAT TIME COMMAND
var psLine = regexp.MustCompile(`^\s*(\d+)\s+(\S+)\s+(\S+)\s+\S+\s+(.*)$`)

// KillClients finds detached batch runners on every live machine except the
// local host and kills them. It returns the clients it sent a kill for.
func (k *Killer) KillClients(ctx context.Context) ([]Client, error) {
	if k.cfg.Querier == nil || k.cfg.Prober == nil {
		return nil, fleeterrors.NewConfigError("killing clients needs a querier and a prober")
	}
	var mu sync.Mutex
	var killed []Client
	var wg sync.WaitGroup
	for _, m := range k.cfg.Pool.All() {
		if k.isLocal(m) {
			tags.LogTags{Tag: "killclients"}.WithMachine(m.Name).Entry().Info("Not killing clients on the local host")
			continue
		}
		wg.Add(1)
		go func(m cluster.Machine) {
			defer wg.Done()
			found := k.killClients(ctx, m)
			mu.Lock()
			killed = append(killed, found...)
			mu.Unlock()
		}(m)
	}
	wg.Wait()
	sort.Slice(killed, func(i, j int) bool {
		if killed[i].Machine.Name != killed[j].Machine.Name {
			return killed[i].Machine.Name < killed[j].Machine.Name
		}
		return killed[i].Pid < killed[j].Pid
	})
	return killed, nil
}

func (k *Killer) killClients(ctx context.Context, m cluster.Machine) []Client {
	entry := tags.LogTags{Tag: "killclients"}.WithMachine(m.Name).Entry()
	if !k.cfg.Prober.IsAlive(ctx, m, k.cfg.ProbeTimeout) {
		entry.Info("Down, skipping")
		return nil
	}
	out, code, err := k.cfg.Querier.Output(ctx, m, k.cfg.Commands.ListProcs)
	if err != nil || code != 0 {
		k.stat.Counter(stats.KillErrCounter).Inc(1)
		entry.Errorf("Couldn't list processes, exit %d: %v", code, err)
		return nil
	}
	var killed []Client
	for _, pid := range parseClients(out, k.cfg.Commands.ClientName) {
		if _, err := k.cfg.Executor.Run(ctx, m, fmt.Sprintf("kill -9 %d", pid), false); err != nil {
			k.stat.Counter(stats.KillErrCounter).Inc(1)
			entry.Errorf("Couldn't kill %d: %v", pid, err)
			continue
		}
		k.stat.Counter(stats.KillSentCounter).Inc(1)
		entry.Infof("Killed client %d", pid)
		killed = append(killed, Client{Machine: m, Pid: pid})
	}
	return killed
}

// parseClients returns the pids of detached (no tty), sleeping processes whose
// command line mentions name.
func parseClients(data []byte, name string) []int {
	pids := []int{}
	for _, line := range strings.Split(string(data), "\n") {
		matches := psLine.FindStringSubmatch(line)
		if len(matches) != 5 || !strings.Contains(matches[4], name) {
			continue
		}
		if matches[2] != "?" || !strings.Contains(matches[3], "S") {
			continue
		}
		if pid, err := strconv.Atoi(matches[1]); err == nil {
			pids = append(pids, pid)
		}
	}
	return pids
}

func (k *Killer) isLocal(m cluster.Machine) bool {
	if k.cfg.Hostname == "" {
		return false
	}
	short := func(h string) string { return strings.SplitN(h, ".", 2)[0] }
	return short(k.cfg.Hostname) == short(m.Name) || k.cfg.Hostname == m.Address
}
