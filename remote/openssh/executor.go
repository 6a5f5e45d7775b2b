// Package openssh implements remote.Executor by running the local ssh
// client, so the user's ~/.ssh/config, agent and ControlMaster settings apply.
package openssh

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/shlex"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/vislab/fleet/cloud/cluster"
	"github.com/vislab/fleet/common/log/tags"
	"github.com/vislab/fleet/remote"
	"github.com/vislab/fleet/runner/execer"
)

// ssh exits 255 when it could not connect or authenticate.
const sshErrorExitCode = 255

type Config struct {
	// Defaults to "ssh".
	Binary   string
	User     string
	Port     string
	KeyFiles []string
	// Additional client options, split like a shell would, e.g. "-o StrictHostKeyChecking=no".
	ExtraArgs      string
	WorkDir        string
	ConnectTimeout time.Duration
}

type Executor struct {
	cfg   Config
	extra []string
	ex    execer.Execer
}

func New(cfg Config, ex execer.Execer) (*Executor, error) {
	extra, err := shlex.Split(cfg.ExtraArgs)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing ssh arguments %q", cfg.ExtraArgs)
	}
	if cfg.Binary == "" {
		cfg.Binary = "ssh"
	}
	return &Executor{cfg: cfg, extra: extra, ex: ex}, nil
}

// Argv returns the ssh invocation that runs line on machine.
func (e *Executor) Argv(machine cluster.Machine, line string) []string {
	argv := []string{e.cfg.Binary, "-o", "BatchMode=yes"}
	if e.cfg.ConnectTimeout > 0 {
		secs := int(e.cfg.ConnectTimeout / time.Second)
		if secs < 1 {
			secs = 1
		}
		argv = append(argv, "-o", "ConnectTimeout="+strconv.Itoa(secs))
	}
	if e.cfg.Port != "" {
		argv = append(argv, "-p", e.cfg.Port)
	}
	if e.cfg.User != "" {
		argv = append(argv, "-l", e.cfg.User)
	}
	for _, k := range e.cfg.KeyFiles {
		argv = append(argv, "-i", k)
	}
	argv = append(argv, e.extra...)
	return append(argv, machine.Address, line)
}

func (e *Executor) Run(ctx context.Context, machine cluster.Machine, command string, background bool) (int, error) {
	_, code, err := e.exec(ctx, machine, command, background)
	return code, err
}

func (e *Executor) Output(ctx context.Context, machine cluster.Machine, command string) ([]byte, int, error) {
	return e.exec(ctx, machine, command, false)
}

func (e *Executor) exec(ctx context.Context, machine cluster.Machine, command string, background bool) ([]byte, int, error) {
	if machine.Address == "" {
		return nil, -1, fmt.Errorf("machine %v has no address", machine.Key)
	}
	var stdout, stderr bytes.Buffer
	argv := e.Argv(machine, remote.Compose(e.cfg.WorkDir, command, background))
	proc, err := e.ex.Exec(execer.Command{
		Argv:    argv,
		Stdout:  &stdout,
		Stderr:  &stderr,
		LogTags: tags.LogTags{Machine: machine.Name, Tag: "ssh"},
	})
	if err != nil {
		return nil, -1, errors.Wrapf(err, "starting ssh for %s", machine)
	}

	statusCh := make(chan execer.ProcessStatus, 1)
	go func() { statusCh <- proc.Wait() }()
	var st execer.ProcessStatus
	select {
	case <-ctx.Done():
		proc.Abort()
		return nil, -1, ctx.Err()
	case st = <-statusCh:
	}

	if st.State != execer.COMPLETE {
		return nil, -1, errors.Errorf("ssh to %s failed: %s", machine, st.Error)
	}
	if st.ExitCode == sshErrorExitCode {
		log.Debugf("ssh to %s: %s", machine, bytes.TrimSpace(stderr.Bytes()))
		return nil, -1, errors.Errorf("ssh to %s exited %d: %s", machine, st.ExitCode, bytes.TrimSpace(stderr.Bytes()))
	}
	return stdout.Bytes(), st.ExitCode, nil
}

var _ remote.Executor = (*Executor)(nil)
var _ remote.Querier = (*Executor)(nil)
