package os

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"os/exec"
	"sync"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vislab/fleet/runner/execer"
)

// Seconds between SIGTERM and SIGKILL on Abort.
var AbortTimeoutSec = 5

func NewExecer() execer.Execer {
	return &osExecer{}
}

// Implements runner/execer.Execer
type osExecer struct{}

// Start a command in its own process group and return a process wrapper for it.
func (e *osExecer) Exec(command execer.Command) (execer.Process, error) {
	if len(command.Argv) == 0 {
		return nil, fmt.Errorf("No command specified.")
	}

	cmd := exec.Command(command.Argv[0], command.Argv[1:]...)
	cmd.Dir = command.Dir

	// Use the parent environment plus whatever additional env vars are provided.
	cmd.Env = os.Environ()
	for k, v := range command.EnvVars {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	// Sets pgid of all child processes to cmd's pid
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, stderr := command.Stdout, command.Stderr
	if stdout == nil {
		stdout = ioutil.Discard
	}
	if stderr == nil {
		stderr = ioutil.Discard
	}

	// Use pipes and drain them before cmd.Wait(), which closes the read ends.
	stdErrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	stdOutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		io.Copy(stderr, stdErrPipe)
	}()
	go func() {
		defer wg.Done()
		io.Copy(stdout, stdOutPipe)
	}()

	log.WithFields(command.LogTags.Fields()).WithField("pid", cmd.Process.Pid).Debugf("Started %v", command.Argv)
	return newProcess(cmd, &wg, command), nil
}
