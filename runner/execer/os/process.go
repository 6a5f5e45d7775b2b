package os

import (
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vislab/fleet/common/log/tags"
	"github.com/vislab/fleet/runner/execer"
)

// Implements runner/execer.Process
type process struct {
	cmd    *exec.Cmd
	wg     *sync.WaitGroup
	done   chan struct{}
	result execer.ProcessStatus
	mutex  sync.Mutex
	abort  *execer.ProcessStatus
	// closed once abort is final
	abortDone chan struct{}
	ats       int // Abort Timeout before sigkill, in Seconds
	tags.LogTags
}

func newProcess(cmd *exec.Cmd, wg *sync.WaitGroup, command execer.Command) *process {
	p := &process{cmd: cmd, wg: wg, done: make(chan struct{}), ats: AbortTimeoutSec, LogTags: command.LogTags}
	go p.reap()
	return p
}

// reap owns cmd.Wait so that Wait and Abort can race safely.
func (p *process) reap() {
	// Wait for the output goroutines to finish then wait on the process itself to release resources.
	p.wg.Wait()
	err := p.cmd.Wait()
	p.result = statusOf(err)
	close(p.done)
}

// Wait for the process to finish.
// If the command finishes without error return the status COMPLETE and exit Code 0.
// If the command fails, and we can get the exit code from the command, return COMPLETE with the failing exit code.
// if the command fails and we cannot get the exit code from the command, return FAILED and the error
// that prevented getting the exit code.
func (p *process) Wait() execer.ProcessStatus {
	<-p.done
	p.mutex.Lock()
	abortDone := p.abortDone
	p.mutex.Unlock()
	if abortDone != nil {
		<-abortDone
		p.mutex.Lock()
		defer p.mutex.Unlock()
		return *p.abort
	}
	return p.result
}

func statusOf(err error) (result execer.ProcessStatus) {
	if err == nil {
		result.State = execer.COMPLETE
		return result
	}
	if err, ok := err.(*exec.ExitError); ok {
		// the command returned an error, if we can get a WaitStatus from the error,
		// we can get the commands exit code
		if status, ok := err.Sys().(syscall.WaitStatus); ok {
			result.State = execer.COMPLETE
			result.ExitCode = status.ExitStatus()
			return result
		}
		result.State = execer.FAILED
		result.Error = "Could not find WaitStatus from exiterr.Sys()"
		return result
	}
	result.State = execer.FAILED
	result.Error = err.Error()
	return result
}

// Attempt to SIGTERM the process group, allowing for graceful exit.
// SIGKILL after ats seconds.
func (p *process) Abort() execer.ProcessStatus {
	p.mutex.Lock()
	if p.abort != nil {
		p.mutex.Unlock()
		return p.Wait()
	}
	select {
	case <-p.done:
		p.mutex.Unlock()
		return p.result
	default:
	}
	p.abort = &execer.ProcessStatus{State: execer.FAILED, ExitCode: -1, Error: "Aborted"}
	p.abortDone = make(chan struct{})
	p.mutex.Unlock()

	pid := p.cmd.Process.Pid
	fields := p.LogTags.Fields()
	fields["pid"] = pid
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		log.WithFields(fields).Errorf("Error aborting command via SIGTERM: %s", err)
	} else {
		log.WithFields(fields).Info("Aborting process via SIGTERM")
	}

	select {
	case <-p.done:
		p.setAbortSuffix(" (SIGTERM)")
	case <-time.After(time.Second * time.Duration(p.ats)):
		log.WithFields(fields).Errorf("%d second timeout exceeded. Killing command.", p.ats)
		syscall.Kill(-pid, syscall.SIGKILL)
		<-p.done
		p.setAbortSuffix(" (SIGKILL)")
	}
	close(p.abortDone)
	return p.Wait()
}

func (p *process) setAbortSuffix(s string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.abort.Error += s
}

func (p *process) String() string {
	return fmt.Sprintf("pid %d %v", p.cmd.Process.Pid, p.cmd.Args)
}
