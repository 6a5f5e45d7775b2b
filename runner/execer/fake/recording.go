// Package fake provides an Execer that records commands instead of running them.
package fake

import (
	"strings"
	"sync"

	"github.com/vislab/fleet/runner/execer"
)

// Script decides what a recorded command "does": what it prints and how it exits.
type Script func(argv []string) (stdout string, status execer.ProcessStatus)

// Completes every command with exit code 0 and no output.
func Succeed(argv []string) (string, execer.ProcessStatus) {
	return "", execer.ProcessStatus{State: execer.COMPLETE}
}

func NewRecordingExecer(script Script) *RecordingExecer {
	if script == nil {
		script = Succeed
	}
	return &RecordingExecer{script: script}
}

type RecordingExecer struct {
	script   Script
	mu       sync.Mutex
	commands []execer.Command
}

func (e *RecordingExecer) Exec(command execer.Command) (execer.Process, error) {
	e.mu.Lock()
	e.commands = append(e.commands, command)
	e.mu.Unlock()

	out, status := e.script(command.Argv)
	if command.Stdout != nil && out != "" {
		command.Stdout.Write([]byte(out))
	}
	return &doneProcess{status}, nil
}

// Commands returns what has been executed so far.
func (e *RecordingExecer) Commands() []execer.Command {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]execer.Command(nil), e.commands...)
}

// Argvs returns each executed command's argv joined by spaces.
func (e *RecordingExecer) Argvs() []string {
	var r []string
	for _, c := range e.Commands() {
		r = append(r, strings.Join(c.Argv, " "))
	}
	return r
}

type doneProcess struct {
	status execer.ProcessStatus
}

func (p *doneProcess) Wait() execer.ProcessStatus  { return p.status }
func (p *doneProcess) Abort() execer.ProcessStatus { return p.status }
