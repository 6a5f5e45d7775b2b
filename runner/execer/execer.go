package execer

import (
	"io"

	"github.com/vislab/fleet/common/log/tags"
)

// Execer lets you run one Unix command. It's at the level of os/exec: the
// remote transports and the batch client build on it, and tests fake it.

type Command struct {
	Argv    []string
	Dir     string
	EnvVars map[string]string

	// Nil discards the stream.
	Stdout io.Writer
	Stderr io.Writer

	tags.LogTags
}

type ProcessState int

const (
	UNKNOWN ProcessState = iota
	RUNNING
	COMPLETE
	FAILED
)

func (s ProcessState) IsDone() bool {
	return s == COMPLETE || s == FAILED
}

func (s ProcessState) String() string {
	switch s {
	case RUNNING:
		return "RUNNING"
	case COMPLETE:
		return "COMPLETE"
	case FAILED:
		return "FAILED"
	}
	return "UNKNOWN"
}

type Execer interface {
	Exec(command Command) (Process, error)
}

type Process interface {
	// Wait blocks until the process exits.
	Wait() ProcessStatus
	// Abort kills the process group and returns the resulting status.
	Abort() ProcessStatus
}

// A COMPLETE status carries the process's exit code; FAILED means the exit
// code could not be determined and Error says why.
type ProcessStatus struct {
	State    ProcessState
	ExitCode int
	Error    string
}
