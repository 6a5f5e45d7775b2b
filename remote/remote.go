// Package remote defines how fleet runs commands on lab machines and how it
// decides whether a machine is worth sending work to.
package remote

//go:generate mockgen -source=remote.go -package=remote -destination=remote_mock.go

import (
	"context"
	"time"

	"github.com/vislab/fleet/cloud/cluster"
)

// Executor runs a shell command on a machine.
//
// With background set, the command is detached on the remote side and Run
// returns once the hand-off is done; the command's own exit status is never
// observed, and the returned code only reflects the hand-off. Otherwise Run
// blocks until the command exits and returns its exit code.
//
// err is non-nil only when the command could not be run at all (connection,
// authentication, context expiry); a non-zero exit is not an error.
type Executor interface {
	Run(ctx context.Context, machine cluster.Machine, command string, background bool) (exitCode int, err error)
}

// Querier runs a command in the foreground and returns its stdout.
type Querier interface {
	Output(ctx context.Context, machine cluster.Machine, command string) (stdout []byte, exitCode int, err error)
}

// Prober is the liveness check. It is advisory: failures and timeouts are
// reported as a dead machine, never as an error.
type Prober interface {
	IsAlive(ctx context.Context, machine cluster.Machine, timeout time.Duration) bool
}
