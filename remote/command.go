package remote

import (
	"strings"
)

// NoOp is the command liveness probes run.
const NoOp = "true"

// Quote single-quotes s for a POSIX shell.
func Quote(s string) string {
	return "'" + strings.Replace(s, "'", `'\''`, -1) + "'"
}

// Compose builds the remote shell line for command: it runs in dir when dir is
// set, and when background is set it is detached from the session with its
// output discarded so the session can close right away.
func Compose(dir, command string, background bool) string {
	line := command
	if dir != "" {
		line = "cd " + Quote(dir) + " && " + command
	}
	if background {
		line = "nohup sh -c " + Quote(line) + " >/dev/null 2>&1 </dev/null &"
	}
	return line
}
