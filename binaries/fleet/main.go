package main

import (
	"os"

	fleeterrors "github.com/vislab/fleet/common/errors"
	"github.com/vislab/fleet/fleet/cli"
)

// Lab job dispatch command-line client
func main() {
	if err := cli.NewCliClient(nil).Exec(); err != nil {
		os.Exit(int(fleeterrors.ExitCodeOf(err)))
	}
}
