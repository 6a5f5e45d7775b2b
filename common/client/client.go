package client

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/vislab/fleet/cloud/cluster"
	"github.com/vislab/fleet/common/stats"
	"github.com/vislab/fleet/config/fleetconfig"
)

// Client interface that includes CLI handling
type CLIClient interface {
	Exec() error
}

// SimpleClient includes base fields required for implementing client
type SimpleClient struct {
	RootCmd    *cobra.Command
	ConfigFlag string
	LogLevel   string
	PrintStats bool

	Config *fleetconfig.Config
	Pool   *cluster.Pool
	// Built from Config unless already set.
	Transport fleetconfig.Transport
	Stat      stats.StatsReceiver

	In  io.Reader
	Out io.Writer
}

// Command interface used to run client commands
type Cmd interface {
	RegisterFlags() *cobra.Command
	Run(cl *SimpleClient, cmd *cobra.Command, args []string) error
}
