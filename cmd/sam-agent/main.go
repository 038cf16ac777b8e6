// Command sam-agent hosts one Agent Core identity: subscribing to its
// broker topics, running the timeout sweeper and discovery publisher, and
// exposing a Prometheus metrics endpoint, plus small operator subcommands
// for checkpoint inspection and manual recovery.
//
// Usage:
//
//	sam-agent serve --config agent.yaml
//	sam-agent validate --config agent.yaml
//	sam-agent stats --config agent.yaml
//	sam-agent resume --config agent.yaml <task-id>
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
)

// CLI mirrors the teacher's cmd/hector struct-of-subcommands shape.
type CLI struct {
	Serve    ServeCmd    `cmd:"" help:"Start the agent: subscribe to broker topics and run the turn loop."`
	Resume   ResumeCmd   `cmd:"" help:"Manually resume one paused task from its checkpoint."`
	Stats    StatsCmd    `cmd:"" help:"Print checkpoint store statistics for this agent."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`

	Config string `short:"c" help:"Path to config file." type:"path" default:"sam-agent.yaml"`
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("sam-agent"),
		kong.Description("Solace Agent Mesh core runtime"),
		kong.UsageOnError(),
	)
	if err := ctx.Run(&cli); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
