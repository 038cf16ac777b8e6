package main

import (
	"context"
	"fmt"

	"github.com/solacelabs/sam-core/config"
	"github.com/solacelabs/sam-core/logger"
)

// StatsCmd prints outstanding checkpoint state for this agent identity
// (SPEC_FULL supplemented admin surface, grounded on the teacher's
// checkpoint.Manager.GetStats exposed through `hector info`-style commands).
type StatsCmd struct{}

func (c *StatsCmd) Run(cli *CLI) error {
	loader := config.NewLoader(cli.Config, nil)
	cfg, warnings, err := loader.Load()
	if err != nil {
		return err
	}
	for _, w := range warnings {
		fmt.Println("warning:", w)
	}

	store, err := openCheckpointStore(cfg, logger.Get())
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.Stats(context.Background(), cfg.AgentName)
	if err != nil {
		return fmt.Errorf("sam-agent: fetch stats: %w", err)
	}

	fmt.Printf("agent_name:           %s\n", stats.AgentName)
	fmt.Printf("paused_tasks:         %d\n", stats.PausedTasks)
	fmt.Printf("outstanding_subtasks: %d\n", stats.OutstandingSubTasks)
	fmt.Printf("pending_aggregators:  %d\n", stats.PendingAggregators)
	return nil
}
