package main

import (
	"context"
	"fmt"
	"os"

	"github.com/solacelabs/sam-core/config"
	"github.com/solacelabs/sam-core/logger"
)

// ResumeCmd manually resumes one paused task from its last checkpoint with
// no new messages, the operator-triggered half of spec §8 Scenario F
// (crash-restore): useful after a process was killed mid-task and its
// peer/aggregator state has already settled through the sweeper or a late
// response, but the task itself never got a chance to re-enter its loop.
type ResumeCmd struct {
	TaskID string `arg:"" name:"task-id" help:"Task ID to resume from its checkpoint."`
}

func (c *ResumeCmd) Run(cli *CLI) error {
	loaderCfg := config.NewLoader(cli.Config, nil)
	cfg, warnings, err := loaderCfg.Load()
	if err != nil {
		return fmt.Errorf("sam-agent: load config: %w", err)
	}

	level, _ := logger.ParseLevel(cfg.LogLevel)
	logger.Init(level, os.Stderr, cfg.LogFormat)
	log := logger.Get()
	for _, w := range warnings {
		log.Warn("config warning", "warning", w)
	}

	rt, cleanup, err := buildRuntime(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := rt.Core.ResumeTask(context.Background(), c.TaskID); err != nil {
		return fmt.Errorf("sam-agent: resume task %s: %w", c.TaskID, err)
	}
	fmt.Printf("resumed task %s\n", c.TaskID)
	return nil
}
