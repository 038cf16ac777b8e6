package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/solacelabs/sam-core/config"
	"github.com/solacelabs/sam-core/logger"
	"github.com/solacelabs/sam-core/tracing"
)

// ServeCmd starts the Agent Core: it subscribes to the broker's request and
// response topics, launches the timeout sweeper and discovery publisher,
// and serves /metrics, then blocks until SIGINT/SIGTERM (spec §4, §5).
type ServeCmd struct {
	MetricsAddr string `name:"metrics-addr" help:"Address to serve Prometheus /metrics on (empty disables)."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

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

	tp := tracing.Init(cfg.AgentName)
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = tracing.Shutdown(shutdownCtx, tp)
	}()

	rt, cleanup, err := buildRuntime(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	metricsAddr := c.MetricsAddr
	if metricsAddr == "" {
		metricsAddr = cfg.MetricsAddr
	}
	if metricsAddr != "" {
		go serveMetrics(metricsAddr, rt.Core, log)
	}

	if err := rt.Start(ctx); err != nil {
		return fmt.Errorf("sam-agent: start runtime: %w", err)
	}

	log.Info("sam-agent serving", "agent_name", cfg.AgentName, "namespace", cfg.Namespace)
	<-ctx.Done()

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	return rt.Shutdown(shutdownCtx)
}
