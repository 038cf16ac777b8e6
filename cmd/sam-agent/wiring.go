package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/solacelabs/sam-core/agent/adk/checkpoint"
	"github.com/solacelabs/sam-core/agent/sac"
	"github.com/solacelabs/sam-core/broker"
	"github.com/solacelabs/sam-core/collab"
	"github.com/solacelabs/sam-core/config"
	"github.com/solacelabs/sam-core/internal/zeroconfig"
	"github.com/solacelabs/sam-core/metrics"
	"github.com/solacelabs/sam-core/security"
)

// sqlDriverName maps a checkpoint_dialect config value to its
// database/sql driver name (spec §6, §4.4 three-dialect portability).
func sqlDriverName(dialect string) (string, error) {
	switch dialect {
	case "sqlite":
		return "sqlite3", nil
	case "postgres":
		return "postgres", nil
	case "mysql":
		return "mysql", nil
	default:
		return "", fmt.Errorf("sam-agent: unsupported checkpoint_dialect %q", dialect)
	}
}

// openCheckpointStore opens the SQL-backed Checkpoint Store named by cfg,
// shared by the serve, resume, and stats subcommands so they all see the
// same durable state.
func openCheckpointStore(cfg config.Config, logger *slog.Logger) (*checkpoint.SQLStore, error) {
	driver, err := sqlDriverName(cfg.CheckpointDialect)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, cfg.CheckpointBackendURL)
	if err != nil {
		return nil, fmt.Errorf("sam-agent: open checkpoint database: %w", err)
	}
	store, err := checkpoint.OpenSQLStore(db, cfg.CheckpointDialect, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// buildRuntime wires a full sac.Runtime from cfg: the SQL checkpoint store,
// an in-memory broker.Adapter (the "no real network" reference adapter
// named in the domain stack; production deployments supply their own
// Adapter against a real broker), Prometheus metrics, and either a JWT
// AccessValidator (when jwks_url is configured) or no external validator
// beyond the Agent Core's own unconditional self-delegation guard. LLM,
// tools, and artifact storage are always the zero-config null objects; no
// hook here lets a caller substitute its own.
func buildRuntime(cfg config.Config, logger *slog.Logger) (*sac.Runtime, func(), error) {
	store, err := openCheckpointStore(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	br := broker.NewMemory()
	m := metrics.New()

	var access collab.AccessValidator
	if cfg.JWKSUrl != "" {
		jwtValidator, err := security.NewJWTAccessValidator(context.Background(), cfg.JWKSUrl, cfg.AgentName, cfg.Namespace)
		if err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("sam-agent: build access validator: %w", err)
		}
		access = &security.SelfDelegationValidator{SelfName: cfg.AgentName, Inner: jwtValidator}
	}

	core := sac.New(
		cfg.AgentName, cfg.Namespace, br, store,
		zeroconfig.EchoLLM{}, collab.NewRegistry(), zeroconfig.NoopLocalTools{}, zeroconfig.NoopArtifacts{}, access,
		cfg.WorkerPoolSize, cfg.LLMRetryMaxAttempts, cfg.DefaultPeerTimeoutSeconds,
		sac.WithMetrics(m), sac.WithLogger(logger),
	)

	rt := sac.NewRuntime(core,
		time.Duration(cfg.TimeoutSweepIntervalMS)*time.Millisecond,
		time.Duration(cfg.DiscoveryPublishIntervalSeconds)*time.Second,
	)

	cleanup := func() { store.Close() }
	return rt, cleanup, nil
}

// serveMetrics runs the Prometheus /metrics HTTP endpoint until the process
// exits; failures are logged rather than fatal since metrics are
// operational, not load-bearing for task processing.
func serveMetrics(addr string, core *sac.Core, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", core.Metrics.Handler())
	logger.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", "error", err)
	}
}
