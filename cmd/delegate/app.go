package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ShayCichocki/delegate/internal/config"
	"github.com/ShayCichocki/delegate/internal/events"
	"github.com/ShayCichocki/delegate/internal/exec"
	"github.com/ShayCichocki/delegate/internal/logging"
	"github.com/ShayCichocki/delegate/internal/metrics"
	"github.com/ShayCichocki/delegate/internal/orchestrator"
	"github.com/ShayCichocki/delegate/internal/session"
	"github.com/ShayCichocki/delegate/internal/state"
	"github.com/ShayCichocki/delegate/internal/tools"
)

// loadConfig loads configuration and applies the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if flagBackend != "" {
		cfg.Backend = flagBackend
	}
	if flagDebug {
		cfg.Logging.Debug = true
	}
	return cfg, nil
}

// newSpawner creates the session backend named by cfg.Backend. Model token
// usage is reported to m.
func newSpawner(cfg *config.Config, m *metrics.Metrics) (session.Spawner, error) {
	switch cfg.Backend {
	case config.BackendEcho:
		return session.Echo{}, nil
	case config.BackendCommand:
		return session.NewCommandSpawner(exec.NewRunner(), cfg.Command.Path, cfg.Command.Args...), nil
	case config.BackendAnthropic:
		clientCfg := session.ClientConfig{
			Model:         anthropic.Model(cfg.Parent.Model),
			UseAWSBedrock: cfg.Anthropic.UseBedrock,
			AWSRegion:     cfg.Anthropic.AWSRegion,
			AWSProfile:    cfg.Anthropic.AWSProfile,
			OnUsage:       m.TokensUsed,
		}
		if err := config.CheckCredentials(cfg); err != nil {
			return nil, err
		}
		if config.NeedsAPIKey(cfg) {
			clientCfg.APIKey, _ = config.GetAPIKey(cfg)
		}
		client, err := session.NewClient(clientCfg)
		if err != nil {
			return nil, fmt.Errorf("create API client: %w", err)
		}
		return session.NewAnthropicSpawner(client, cfg.Anthropic.MaxTokens), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func projectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return cwd, nil
}

// openStore opens and migrates the project database.
func openStore(cfg *config.Config, root string) (*state.DB, error) {
	db, err := state.Open(cfg.StatePath(root))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

func newLogger(cfg *config.Config, root string) *logging.DebugLogger {
	if !cfg.Logging.Debug {
		return logging.NopLogger()
	}
	if cfg.Logging.Dir != "" {
		l, err := logging.NewDebugLogger(filepath.Join(cfg.Logging.Dir, "orchestrator-debug.log"))
		if err != nil {
			log.Printf("[delegate] WARNING: debug log unavailable: %v", err)
			return logging.NopLogger()
		}
		return l
	}
	return logging.NewDebugLoggerForProject(root)
}

// eventLogSink records every orchestration event in the debug log.
func eventLogSink(l *logging.DebugLogger) events.Sink {
	return events.SinkFunc(func(ev events.Event) {
		if ev.Error != "" {
			l.Log("[event] %s %s: %s (%s)", ev.Type, ev.State, ev.Message, ev.Error)
			return
		}
		l.Log("[event] %s %s: %s", ev.Type, ev.State, ev.Message)
	})
}

// app bundles everything a command that drives workers needs.
type app struct {
	db     *state.DB
	orch   *orchestrator.Orchestrator
	logger *logging.DebugLogger

	stopMetrics context.CancelFunc
}

// openApp builds the orchestrator over the project database. With spawn
// false the offline backend is used, so no credentials are needed.
func openApp(cfg *config.Config, spawn bool) (*app, error) {
	root, err := projectRoot()
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	var spawner session.Spawner = session.Echo{}
	if spawn {
		if spawner, err = newSpawner(cfg, m); err != nil {
			return nil, err
		}
	}

	db, err := openStore(cfg, root)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg, root)

	metricsCtx, stopMetrics := context.WithCancel(context.Background())
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(metricsCtx, cfg.Metrics.Addr, registry); err != nil {
				log.Printf("[delegate] WARNING: metrics listener: %v", err)
			}
		}()
	}

	ocfg := orchestrator.ConfigFrom(cfg)
	if ocfg.Parent.WorkingDirectory == "" {
		ocfg.Parent.WorkingDirectory = root
	}
	orch, err := orchestrator.New(ocfg,
		orchestrator.WithSpawner(spawner),
		orchestrator.WithStore(db),
		orchestrator.WithMetrics(m),
		orchestrator.WithLogger(logger),
		orchestrator.WithSink(eventLogSink(logger)),
		orchestrator.WithProjectRoot(root),
	)
	if err != nil {
		stopMetrics()
		logger.Close()
		db.Close()
		return nil, err
	}
	// Children started by the API backend can delegate further, within
	// orchestrator.max_depth.
	if s, ok := spawner.(*session.AnthropicSpawner); ok {
		s.SetTools(tools.NewExecutor(orch, 0))
	}

	return &app{
		db:          db,
		orch:        orch,
		logger:      logger,
		stopMetrics: stopMetrics,
	}, nil
}

func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := a.orch.Close(ctx)
	a.stopMetrics()
	a.logger.Close()
	if dbErr := a.db.Close(); err == nil {
		err = dbErr
	}
	return err
}
