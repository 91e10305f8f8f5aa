package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"veilbot/internal/agent"
	"veilbot/internal/classify"
	"veilbot/internal/collab"
	"veilbot/internal/config"
	"veilbot/internal/dedup"
	"veilbot/internal/domain"
	"veilbot/internal/ingest"
	"veilbot/internal/provider"
	"veilbot/internal/store"
	"veilbot/internal/transport"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:     "veilbot",
		Short:   "veilbot: private payments agent",
		Long:    "veilbot listens on an encrypted messaging relay and walks users through stealth-address onboarding and payment links.",
		Version: version,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.veilbot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(runCmd())
	root.AddCommand(statusCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists: %s", cfgPath)
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to the relay and serve messages",
		RunE:  runAgent,
	}
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return err
	}
	logger = buildLogger(cfg.General)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	profiles, err := store.NewSQLiteStore(cfg.Store.DBPath, logger)
	if err != nil {
		return err
	}
	defer profiles.Close()

	relay, err := transport.New(transport.Config{
		BaseURL: cfg.Relay.APIBase,
		InboxID: cfg.Relay.IdentityID,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	intents := classify.NewIntentClassifier()
	if cfg.Agent.RulesDir != "" {
		intents, err = classify.LoadRules(cfg.Agent.RulesDir, logger)
		if err != nil {
			return fmt.Errorf("load trigger rules: %w", err)
		}
	}

	var ai domain.Completer
	if cfg.AI.Enabled {
		ai = provider.NewOpenAI(provider.OpenAIConfig{
			APIKey:  cfg.AI.APIKey,
			APIBase: cfg.AI.APIBase,
			Model:   cfg.AI.Model,
			Logger:  logger,
		})
	}

	fluid := collab.NewFluidClient(collab.FluidConfig{APIBase: cfg.Collab.FkeyAPIBase, Logger: logger})
	pay := collab.NewPayClient(collab.PayConfig{APIBase: cfg.Collab.PayAPIBase, Logger: logger})

	contexts := agent.NewContextStore(
		cfg.Agent.HistoryPerPair,
		time.Duration(cfg.Agent.IdleMinutes)*time.Minute,
		profiles,
		logger,
	)
	contexts.Warm(ctx)

	pipeline := agent.NewPipeline(agent.PipelineConfig{
		Transport: relay,
		Profiles:  profiles,
		Contexts:  contexts,
		Gate:      classify.NewContextClassifier(cfg.Agent.Handles),
		Intents:   intents,
		Responder: agent.NewResponder(agent.ResponderConfig{
			Lookup:   fluid,
			Balances: fluid,
			Payments: pay,
			Profiles: profiles,
			AI:       ai,
			Logger:   logger,
		}),
		Dispatcher: agent.NewDispatcher(relay, cfg.Agent.RepliesPerMinute, logger),
		Logger:     logger,
	})

	ingestor := ingest.New(ingest.Config{
		Transport:      relay,
		Window:         dedup.New(cfg.Agent.DedupWindow),
		Logger:         logger,
		ResyncInterval: time.Duration(cfg.Ingest.ResyncSeconds) * time.Second,
		MaxRetries:     cfg.Ingest.MaxRetries,
	})

	logger.Info("veilbot starting", "version", version, "relay", cfg.Relay.APIBase, "identity", cfg.Relay.IdentityID)
	return ingestor.Run(ctx, pipeline.Handle)
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check config, relay, and collaborator health",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false, "err", err)
				return err
			}
			logger.Info("config", "path", cfgPath, "loaded", true)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if profiles, err := store.NewSQLiteStore(cfg.Store.DBPath, logger); err != nil {
				logger.Info("store", "path", cfg.Store.DBPath, "healthy", false, "err", err)
			} else {
				logger.Info("store", "path", cfg.Store.DBPath, "healthy", true)
				profiles.Close()
			}

			relay, err := transport.New(transport.Config{
				BaseURL: cfg.Relay.APIBase,
				InboxID: cfg.Relay.IdentityID,
				Logger:  logger,
			})
			if err != nil {
				return err
			}
			if err := relay.SyncAll(ctx); err != nil {
				logger.Info("relay", "base", cfg.Relay.APIBase, "healthy", false, "err", err)
			} else {
				logger.Info("relay", "base", cfg.Relay.APIBase, "healthy", true)
			}

			if cfg.AI.Enabled {
				ai := provider.NewOpenAI(provider.OpenAIConfig{
					APIKey:  cfg.AI.APIKey,
					APIBase: cfg.AI.APIBase,
					Model:   cfg.AI.Model,
					Logger:  logger,
				})
				if err := ai.Healthy(ctx); err != nil {
					logger.Info("ai", "model", cfg.AI.Model, "healthy", false, "err", err)
				} else {
					logger.Info("ai", "model", cfg.AI.Model, "healthy", true)
				}
			}
			return nil
		},
	}
}

func buildLogger(gen config.General) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(gen.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	out := os.Stderr
	if gen.LogFile != "" {
		f, err := os.OpenFile(gen.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err == nil {
			out = f
		}
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}
