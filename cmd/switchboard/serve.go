package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/atlasdesk/switchboard/internal/artifacts"
	"github.com/atlasdesk/switchboard/internal/auth"
	"github.com/atlasdesk/switchboard/internal/capability"
	"github.com/atlasdesk/switchboard/internal/config"
	"github.com/atlasdesk/switchboard/internal/gateway"
	"github.com/atlasdesk/switchboard/internal/kb"
	"github.com/atlasdesk/switchboard/internal/llm"
	"github.com/atlasdesk/switchboard/internal/notify"
	"github.com/atlasdesk/switchboard/internal/observability"
	"github.com/atlasdesk/switchboard/internal/prompts"
	"github.com/atlasdesk/switchboard/internal/providers/infosearch"
	"github.com/atlasdesk/switchboard/internal/providers/tickets"
	"github.com/atlasdesk/switchboard/internal/retention"
	"github.com/atlasdesk/switchboard/internal/sessions"
	"github.com/atlasdesk/switchboard/internal/turn"
)

func buildServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "switchboard.yaml", "Path to configuration file")
	return cmd
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(cfg.Logging)
	logger.SetDefault()

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetricsOn(registry)

	traceCfg := cfg.Tracing
	traceCfg.ServiceVersion = version
	tracer, shutdownTracer := observability.NewTracer(traceCfg)

	store, err := openSessionStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ticketStore, err := openTicketStore(cfg)
	if err != nil {
		return err
	}
	defer ticketStore.Close()

	artifactRepo, err := openArtifactRepo(cfg)
	if err != nil {
		return err
	}
	defer artifactRepo.Close()

	promptStore := prompts.NewStore(cfg.Prompts.Dir, logger.Slog())
	defer promptStore.Close()

	client, err := buildLLMClient(cfg)
	if err != nil {
		return err
	}

	reg := capability.NewRegistry(logger.Slog())
	ticketService := tickets.NewService(ticketStore, artifactRepo, logger)
	builders := []func() (capability.Provider, error){
		func() (capability.Provider, error) {
			return tickets.NewProvider(ticketStore, ticketService, logger), nil
		},
	}
	if cfg.LLM.KB.Enabled {
		builders = append(builders, func() (capability.Provider, error) {
			searcher := kb.NewOpenAISearcher(kb.OpenAIOptions{
				APIKey:        cfg.LLM.OpenAIAPIKey,
				VectorStoreID: cfg.LLM.KB.VectorStoreID,
				Model:         cfg.LLM.KB.Model,
				Timeout:       cfg.LLM.RequestTimeout,
			}, logger)
			return infosearch.NewProvider(searcher, logger), nil
		})
	}
	reg.Bootstrap(builders...)

	picker := turn.NewPicker(reg, client, cfg.LLM.PickerModel, promptStore, logger, metrics, tracer)
	hub := gateway.NewHub(logger, metrics)

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Notify.Slack.Enabled {
		notifier = notify.NewSlackNotifier(cfg.Notify.Slack.BotToken, cfg.Notify.Slack.Channel)
	}

	controller, err := turn.NewController(turn.ControllerOptions{
		Registry:   reg,
		Picker:     picker,
		Store:      store,
		Client:     client,
		ActorModel: cfg.LLM.ActorModel,
		Prompts:    promptStore,
		Notifier:   notifier,
		Events:     hub,
		Logger:     logger,
		Metrics:    metrics,
		Tracer:     tracer,
	})
	if err != nil {
		return fmt.Errorf("build controller: %w", err)
	}

	if cfg.Retention.Enabled {
		sweeper := retention.NewSweeper(store, artifactRepo, cfg.Retention.MaxIdle,
			cfg.Retention.Schedule, logger, metrics)
		if err := sweeper.Start(); err != nil {
			return fmt.Errorf("start retention sweeper: %w", err)
		}
		defer sweeper.Stop()
	}

	server := gateway.NewServer(gateway.Options{
		Config:     cfg.Server,
		Controller: controller,
		Picker:     picker,
		Store:      store,
		Tickets:    ticketStore,
		Artifacts:  artifactRepo,
		JWT:        auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry),
		Hub:        hub,
		Logger:     logger,
		Registry:   registry,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info(context.Background(), "shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "gateway shutdown error", "error", err)
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "tracer shutdown error", "error", err)
	}
	return nil
}

func openSessionStore(cfg *config.Config) (sessions.Store, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		return sessions.NewPostgresStore(cfg.Storage.DSN)
	case "sqlite":
		return sessions.NewSQLiteStore(cfg.Storage.Path)
	default:
		return sessions.NewMemoryStore(), nil
	}
}

func openTicketStore(cfg *config.Config) (tickets.Store, error) {
	if cfg.Storage.Driver == "postgres" {
		return tickets.NewPostgresStore(cfg.Storage.DSN)
	}
	if cfg.Tickets.SeedFile != "" {
		return tickets.NewMemoryStoreFromFile(cfg.Tickets.SeedFile)
	}
	return tickets.NewMemoryStore(), nil
}

func openArtifactRepo(cfg *config.Config) (*artifacts.Repository, error) {
	var (
		blob artifacts.BlobStore
		err  error
	)
	if cfg.Artifacts.Backend == "s3" {
		blob, err = artifacts.NewS3Store(context.Background(), cfg.Artifacts.S3)
	} else {
		blob, err = artifacts.NewLocalStore(cfg.Artifacts.Dir)
	}
	if err != nil {
		return nil, fmt.Errorf("open artifact store: %w", err)
	}
	return artifacts.NewRepository(blob, cfg.Artifacts.MaxUploadMB<<20), nil
}

func buildLLMClient(cfg *config.Config) (llm.Client, error) {
	if cfg.LLM.Provider == "anthropic" {
		return llm.NewAnthropicClient(llm.AnthropicOptions{
			APIKey:  cfg.LLM.AnthropicAPIKey,
			Timeout: cfg.LLM.RequestTimeout,
		})
	}
	return llm.NewOpenAIClient(llm.OpenAIOptions{
		APIKey:  cfg.LLM.OpenAIAPIKey,
		BaseURL: cfg.LLM.OpenAIBaseURL,
		Timeout: cfg.LLM.RequestTimeout,
	})
}
