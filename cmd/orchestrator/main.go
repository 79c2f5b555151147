// Package main is the entry point for the Orchestrator service.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/orchcore/orchcore/internal/api"
	"github.com/orchcore/orchcore/internal/common/config"
	"github.com/orchcore/orchcore/internal/common/database"
	"github.com/orchcore/orchcore/internal/common/logger"
	"github.com/orchcore/orchcore/internal/common/tracing"
	"github.com/orchcore/orchcore/internal/domain"
	"github.com/orchcore/orchcore/internal/domain/postgres"
	"github.com/orchcore/orchcore/internal/events/bus"
	"github.com/orchcore/orchcore/internal/realtime"
	"github.com/orchcore/orchcore/internal/runexec"
	"github.com/orchcore/orchcore/internal/scheduler"
	"github.com/orchcore/orchcore/internal/taskrunner"
	"github.com/orchcore/orchcore/internal/tools"
	"github.com/orchcore/orchcore/internal/tools/builtin"
	"github.com/orchcore/orchcore/internal/tools/mcpclient"
	"github.com/orchcore/orchcore/internal/triggers"
	"github.com/orchcore/orchcore/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(2)
	}

	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(2)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("starting orchestrator service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(ctx, cfg.Database)
	if err != nil {
		log.Error("failed to connect to database", zap.Error(err))
		os.Exit(3)
	}
	defer db.Close()
	log.Info("connected to postgres")

	eventBus, err := newEventBus(cfg, log)
	if err != nil {
		log.Error("failed to initialize event bus", zap.Error(err))
		os.Exit(3)
	}
	defer eventBus.Close()

	repos := postgres.New(db, eventBus, log)

	registry := tools.NewRegistry()
	builtin.Register(registry)
	mcpConns := connectMCPServers(ctx, cfg.Tools.MCPServerURLs, registry, log)
	defer func() {
		for _, c := range mcpConns {
			_ = c.Close(registry)
		}
	}()

	modelClient := &runexec.NopModelClient{Response: "no model provider configured"}
	executor := runexec.New(repos.Messages, registry, eventBus, log)
	runner := taskrunner.New(repos.Agents, repos.Threads, repos.Runs, repos.Messages, executor, modelClient, eventBus, log)

	sched, err := scheduler.New(cfg.Scheduler.Timezone, repos.Agents, runner, dispatchScheduled(runner), log)
	if err != nil {
		log.Error("failed to initialize scheduler", zap.Error(err))
		os.Exit(2)
	}
	runner.SetNextRunComputer(sched)
	if err := sched.LoadFromStorage(ctx); err != nil {
		log.Error("failed to load scheduled agents", zap.Error(err))
		os.Exit(3)
	}
	sched.Start()

	webhookHandler := triggers.NewWebhookHandler(repos.Triggers, eventBus, log)
	emailHandler, err := newEmailHandler(cfg.Email, repos.Triggers, eventBus, log)
	if err != nil {
		log.Error("failed to initialize email trigger ingest", zap.Error(err))
		os.Exit(2)
	}
	go emailHandler.RunWatchRenewal(ctx)

	workflowEngine := workflow.Provide(workflow.Deps{
		Store:    repos.Workflows,
		Tools:    registry,
		Agents:   runner,
		EventBus: eventBus,
		Log:      log,
	})

	server := api.New(api.Config{
		Repos:         repos,
		Runner:        runner,
		Workflow:      workflowEngine,
		Webhook:       webhookHandler,
		Email:         emailHandler,
		JWTSecret:     cfg.Auth.JWTSecret,
		DeviceSecret:  cfg.Auth.DeviceSecret,
		TokenDuration: cfg.Auth.TokenDurationTime(),
		Log:           log,
	})

	hub, err := realtime.New(eventBus, server, log)
	if err != nil {
		log.Error("failed to initialize realtime hub", zap.Error(err))
		os.Exit(3)
	}
	defer hub.Close()
	server.SetHub(hub)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serveErr:
		log.Error("http server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", zap.Error(err))
	}
	sched.Stop()
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		log.Error("tracing shutdown error", zap.Error(err))
	}

	log.Info("orchestrator service stopped")
}

// newEventBus selects NATS when configured, falling back to the in-process
// memory bus otherwise (spec §9's distributed-redesign note: both
// implementations satisfy the same bus.EventBus interface).
func newEventBus(cfg *config.Config, log *logger.Logger) (bus.EventBus, error) {
	if cfg.NATS.URL == "" {
		return bus.NewMemoryBus(log), nil
	}
	return bus.NewNATSBus(cfg.NATS, log)
}

// dispatchScheduled adapts the task runner's Execute method to the
// scheduler's plain run-func shape (spec §4.7: scheduled fires use
// RunTrigger "schedule").
func dispatchScheduled(runner *taskrunner.Runner) func(ctx context.Context, agentID string) {
	return func(ctx context.Context, agentID string) {
		_, _ = runner.Execute(ctx, taskrunner.TaskParams{AgentID: agentID, Trigger: domain.TriggerSchedule})
	}
}

// connectMCPServers discovers tools from every SSE-reachable MCP server
// listed in urls (comma-separated), logging and skipping any that fail to
// connect rather than aborting startup (spec §4.4: tool sources are
// additive, not load-bearing for boot).
func connectMCPServers(ctx context.Context, urls string, reg *tools.Registry, log *logger.Logger) []*mcpclient.Connection {
	var conns []*mcpclient.Connection
	for _, raw := range strings.Split(urls, ",") {
		url := strings.TrimSpace(raw)
		if url == "" {
			continue
		}
		conn, err := mcpclient.ConnectSSE(ctx, url, reg, log)
		if err != nil {
			log.Error("mcp server connect failed", zap.String("url", url), zap.Error(err))
			continue
		}
		conns = append(conns, conn)
	}
	return conns
}

// newEmailHandler builds the email trigger ingest, deriving its JWT
// verification keyFunc from a configured RSA public key (Google signs Gmail
// Pub/Sub push-endpoint tokens with RS256). With no key configured, the
// keyFunc always errors, so every push request is rejected with 401 until
// one is supplied (spec §4.8 says nothing about key provisioning, which is
// deployment-specific and out of this module's scope).
func newEmailHandler(cfg config.EmailConfig, store triggers.EmailTriggerStore, eventBus bus.EventBus, log *logger.Logger) (*triggers.EmailHandler, error) {
	keyFunc, err := googleKeyFunc(cfg.PublicKeyPEM)
	if err != nil {
		return nil, err
	}
	renew := func(ctx context.Context, trig *domain.Trigger) (time.Time, error) {
		return time.Time{}, fmt.Errorf("gmail watch renewal requires a configured Gmail API client: %w", domain.ErrUnavailable)
	}
	return triggers.NewEmailHandler(store, eventBus, cfg.Audience, cfg.Issuer, keyFunc, []string{"RS256"}, renew, log), nil
}

func googleKeyFunc(pemStr string) (jwt.Keyfunc, error) {
	if pemStr == "" {
		return func(*jwt.Token) (any, error) {
			return nil, fmt.Errorf("no email.publicKeyPem configured")
		}, nil
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemStr))
	if err != nil {
		return nil, fmt.Errorf("parse email.publicKeyPem: %w", err)
	}
	return func(*jwt.Token) (any, error) {
		return key, nil
	}, nil
}
