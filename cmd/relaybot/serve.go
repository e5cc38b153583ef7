package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"relaybot/internal/agent"
	"relaybot/internal/audit"
	"relaybot/internal/bus"
	"relaybot/internal/channel"
	"relaybot/internal/config"
	"relaybot/internal/dedup"
	"relaybot/internal/domain"
	"relaybot/internal/metrics"
	"relaybot/internal/provider"
	"relaybot/internal/security"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"gateway"},
		Short:   "Start the webhook server and the relay loop",
		Long:    "Listens for Slack Events API deliveries and replies to mentions. Press Ctrl+C to stop.",
		RunE:    runServe,
	}
}

// startupProbeTimeout bounds each dependency check made before listening.
const startupProbeTimeout = 15 * time.Second

// app is the process-wide object graph built once by serve.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	bus     *bus.InMemoryBus
	loop    *agent.Loop
	webhook *channel.Webhook
	audit   *audit.Store // nil when disabled
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.RequireSecrets(cfg); err != nil {
		return err
	}

	log, closeLog, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()
	logger = log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	return a.run(ctx)
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.New()
	}

	var auditLog domain.AuditLogger
	if cfg.Audit.Enabled {
		store, err := audit.Open(cfg.Audit.DBPath, logger)
		if err != nil {
			return nil, fmt.Errorf("audit store: %w", err)
		}
		retention := time.Duration(cfg.Audit.RetentionDays) * 24 * time.Hour
		if _, err := store.Prune(ctx, retention); err != nil {
			logger.Warn("audit prune failed", "err", err)
		}
		a.audit = store
		auditLog = store
	}

	slack := channel.NewSlack(channel.SlackConfig{
		BotToken: cfg.Slack.BotToken,
		APIURL:   cfg.Slack.APIURL,
		Logger:   logger,
	})
	identifyCtx, cancel := context.WithTimeout(ctx, startupProbeTimeout)
	botUID, err := slack.Identify(identifyCtx)
	cancel()
	if err != nil {
		a.close()
		return nil, fmt.Errorf("slack identity: %w", err)
	}

	backend := provider.NewBackend(provider.BackendConfig{
		URL:             cfg.Backend.URL,
		APIKey:          cfg.Backend.APIKey,
		Timeout:         cfg.Backend.Timeout(),
		FallbackMessage: cfg.Backend.FallbackMessage,
		Limiter:         provider.NewLimiter(cfg.Backend.RateLimitPerMinute, cfg.Backend.RateBurst),
		Logger:          logger,
	})
	if err := probeBackend(ctx, backend, startupProbeTimeout); err != nil {
		logger.Warn("backend unreachable at startup", "url", cfg.Backend.URL, "err", err)
	}

	seen, err := dedup.New(cfg.Dedup.Capacity, cfg.Dedup.TTL())
	if err != nil {
		a.close()
		return nil, fmt.Errorf("dedup store: %w", err)
	}
	collector.TrackDedupSize(seen.Len)

	shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second
	a.bus = bus.New(cfg.Pipeline.QueueSize, cfg.Pipeline.PublishTimeout(), logger)
	a.loop = agent.NewLoop(agent.LoopConfig{
		Classifier:   security.NewClassifier(logger),
		Dispatcher:   backend,
		Poster:       slack,
		Bus:          a.bus,
		Audit:        auditLog,
		Metrics:      collector,
		Logger:       logger,
		Concurrency:  cfg.Pipeline.MaxConcurrent,
		DrainTimeout: shutdownTimeout,
	})

	events := channel.NewEventsHandler(channel.EventsHandlerConfig{
		Verifier:          security.NewVerifier(cfg.Slack.SigningSecret, cfg.Slack.ReplayWindow()),
		Dedup:             seen,
		Bus:               a.bus,
		Metrics:           collector,
		Logger:            logger,
		MaxBodyBytes:      cfg.Server.MaxBodyBytes,
		RespondToMessages: cfg.Slack.RespondToMessages,
		BotUserID:         botUID,
	})

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Endpoint
	}
	a.webhook = channel.NewWebhook(channel.WebhookConfig{
		Addr:              cfg.Server.Addr(),
		Events:            events,
		Metrics:           collector,
		MetricsPath:       metricsPath,
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadHeaderTimeoutSeconds) * time.Second,
		ShutdownTimeout:   shutdownTimeout,
		Logger:            logger,
	})
	return a, nil
}

type healthChecker interface {
	Healthy(ctx context.Context) error
}

func probeBackend(ctx context.Context, b healthChecker, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return b.Healthy(ctx)
}

// run serves until ctx is cancelled or the server fails. The bus is closed
// only after the server stops accepting, and the loop drains what is queued.
func (a *app) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.loop.Run(context.WithoutCancel(gctx))
	})
	g.Go(func() error {
		defer a.bus.Close()
		return a.webhook.Start(gctx)
	})

	a.logger.Info("relaybot started", "version", version, "addr", a.cfg.Server.Addr())
	err := g.Wait()
	a.logger.Info("shutdown complete")
	return err
}

func (a *app) close() {
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			a.logger.Warn("audit store close failed", "err", err)
		}
	}
}
