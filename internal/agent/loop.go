package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"relaybot/internal/channel"
	"relaybot/internal/domain"
	"relaybot/internal/metrics"
	"relaybot/internal/security"
)

const (
	defaultConcurrency  = 64
	defaultDrainTimeout = 10 * time.Second
	postTimeout         = 30 * time.Second
)

// Classifier decides whether message text may reach the backend.
type Classifier interface {
	Classify(text string) domain.Classification
}

// Loop turns accepted events into replies: classify, dispatch or refuse,
// format, post.
type Loop struct {
	classifier   Classifier
	dispatcher   domain.Dispatcher
	poster       domain.Poster
	bus          domain.EventBus
	audit        domain.AuditLogger
	metrics      *metrics.Collector
	logger       *slog.Logger
	concurrency  int
	drainTimeout time.Duration
	wg           sync.WaitGroup
}

// LoopConfig holds all dependencies and tuning parameters for the loop.
type LoopConfig struct {
	Classifier   Classifier
	Dispatcher   domain.Dispatcher
	Poster       domain.Poster
	Bus          domain.EventBus
	Audit        domain.AuditLogger // optional
	Metrics      *metrics.Collector // optional
	Logger       *slog.Logger
	Concurrency  int           // max events processed at once (default 64)
	DrainTimeout time.Duration // how long Run waits for in-flight events on exit
}

func NewLoop(cfg LoopConfig) *Loop {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Loop{
		classifier:   cfg.Classifier,
		dispatcher:   cfg.Dispatcher,
		poster:       cfg.Poster,
		bus:          cfg.Bus,
		audit:        cfg.Audit,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		concurrency:  cfg.Concurrency,
		drainTimeout: cfg.DrainTimeout,
	}
}

// Run consumes the bus until it is closed or ctx is done, then waits up to
// the drain timeout for in-flight events. Events run on a context that is
// not cancelled with ctx, so a shutdown never cuts a reply short.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("agent loop started", "concurrency", l.concurrency)

	sem := make(chan struct{}, l.concurrency)
	events := l.bus.Subscribe()
	work := context.WithoutCancel(ctx)

loop:
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("agent loop stopping")
			break loop
		case ev, ok := <-events:
			if !ok {
				l.logger.Info("event bus closed, agent loop stopping")
				break loop
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				l.logger.Warn("event abandoned at shutdown", "event_id", ev.ID)
				break loop
			}
			l.wg.Add(1)
			go func(ev domain.ParsedEvent) {
				defer l.wg.Done()
				defer func() { <-sem }()
				l.Process(work, ev)
			}(ev)
		}
	}

	return l.drain()
}

func (l *Loop) drain() error {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(l.drainTimeout):
		l.logger.Warn("in-flight events still running after drain timeout", "timeout", l.drainTimeout)
		return nil
	}
}

// Process handles one event and returns its outcome. It posts exactly one
// reply: the refusal, the backend answer, or the fallback.
func (l *Loop) Process(ctx context.Context, ev domain.ParsedEvent) string {
	defer l.metrics.Begin()()
	start := time.Now()
	logger := l.logger.With("event_id", ev.ID, "request_id", ev.RequestID)

	var (
		body    string
		outcome string
		reason  string
	)

	verdict := l.classifier.Classify(ev.Text)
	if verdict.Blocked() {
		body = security.Refusal(verdict.Reason)
		outcome = domain.OutcomeBlocked
		reason = string(verdict.Reason)
		l.metrics.Blocked(reason)
		logger.Info("message refused", "reason", verdict.Reason, "detector", verdict.Detector)
	} else {
		callStart := time.Now()
		answer := l.dispatcher.Dispatch(ctx, domain.BackendQuery{Text: ev.Text, AuthorID: ev.AuthorID})
		l.metrics.Backend(time.Since(callStart), answer.Failed)
		body = answer.Output
		outcome = domain.OutcomeAnswered
		if answer.Failed {
			outcome = domain.OutcomeFallback
			reason = "backend_failure"
		}
	}

	msg := channel.Route(ev, channel.ComposeReply(ev.AuthorID, body))
	postCtx, cancel := context.WithTimeout(ctx, postTimeout)
	err := l.poster.Post(postCtx, msg)
	cancel()
	if err != nil {
		l.metrics.PostFailed()
		logger.Error("reply delivery failed", "channel", msg.ChannelID, "error", err)
		if reason == "" {
			reason = "post_failed"
		}
	}

	latency := time.Since(start)
	l.metrics.Outcome(outcome)
	logger.Info("event processed",
		"outcome", outcome,
		"channel", ev.ChannelID,
		"duration_ms", latency.Milliseconds(),
	)
	l.record(ctx, domain.AuditEntry{
		EventID:   ev.ID,
		ChannelID: ev.ChannelID,
		AuthorID:  ev.AuthorID,
		Outcome:   outcome,
		Reason:    reason,
		LatencyMs: latency.Milliseconds(),
	})
	return outcome
}

func (l *Loop) record(ctx context.Context, entry domain.AuditEntry) {
	if l.audit == nil {
		return
	}
	if err := l.audit.LogAudit(ctx, entry); err != nil {
		l.logger.Warn("audit write failed", "event_id", entry.EventID, "error", err)
	}
}
