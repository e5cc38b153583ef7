package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"relaybot/internal/metrics"
)

// WebhookConfig configures the HTTP server that receives Slack events.
type WebhookConfig struct {
	Addr              string
	Events            http.Handler
	Metrics           *metrics.Collector // optional
	MetricsPath       string             // empty disables the metrics endpoint
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	Logger            *slog.Logger
}

// Webhook serves the Events API endpoint plus health and metrics.
type Webhook struct {
	addr            string
	shutdownTimeout time.Duration
	logger          *slog.Logger
	server          *http.Server
}

// NewWebhook builds the server and its routes.
func NewWebhook(cfg WebhookConfig) *Webhook {
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	w := &Webhook{
		addr:            cfg.Addr,
		shutdownTimeout: cfg.ShutdownTimeout,
		logger:          cfg.Logger,
	}
	w.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           Routes(cfg),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return w
}

// Routes returns the server mux. Exposed for tests.
func Routes(cfg WebhookConfig) http.Handler {
	m := cfg.Metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/", m.Instrument("events", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		cfg.Events.ServeHTTP(w, r)
	}))
	mux.HandleFunc("/health", m.Instrument("health", healthHandler))
	mux.HandleFunc("/_health", m.Instrument("health", healthHandler))
	if m != nil && cfg.MetricsPath != "" {
		mux.Handle(cfg.MetricsPath, m.Handler())
	}
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "OK"})
}

// Start listens until ctx is cancelled, then shuts down gracefully.
func (w *Webhook) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", w.addr)
	if err != nil {
		return fmt.Errorf("webhook listen: %w", err)
	}
	return w.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (w *Webhook) Serve(ctx context.Context, ln net.Listener) error {
	w.logger.Info("webhook server starting", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := w.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		w.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), w.shutdownTimeout)
		defer cancel()
		return w.server.Shutdown(shutdownCtx)
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("webhook server: %w", err)
	}
}
