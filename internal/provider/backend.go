package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"relaybot/internal/domain"
)

var (
	ErrRateLimited   = errors.New("backend rate limit exceeded")
	ErrBadStatus     = errors.New("backend returned non-success status")
	ErrMissingOutput = errors.New("backend response has no string output")
)

// Backend forwards clean queries to the answer service. Every failure is
// folded into the fallback answer; there is no retry.
type Backend struct {
	url      string
	apiKey   string
	timeout  time.Duration
	fallback string
	limiter  *Limiter
	client   *http.Client
	logger   *slog.Logger
}

type BackendConfig struct {
	URL             string
	APIKey          string
	Timeout         time.Duration
	FallbackMessage string
	Limiter         *Limiter     // optional
	Client          *http.Client // optional, defaults to SharedHTTPClient
	Logger          *slog.Logger
}

func NewBackend(cfg BackendConfig) *Backend {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 200 * time.Second
	}
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(cfg.Timeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Backend{
		url:      cfg.URL,
		apiKey:   cfg.APIKey,
		timeout:  cfg.Timeout,
		fallback: cfg.FallbackMessage,
		limiter:  cfg.Limiter,
		client:   cfg.Client,
		logger:   cfg.Logger,
	}
}

// Fallback is the text users see when dispatch fails.
func (b *Backend) Fallback() string { return b.fallback }

type backendResponse struct {
	Output *string `json:"output"`
}

// Dispatch makes a single call bounded by the configured timeout.
func (b *Backend) Dispatch(ctx context.Context, q domain.BackendQuery) domain.BackendAnswer {
	output, err := b.call(ctx, q)
	if err != nil {
		b.logger.Warn("backend dispatch failed", "user", q.AuthorID, "error", err)
		return domain.BackendAnswer{Output: b.fallback, Failed: true, Err: err}
	}
	return domain.BackendAnswer{Output: output}
}

func (b *Backend) call(ctx context.Context, q domain.BackendQuery) (string, error) {
	if b.limiter != nil && !b.limiter.Allow() {
		return "", ErrRateLimited
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	jsonBody, err := json.Marshal(q)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	start := time.Now()
	resp, err := b.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("backend request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: %d: %s", ErrBadStatus, resp.StatusCode, string(snippet))
	}

	var parsed backendResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if parsed.Output == nil {
		return "", ErrMissingOutput
	}

	b.logger.Debug("backend answered",
		"user", q.AuthorID,
		"output_len", len(*parsed.Output),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return *parsed.Output, nil
}

// Healthy checks that the backend host answers HTTP at all. Any status
// counts, since the endpoint only speaks POST.
func (b *Backend) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, b.url, nil)
	if err != nil {
		return err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend not reachable: %w", err)
	}
	resp.Body.Close()
	return nil
}
