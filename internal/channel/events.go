package channel

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"relaybot/internal/dedup"
	"relaybot/internal/domain"
	"relaybot/internal/metrics"
)

// RequestVerifier authenticates a raw request body against its headers.
type RequestVerifier interface {
	Verify(header http.Header, body []byte) error
}

// Deduplicator reports whether an event id has been seen before.
type Deduplicator interface {
	Observe(id string) dedup.Result
}

// EventsHandler is the Events API endpoint. It authenticates, decodes and
// deduplicates deliveries, then hands new events to the bus and acknowledges
// at once. Replies are produced asynchronously by the agent loop.
type EventsHandler struct {
	verifier          RequestVerifier
	dedup             Deduplicator
	bus               domain.EventBus
	metrics           *metrics.Collector
	logger            *slog.Logger
	maxBody           int64
	respondToMessages bool
	botUID            atomic.Value // string
}

type EventsHandlerConfig struct {
	Verifier          RequestVerifier
	Dedup             Deduplicator
	Bus               domain.EventBus
	Metrics           *metrics.Collector // optional
	Logger            *slog.Logger
	MaxBodyBytes      int64
	RespondToMessages bool
	BotUserID         string
}

func NewEventsHandler(cfg EventsHandlerConfig) *EventsHandler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	h := &EventsHandler{
		verifier:          cfg.Verifier,
		dedup:             cfg.Dedup,
		bus:               cfg.Bus,
		metrics:           cfg.Metrics,
		logger:            cfg.Logger,
		maxBody:           cfg.MaxBodyBytes,
		respondToMessages: cfg.RespondToMessages,
	}
	h.SetBotUserID(cfg.BotUserID)
	return h
}

// SetBotUserID sets the user whose own events are ignored.
func (h *EventsHandler) SetBotUserID(id string) { h.botUID.Store(id) }

func (h *EventsHandler) botUserID() string {
	id, _ := h.botUID.Load().(string)
	return id
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	requestID := uuid.NewString()
	logger := h.logger.With("request_id", requestID)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.Warn("request body too large", "limit", h.maxBody)
			http.Error(w, "Request Entity Too Large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if err := h.verifier.Verify(r.Header, body); err != nil {
		logger.Warn("rejected unauthenticated request", "error", err, "remote", r.RemoteAddr)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	ev, err := ParseEnvelope(body)
	switch {
	case errors.Is(err, ErrUnsupportedEvent):
		logger.Debug("ignoring event", "error", err)
		h.ack(w)
		return
	case err != nil:
		logger.Warn("dropping malformed event", "error", err, "body_len", len(body))
		h.metrics.Outcome(domain.OutcomeMalformed)
		h.ack(w)
		return
	}

	if ev.Kind == domain.KindChallenge {
		logger.Info("answering url_verification challenge")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"challenge": ev.Challenge})
		return
	}

	logger = logger.With("event_id", ev.ID, "kind", ev.Kind)
	if h.dedup.Observe(ev.ID) == dedup.Duplicate {
		logger.Info("duplicate event delivery")
		h.metrics.Outcome(domain.OutcomeDuplicate)
		h.ack(w)
		return
	}

	if reason := h.ignoreReason(ev); reason != "" {
		logger.Debug("event ignored", "reason", reason)
		h.metrics.Outcome(domain.OutcomeIgnored)
		h.ack(w)
		return
	}

	ev.RequestID = requestID
	logger.Info("event accepted",
		"user", ev.AuthorID,
		"channel", ev.ChannelID,
		"content_len", len(ev.Text),
	)
	if !h.bus.Publish(ev) {
		h.metrics.Outcome(domain.OutcomeDropped)
	}
	h.ack(w)
}

// ignoreReason returns why ev gets no reply, or "" when it should be processed.
func (h *EventsHandler) ignoreReason(ev domain.ParsedEvent) string {
	bot := h.botUserID()
	if bot != "" && ev.AuthorID == bot {
		return "own message"
	}
	if ev.Kind == domain.KindMessage {
		switch {
		case !h.respondToMessages:
			return "message events disabled"
		case ev.SubType != "":
			return "message subtype " + ev.SubType
		}
	}
	// Bots and authorless events never get a reply, whatever their kind.
	switch {
	case ev.BotID != "":
		return "bot message"
	case ev.AuthorID == "":
		return "no author"
	}
	if ev.Kind == domain.KindMessage && bot != "" && strings.Contains(ev.Text, "<@"+bot+">") {
		return "mention handled by app_mention"
	}
	return ""
}

func (h *EventsHandler) ack(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
