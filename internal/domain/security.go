package domain

import "context"

// Verdict is the outcome of content classification.
type Verdict string

const (
	VerdictClean   Verdict = "clean"
	VerdictBlocked Verdict = "blocked"
)

// BlockReason names the disallowed content class that matched.
type BlockReason string

const (
	ReasonNone           BlockReason = ""
	ReasonAddress        BlockReason = "crypto_address"
	ReasonRecoveryPhrase BlockReason = "recovery_phrase"
)

// Classification is the tagged result of running the content detectors.
type Classification struct {
	Verdict  Verdict
	Reason   BlockReason
	Detector string // e.g. "ethereum", "bip39"
}

// Blocked reports whether the message must not reach the backend.
func (c Classification) Blocked() bool { return c.Verdict == VerdictBlocked }

// Outcome values recorded for every processed event.
const (
	OutcomeAnswered = "answered"
	OutcomeBlocked  = "blocked"
	OutcomeFallback = "fallback"
	OutcomeIgnored  = "ignored"

	// Outcomes decided at the HTTP edge, before an event reaches the loop.
	OutcomeMalformed = "malformed"
	OutcomeDuplicate = "duplicate"
	OutcomeDropped   = "dropped"
)

// AuditEntry describes what happened to one event. It carries no message text.
type AuditEntry struct {
	EventID   string
	ChannelID string
	AuthorID  string
	Outcome   string
	Reason    string
	LatencyMs int64
}

// AuditLogger persists audit entries.
type AuditLogger interface {
	LogAudit(ctx context.Context, entry AuditEntry) error
}
