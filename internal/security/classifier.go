package security

import (
	"log/slog"
	"regexp"

	"relaybot/internal/domain"
)

const (
	AddressRefusal        = "I'm sorry, but I can't assist with questions that include cryptocurrency addresses. Please remove the address and ask again."
	RecoveryPhraseRefusal = "It looks like you've included a recovery phrase in your message. Please never share your recovery phrase. It is the master key to your wallet and should be kept private."
)

// Refusal returns the reply text for a blocked classification.
func Refusal(reason domain.BlockReason) string {
	switch reason {
	case domain.ReasonAddress:
		return AddressRefusal
	case domain.ReasonRecoveryPhrase:
		return RecoveryPhraseRefusal
	}
	return ""
}

type addressPattern struct {
	chain string
	re    *regexp.Regexp
}

// addressPatterns are checked in order; the first hit decides.
var addressPatterns = []addressPattern{
	{"ethereum", regexp.MustCompile(`(?i)\b0x[a-fA-F0-9]{40}\b`)},
	{"bitcoin", regexp.MustCompile(`(?i)\b(1|3)[1-9A-HJ-NP-Za-km-z]{25,34}\b|bc1[a-zA-Z0-9]{25,90}\b`)},
	{"litecoin", regexp.MustCompile(`(?i)\b(L|M)[a-km-zA-HJ-NP-Z1-9]{26,34}\b`)},
	{"dogecoin", regexp.MustCompile(`(?i)\bD{1}[5-9A-HJ-NP-U]{1}[1-9A-HJ-NP-Za-km-z]{32}\b`)},
	{"xrp", regexp.MustCompile(`(?i)\br[a-zA-Z0-9]{24,34}\b`)},
}

// Classifier flags message text that must never be forwarded to the backend.
type Classifier struct {
	vocab  vocabulary
	logger *slog.Logger
}

func NewClassifier(logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{vocab: bip39English, logger: logger}
}

// Classify runs the address detectors, then the recovery phrase detector.
func (c *Classifier) Classify(text string) domain.Classification {
	for _, p := range addressPatterns {
		if p.re.MatchString(text) {
			c.logger.Debug("message blocked", "reason", domain.ReasonAddress, "detector", p.chain)
			return domain.Classification{
				Verdict:  domain.VerdictBlocked,
				Reason:   domain.ReasonAddress,
				Detector: p.chain,
			}
		}
	}

	if looksLikeMnemonic(text, c.vocab) {
		c.logger.Debug("message blocked", "reason", domain.ReasonRecoveryPhrase, "detector", "bip39")
		return domain.Classification{
			Verdict:  domain.VerdictBlocked,
			Reason:   domain.ReasonRecoveryPhrase,
			Detector: "bip39",
		}
	}

	return domain.Classification{Verdict: domain.VerdictClean}
}
