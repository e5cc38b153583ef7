package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderTimestamp = "X-Slack-Request-Timestamp"
	HeaderSignature = "X-Slack-Signature"

	signatureVersion = "v0"
)

// ErrAuthentication is returned for missing, stale or forged request signatures.
var ErrAuthentication = errors.New("request authentication failed")

// Verifier checks Slack request signatures.
type Verifier struct {
	secret []byte
	window time.Duration
	now    func() time.Time
}

// NewVerifier creates a verifier for the given signing secret. Requests whose
// timestamp differs from the local clock by more than window are rejected.
func NewVerifier(signingSecret string, window time.Duration) *Verifier {
	return &Verifier{
		secret: []byte(signingSecret),
		window: window,
		now:    time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Verify authenticates body against the signature headers.
func (v *Verifier) Verify(header http.Header, body []byte) error {
	ts := header.Get(HeaderTimestamp)
	sig := header.Get(HeaderSignature)
	if ts == "" || sig == "" {
		return fmt.Errorf("%w: missing signature headers", ErrAuthentication)
	}

	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp %q", ErrAuthentication, ts)
	}
	age := v.now().Sub(time.Unix(sec, 0))
	if age < 0 {
		age = -age
	}
	if age > v.window {
		return fmt.Errorf("%w: timestamp outside %s window", ErrAuthentication, v.window)
	}

	hexSig, ok := strings.CutPrefix(sig, signatureVersion+"=")
	if !ok {
		return fmt.Errorf("%w: unsupported signature version", ErrAuthentication)
	}
	got, err := hex.DecodeString(hexSig)
	if err != nil {
		return fmt.Errorf("%w: signature is not hex", ErrAuthentication)
	}

	if !hmac.Equal(got, v.mac(ts, body)) {
		return fmt.Errorf("%w: signature mismatch", ErrAuthentication)
	}
	return nil
}

// Sign returns the header value Slack would send for body at ts.
func (v *Verifier) Sign(ts string, body []byte) string {
	return signatureVersion + "=" + hex.EncodeToString(v.mac(ts, body))
}

func (v *Verifier) mac(ts string, body []byte) []byte {
	h := hmac.New(sha256.New, v.secret)
	h.Write([]byte(signatureVersion + ":" + ts + ":"))
	h.Write(body)
	return h.Sum(nil)
}
