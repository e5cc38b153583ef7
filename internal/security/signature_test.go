package security

import (
	"errors"
	"net/http"
	"strconv"
	"testing"
	"time"
)

var fixedNow = time.Unix(1700000000, 0)

func testVerifier() *Verifier {
	return NewVerifier("8f742231b10e8888abcd99yyyzzz85a5", 5*time.Minute).
		WithClock(func() time.Time { return fixedNow })
}

func signedHeader(v *Verifier, ts time.Time, body []byte) http.Header {
	stamp := strconv.FormatInt(ts.Unix(), 10)
	h := http.Header{}
	h.Set(HeaderTimestamp, stamp)
	h.Set(HeaderSignature, v.Sign(stamp, body))
	return h
}

func TestVerify_Valid(t *testing.T) {
	v := testVerifier()
	body := []byte(`{"type":"url_verification","challenge":"xyz"}`)
	if err := v.Verify(signedHeader(v, fixedNow, body), body); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
}

func TestVerify_KnownVector(t *testing.T) {
	// Example request from the Slack signing documentation.
	body := []byte("token=xyzz0WbapA4vBCDEFasx0q6G&team_id=T1DC2JH3J&team_domain=testteamnow&channel_id=G8PSS9T3V&channel_name=foobar&user_id=U2CERLKJA&user_name=roadrunner&command=%2Fwebhook-collect&text=&response_url=https%3A%2F%2Fhooks.slack.com%2Fcommands%2FT1DC2JH3J%2F397700885554%2F96rGlfmibIGlgcZRskXaIFfN&trigger_id=398738663015.47445629121.803a0bc887a14d10d2c447fce8b6703c")
	v := NewVerifier("8f742231b10e8888abcd99yyyzzz85a5", 5*time.Minute).
		WithClock(func() time.Time { return time.Unix(1531420618, 0) })

	h := http.Header{}
	h.Set(HeaderTimestamp, "1531420618")
	h.Set(HeaderSignature, "v0=a2114d57b48eac39b9ad189dd8316235a7b4a8d21a10bd27519666489c69b503")
	if err := v.Verify(h, body); err != nil {
		t.Fatalf("expected documented signature to verify, got %v", err)
	}
}

func TestVerify_Rejects(t *testing.T) {
	v := testVerifier()
	body := []byte(`{"type":"event_callback"}`)

	cases := map[string]http.Header{
		"missing headers": {},
		"tampered body":   signedHeader(v, fixedNow, []byte(`{"type":"other"}`)),
		"stale":           signedHeader(v, fixedNow.Add(-6*time.Minute), body),
		"future":          signedHeader(v, fixedNow.Add(6*time.Minute), body),
	}

	bad := signedHeader(v, fixedNow, body)
	bad.Set(HeaderTimestamp, "yesterday")
	cases["non-numeric timestamp"] = bad

	noVersion := signedHeader(v, fixedNow, body)
	noVersion.Set(HeaderSignature, noVersion.Get(HeaderSignature)[3:])
	cases["missing version prefix"] = noVersion

	notHex := signedHeader(v, fixedNow, body)
	notHex.Set(HeaderSignature, "v0=zzzz")
	cases["non-hex signature"] = notHex

	other := NewVerifier("a different secret", 5*time.Minute)
	cases["wrong secret"] = signedHeader(other, fixedNow, body)

	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			err := v.Verify(h, body)
			if !errors.Is(err, ErrAuthentication) {
				t.Fatalf("expected ErrAuthentication, got %v", err)
			}
		})
	}
}

func TestVerify_WithinWindow(t *testing.T) {
	v := testVerifier()
	body := []byte(`{}`)
	for _, skew := range []time.Duration{-4 * time.Minute, 4 * time.Minute, 5 * time.Minute} {
		if err := v.Verify(signedHeader(v, fixedNow.Add(skew), body), body); err != nil {
			t.Errorf("skew %v: expected valid, got %v", skew, err)
		}
	}
}
