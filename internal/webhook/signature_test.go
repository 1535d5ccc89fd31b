package webhook

import (
	"encoding/base64"
	"errors"
	"strconv"
	"testing"
	"time"
)

func fixedVerifier(secret string, at time.Time) *Verifier {
	v := NewVerifier(secret)
	v.now = func() time.Time { return at }
	return v
}

func TestVerify(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := fixedVerifier("test-secret", now)
	body := []byte(`{"type":"message"}`)
	ts := strconv.FormatInt(now.Unix(), 10)
	good := v.Sign("msg_1", ts, body)

	tests := []struct {
		name    string
		id      string
		ts      string
		sig     string
		body    []byte
		wantErr error
	}{
		{"valid", "msg_1", ts, good, body, nil},
		{"valid among multiple entries", "msg_1", ts, "v1,bogus " + good, body, nil},
		{"missing headers", "", ts, good, body, ErrMissingHeaders},
		{"non-numeric timestamp", "msg_1", "soon", good, body, ErrMissingHeaders},
		{"tampered body", "msg_1", ts, good, []byte(`{"type":"evil"}`), ErrBadSignature},
		{"wrong id", "msg_2", ts, good, body, ErrBadSignature},
		{"stale timestamp", "msg_1", strconv.FormatInt(now.Add(-10*time.Minute).Unix(), 10), good, body, ErrStaleTimestamp},
		{"future timestamp", "msg_1", strconv.FormatInt(now.Add(10*time.Minute).Unix(), 10), good, body, ErrStaleTimestamp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Verify(tt.id, tt.ts, tt.sig, tt.body)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Verify() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestVerifyNoV1Entry(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := fixedVerifier("test-secret", now)
	ts := strconv.FormatInt(now.Unix(), 10)
	err := v.Verify("msg_1", ts, "v2,abcdef", []byte(`{}`))
	if err == nil {
		t.Fatal("expected error for signature without v1 entry")
	}
}

func TestVerifierSecretFormats(t *testing.T) {
	now := time.Unix(1700000000, 0)
	raw := []byte("0123456789abcdef0123456789abcdef")
	portal := "whsec_" + base64.StdEncoding.EncodeToString(raw)
	ts := strconv.FormatInt(now.Unix(), 10)
	body := []byte(`{"ok":true}`)

	// A whsec_ secret and its decoded raw bytes must verify each other.
	signer := fixedVerifier(string(raw), now)
	checker := fixedVerifier(portal, now)
	if err := checker.Verify("id", ts, signer.Sign("id", ts, body), body); err != nil {
		t.Fatalf("portal-format secret did not match raw key: %v", err)
	}
}
