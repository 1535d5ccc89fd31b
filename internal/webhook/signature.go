// Package webhook implements the inbound edge: signature verification and
// the fast-ack receiver that queues raw events for async processing.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Signature header names (webhook relay convention: signed content is
// "<id>.<timestamp>.<body>" over the exact transmitted bytes).
const (
	HeaderID        = "Webhook-Id"
	HeaderTimestamp = "Webhook-Timestamp"
	HeaderSignature = "Webhook-Signature"
)

// timestampTolerance rejects stale or future-dated deliveries (replay bound).
const timestampTolerance = 5 * time.Minute

var (
	ErrMissingHeaders   = errors.New("webhook: missing signature headers")
	ErrStaleTimestamp   = errors.New("webhook: timestamp outside tolerance")
	ErrBadSignature     = errors.New("webhook: signature mismatch")
	errMalformedVersion = errors.New("webhook: no v1 signature present")
)

// Verifier checks inbound webhook authenticity against a shared secret.
type Verifier struct {
	key []byte
	now func() time.Time
}

// NewVerifier builds a verifier. A "whsec_" prefixed secret is treated as
// base64 (relay portal format); anything else is used as raw key bytes.
func NewVerifier(secret string) *Verifier {
	key := []byte(secret)
	if rest, ok := strings.CutPrefix(secret, "whsec_"); ok {
		if decoded, err := base64.StdEncoding.DecodeString(rest); err == nil {
			key = decoded
		}
	}
	return &Verifier{key: key, now: time.Now}
}

// Verify checks the signature over the exact body bytes plus the declared
// id and timestamp headers. The signature header carries one or more
// space-separated "v1,<base64>" entries; any match passes. Comparison is
// constant time.
func (v *Verifier) Verify(id, timestamp, signature string, body []byte) error {
	if id == "" || timestamp == "" || signature == "" {
		return ErrMissingHeaders
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp %q", ErrMissingHeaders, timestamp)
	}
	age := v.now().Sub(time.Unix(ts, 0))
	if age > timestampTolerance || age < -timestampTolerance {
		return ErrStaleTimestamp
	}

	expected := v.sign(id, timestamp, body)

	found := false
	for _, part := range strings.Fields(signature) {
		version, sig, ok := strings.Cut(part, ",")
		if !ok || version != "v1" {
			continue
		}
		found = true
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	if !found {
		return errMalformedVersion
	}
	return ErrBadSignature
}

// Sign produces the v1 signature for the given content (used by tests and
// the dead-letter replay path).
func (v *Verifier) Sign(id, timestamp string, body []byte) string {
	return "v1," + v.sign(id, timestamp, body)
}

func (v *Verifier) sign(id, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, v.key)
	mac.Write([]byte(id))
	mac.Write([]byte("."))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
