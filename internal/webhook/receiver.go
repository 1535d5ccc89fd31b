package webhook

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/nextlevelbuilder/answergrid/internal/event"
	"github.com/nextlevelbuilder/answergrid/internal/queue"
)

const maxBodyBytes = 1 << 20 // 1MB

// Receiver is the fast-ack webhook edge. It verifies, enqueues, and
// responds — all real work happens asynchronously in the processor. The
// upstream relay has a short timeout and no retry, so a queue publish
// failure is swallowed (logged) rather than surfaced as a 5xx.
type Receiver struct {
	verifier  *Verifier
	publisher queue.Publisher
	limiter   *RateLimiter
	ackBudget time.Duration
	secret    string
	secretSet bool
}

// NewReceiver wires the webhook edge. An empty secret leaves the receiver
// in a misconfigured state where every delivery is answered 500.
func NewReceiver(secret string, pub queue.Publisher, ackBudget time.Duration) *Receiver {
	if ackBudget <= 0 {
		ackBudget = 250 * time.Millisecond
	}
	return &Receiver{
		verifier:  NewVerifier(secret),
		publisher: pub,
		limiter:   NewRateLimiter(),
		ackBudget: ackBudget,
		secret:    secret,
		secretSet: secret != "",
	}
}

// RegisterRoutes mounts the per-channel webhook endpoints.
func (rc *Receiver) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/slack", rc.handle(event.ChannelSlack, event.DecodeSlackType))
	mux.HandleFunc("POST /webhooks/whatsapp", rc.handle(event.ChannelWhatsApp, event.DecodeWhatsAppType))
	mux.HandleFunc("GET /webhooks/whatsapp", rc.handleWhatsAppVerify)
}

// handleWhatsAppVerify answers the Cloud API subscription handshake. The
// verify token is the same shared secret the relay signs with.
func (rc *Receiver) handleWhatsAppVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !rc.secretSet || q.Get("hub.mode") != "subscribe" || q.Get("hub.verify_token") != rc.secret {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(q.Get("hub.challenge")))
}

func (rc *Receiver) handle(channelType string, decodeType func([]byte) string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		defer func() {
			if elapsed := time.Since(start); elapsed > rc.ackBudget {
				slog.Warn("webhook ack exceeded budget",
					"channel", channelType, "elapsed_ms", elapsed.Milliseconds())
			}
		}()

		if !rc.secretSet {
			slog.Error("webhook secret not configured, rejecting delivery", "channel", channelType)
			http.Error(w, "server misconfigured", http.StatusInternalServerError)
			return
		}

		if !rc.limiter.Allow(remoteKey(r)) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		id := r.Header.Get(HeaderID)
		ts := r.Header.Get(HeaderTimestamp)
		sig := r.Header.Get(HeaderSignature)
		if err := rc.verifier.Verify(id, ts, sig, body); err != nil {
			slog.Debug("webhook signature rejected", "channel", channelType, "error", err)
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}

		if !json.Valid(body) {
			// Acking malformed bodies would invite a retry storm from a
			// broken producer; rejecting with 400 keeps them visible.
			http.Error(w, "malformed body", http.StatusBadRequest)
			return
		}

		// Slack's endpoint handshake echoes the challenge synchronously.
		if channelType == event.ChannelSlack {
			if challenge := slackChallenge(body); challenge != "" {
				writeJSON(w, http.StatusOK, map[string]string{"challenge": challenge})
				return
			}
		}

		eventType := decodeType(body)
		if eventType == "" {
			// Receipts, joins, and other families the pipeline ignores.
			slog.Debug("webhook event dropped (no handled family)", "channel", channelType, "event_id", id)
			writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}

		attrs := map[string]string{
			queue.AttrChannelType: channelType,
			queue.AttrEventType:   eventType,
			queue.AttrEventID:     id,
			queue.AttrReceivedAt:  strconv.FormatInt(start.UnixMilli(), 10),
		}
		if _, err := rc.publisher.Publish(r.Context(), body, attrs); err != nil {
			// Never fail the webhook over a publish error: the sender bans
			// endpoints that keep erroring. The event is lost; log loudly.
			slog.Error("webhook enqueue failed, acking anyway",
				"channel", channelType, "event_id", id, "error", err)
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "queued"})
	}
}

func slackChallenge(body []byte) string {
	var probe struct {
		Type      string `json:"type"`
		Challenge string `json:"challenge"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return ""
	}
	if probe.Type != "url_verification" {
		return ""
	}
	return probe.Challenge
}

func remoteKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
