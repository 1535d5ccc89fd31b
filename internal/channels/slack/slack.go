// Package slack delivers replies through the Slack Web API.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nextlevelbuilder/answergrid/internal/channels"
	"github.com/nextlevelbuilder/answergrid/internal/config"
)

// Slack error codes that mean the token is no longer usable.
var revokedCodes = map[string]bool{
	"invalid_auth":     true,
	"token_revoked":    true,
	"account_inactive": true,
	"not_authed":       true,
}

type Sender struct {
	apiBase      string
	defaultToken string
	typing       bool
	http         *http.Client
	limiter      *channels.KeyedLimiter
}

func NewSender(cfg config.SlackConfig) *Sender {
	base := cfg.APIBase
	if base == "" {
		base = "https://slack.com/api"
	}
	return &Sender{
		apiBase:      strings.TrimRight(base, "/"),
		defaultToken: cfg.BotToken,
		typing:       cfg.TypingIndicator,
		http:         &http.Client{Timeout: 15 * time.Second},
		limiter:      channels.NewKeyedLimiter(cfg.SendRatePerSec),
	}
}

type apiResponse struct {
	OK    bool   `json:"ok"`
	TS    string `json:"ts"`
	Error string `json:"error"`
}

// Send posts the reply with chat.postMessage, threading under ThreadRef
// when present. The tenant credential wins over the platform default.
func (s *Sender) Send(ctx context.Context, msg channels.OutboundMessage) (*channels.SendResult, error) {
	if err := s.limiter.Wait(ctx, msg.RoutingKey); err != nil {
		return nil, fmt.Errorf("%w: %w", channels.ErrSendFailed, err)
	}

	body := map[string]any{
		"channel": msg.RoutingKey,
		"text":    msg.Text,
	}
	if msg.ThreadRef != "" {
		body["thread_ts"] = msg.ThreadRef
	}

	resp, err := s.call(ctx, "chat.postMessage", s.token(msg), body)
	if err != nil {
		return nil, err
	}
	return &channels.SendResult{ExternalID: resp.TS}, nil
}

// NotifyTyping shows a transient status in the thread while the answer is
// generated. Fire and forget: failures are logged, never surfaced.
func (s *Sender) NotifyTyping(ctx context.Context, msg channels.OutboundMessage) {
	if !s.typing || msg.ThreadRef == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_, err := s.call(ctx, "assistant.threads.setStatus", s.token(msg), map[string]any{
			"channel_id": msg.RoutingKey,
			"thread_ts":  msg.ThreadRef,
			"status":     "is looking that up…",
		})
		if err != nil {
			slog.Debug("slack typing indicator failed", "channel", msg.RoutingKey, "error", err)
		}
	}()
}

func (s *Sender) token(msg channels.OutboundMessage) string {
	if msg.Credential != "" {
		return msg.Credential
	}
	return s.defaultToken
}

func (s *Sender) call(ctx context.Context, method, token string, body map[string]any) (*apiResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: encode %s: %w", channels.ErrSendFailed, method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiBase+"/"+method, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", channels.ErrSendFailed, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+token)

	httpResp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", channels.ErrSendFailed, method, err)
	}
	defer httpResp.Body.Close()

	var resp apiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w: decode %s response: %w", channels.ErrSendFailed, method, err)
	}
	if !resp.OK {
		if revokedCodes[resp.Error] {
			return nil, fmt.Errorf("%w: slack: %s", channels.ErrAuthRevoked, resp.Error)
		}
		return nil, fmt.Errorf("%w: slack %s: %s", channels.ErrSendFailed, method, resp.Error)
	}
	return &resp, nil
}
