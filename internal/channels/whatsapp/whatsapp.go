// Package whatsapp delivers replies through the WhatsApp Cloud API.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nextlevelbuilder/answergrid/internal/channels"
	"github.com/nextlevelbuilder/answergrid/internal/config"
)

type Sender struct {
	apiBase      string
	defaultToken string
	http         *http.Client
	limiter      *channels.KeyedLimiter
}

func NewSender(cfg config.WhatsAppConfig) *Sender {
	base := cfg.APIBase
	if base == "" {
		base = "https://graph.facebook.com/v19.0"
	}
	return &Sender{
		apiBase:      strings.TrimRight(base, "/"),
		defaultToken: cfg.AccessToken,
		http:         &http.Client{Timeout: 15 * time.Second},
		limiter:      channels.NewKeyedLimiter(cfg.SendRatePerSec),
	}
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Send posts a text message from the business number (RoutingKey) to the
// user (Recipient), quoting the inbound message when ThreadRef is set.
func (s *Sender) Send(ctx context.Context, msg channels.OutboundMessage) (*channels.SendResult, error) {
	if err := s.limiter.Wait(ctx, msg.RoutingKey); err != nil {
		return nil, fmt.Errorf("%w: %w", channels.ErrSendFailed, err)
	}

	body := map[string]any{
		"messaging_product": "whatsapp",
		"to":                msg.Recipient,
		"type":              "text",
		"text":              map[string]any{"body": msg.Text},
	}
	if msg.ThreadRef != "" {
		body["context"] = map[string]string{"message_id": msg.ThreadRef}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: encode message: %w", channels.ErrSendFailed, err)
	}

	token := msg.Credential
	if token == "" {
		token = s.defaultToken
	}

	url := fmt.Sprintf("%s/%s/messages", s.apiBase, msg.RoutingKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", channels.ErrSendFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	httpResp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", channels.ErrSendFailed, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusUnauthorized || httpResp.StatusCode == http.StatusForbidden {
		raw, _ := io.ReadAll(io.LimitReader(httpResp.Body, 1024))
		return nil, fmt.Errorf("%w: whatsapp status %d: %s", channels.ErrAuthRevoked, httpResp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var resp sendResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", channels.ErrSendFailed, err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 || resp.Error != nil {
		detail := httpResp.Status
		if resp.Error != nil {
			detail = fmt.Sprintf("%s (code %d)", resp.Error.Message, resp.Error.Code)
		}
		return nil, fmt.Errorf("%w: whatsapp: %s", channels.ErrSendFailed, detail)
	}

	externalID := ""
	if len(resp.Messages) > 0 {
		externalID = resp.Messages[0].ID
	}
	return &channels.SendResult{ExternalID: externalID}, nil
}
