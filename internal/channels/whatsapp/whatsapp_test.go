package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nextlevelbuilder/answergrid/internal/channels"
	"github.com/nextlevelbuilder/answergrid/internal/config"
)

func TestSend(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{"messages": []map[string]string{{"id": "wamid.X1"}}})
	}))
	defer srv.Close()

	s := NewSender(config.WhatsAppConfig{APIBase: srv.URL, AccessToken: "platform-token", SendRatePerSec: 100})
	res, err := s.Send(context.Background(), channels.OutboundMessage{
		RoutingKey: "155500011",
		Recipient:  "15557770000",
		ThreadRef:  "wamid.IN",
		Text:       "the answer",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.ExternalID != "wamid.X1" {
		t.Errorf("external id = %q", res.ExternalID)
	}
	if gotPath != "/155500011/messages" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer platform-token" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotBody["to"] != "15557770000" || gotBody["messaging_product"] != "whatsapp" {
		t.Errorf("body = %v", gotBody)
	}
	if ctxField, ok := gotBody["context"].(map[string]any); !ok || ctxField["message_id"] != "wamid.IN" {
		t.Errorf("context = %v", gotBody["context"])
	}
}

func TestSendAuthRevoked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"token expired","code":190}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewSender(config.WhatsAppConfig{APIBase: srv.URL, SendRatePerSec: 100})
	_, err := s.Send(context.Background(), channels.OutboundMessage{RoutingKey: "1", Recipient: "2", Text: "x"})
	if !errors.Is(err, channels.ErrAuthRevoked) {
		t.Fatalf("err = %v, want ErrAuthRevoked", err)
	}
}

func TestSendGraphError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "unsupported", "code": 100}})
	}))
	defer srv.Close()

	s := NewSender(config.WhatsAppConfig{APIBase: srv.URL, SendRatePerSec: 100})
	_, err := s.Send(context.Background(), channels.OutboundMessage{RoutingKey: "1", Recipient: "2", Text: "x"})
	if !errors.Is(err, channels.ErrSendFailed) {
		t.Fatalf("err = %v, want ErrSendFailed", err)
	}
}

func TestSendTenantCredentialWins(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{"messages": []map[string]string{{"id": "wamid.1"}}})
	}))
	defer srv.Close()

	s := NewSender(config.WhatsAppConfig{APIBase: srv.URL, AccessToken: "platform", SendRatePerSec: 100})
	if _, err := s.Send(context.Background(), channels.OutboundMessage{RoutingKey: "1", Recipient: "2", Text: "x", Credential: "tenant"}); err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer tenant" {
		t.Errorf("auth = %q", gotAuth)
	}
}
