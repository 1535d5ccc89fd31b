// Package httpapi serves the direct query API, the cross-channel timeline
// view, and health, alongside the webhook mounts.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nextlevelbuilder/answergrid/internal/answer"
	"github.com/nextlevelbuilder/answergrid/internal/config"
	"github.com/nextlevelbuilder/answergrid/internal/event"
	"github.com/nextlevelbuilder/answergrid/internal/format"
	"github.com/nextlevelbuilder/answergrid/internal/store"
)

// AnswerClient is the answer-backend dependency.
type AnswerClient interface {
	Query(ctx context.Context, req answer.QueryRequest) (*answer.Result, error)
}

type Server struct {
	cfg     *config.Config
	client  AnswerClient
	threads store.ThreadStore
	audit   store.AuditStore
	now     func() time.Time
}

func NewServer(cfg *config.Config, client AnswerClient, stores *store.Stores) *Server {
	return &Server{cfg: cfg, client: client, threads: stores.Threads, audit: stores.Audit, now: time.Now}
}

// RegisterRoutes mounts the API endpoints.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /v1/query", s.requireAuth(s.handleQuery))
	mux.HandleFunc("GET /v1/timeline", s.requireAuth(s.handleTimeline))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requireAuth checks the bearer token against the configured API token.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := s.cfg.Server.APIToken
		if token == "" {
			http.Error(w, "api token not configured", http.StatusInternalServerError)
			return
		}
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

type queryRequest struct {
	Text     string `json:"text"`
	TenantID string `json:"tenant_id,omitempty"`
	UserID   string `json:"user_id,omitempty"`
	Persona  string `json:"persona,omitempty"`
}

// queryResponse is the structured API shape. Citation blocks pass through
// unchanged; no channel formatting applies here.
type queryResponse struct {
	Decision    string                 `json:"decision"`
	Text        string                 `json:"text,omitempty"`
	Confidence  *float64               `json:"confidence,omitempty"`
	Citations   []answer.CitationBlock `json:"citations,omitempty"`
	Reasoning   string                 `json:"reasoning,omitempty"`
	Suggestions []string               `json:"suggestions,omitempty"`
	Message     string                 `json:"message,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	tenantID := req.TenantID
	if tenantID == "" {
		tenantID = s.cfg.Tenants.DefaultTenantID
	}
	userID := req.UserID
	if userID == "" {
		userID = s.cfg.Tenants.DefaultUserID
	}

	result, err := s.client.Query(r.Context(), answer.QueryRequest{Text: req.Text, Persona: req.Persona})
	if err != nil {
		slog.Error("api query failed", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusBadGateway, queryResponse{Decision: answer.KindError, Message: format.GenericErrorText})
		return
	}

	confidence := result.ConfidenceScore
	threshold := s.cfg.Silence.Threshold
	if threshold <= 0 {
		threshold = answer.DefaultThreshold
	}

	var resp queryResponse
	if answer.Decide(confidence, result.ExplicitSilence, threshold) == answer.KindSilence {
		resp = queryResponse{
			Decision:    answer.KindSilence,
			Confidence:  &confidence,
			Reasoning:   s.cfg.Silence.Reasoning,
			Suggestions: s.cfg.Silence.Suggestions,
		}
	} else {
		resp = queryResponse{
			Decision:   answer.KindAnswer,
			Text:       result.Text,
			Confidence: &confidence,
			Citations:  answer.EnrichCitations(result.Citations, req.Text, result.Text, s.now()),
		}
	}

	s.record(r, tenantID, userID, req.Text, resp)
	writeJSON(w, http.StatusOK, resp)
}

// record appends the exchange to the user's thread and the audit log.
// Failures are logged, never surfaced; the answer is already decided.
func (s *Server) record(r *http.Request, tenantID, userID, query string, resp queryResponse) {
	ctx := r.Context()
	thread, err := s.threads.FindOrCreate(ctx, tenantID, userID, event.ChannelAPI)
	if err != nil {
		slog.Error("api thread lookup failed", "tenant_id", tenantID, "error", err)
	} else {
		if err := s.threads.Append(ctx, thread.ID, &store.ThreadMessage{
			Role: store.RoleUser, Channel: event.ChannelAPI, Content: query,
		}); err != nil {
			slog.Error("api inbound append failed", "error", err)
		}
		content := resp.Text
		if resp.Decision == answer.KindSilence {
			content = resp.Reasoning
		}
		meta := map[string]string{"decision": resp.Decision}
		if lines := format.TimelineCitations(resp.Citations); lines != "" {
			meta[store.MetaCitations] = lines
		}
		if err := s.threads.Append(ctx, thread.ID, &store.ThreadMessage{
			Role: store.RoleAssistant, Channel: event.ChannelAPI, Content: content,
			Confidence: resp.Confidence, Metadata: meta,
		}); err != nil {
			slog.Error("api outbound append failed", "error", err)
		}
	}

	action := "reply.sent"
	response := resp.Text
	if resp.Decision == answer.KindSilence {
		action = "reply.silenced"
		response = resp.Reasoning
	}
	if err := s.audit.Append(ctx, &store.AuditRecord{
		Actor:      tenantID + "/" + userID,
		Action:     action,
		Channel:    event.ChannelAPI,
		Query:      store.TruncateForAudit(query),
		Response:   store.TruncateForAudit(response),
		Confidence: resp.Confidence,
	}); err != nil {
		slog.Error("api audit append failed", "error", err)
	}
}

type timelineEntry struct {
	Role       string    `json:"role"`
	Channel    string    `json:"channel"`
	Content    string    `json:"content"`
	Confidence *float64  `json:"confidence,omitempty"`
	Citations  []string  `json:"citations,omitempty"` // one compact line each
	CreatedAt  time.Time `json:"createdAt"`
}

// handleTimeline returns a user's recent turns across every channel,
// newest first.
func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tenantID := q.Get("tenant_id")
	userID := q.Get("user_id")
	if tenantID == "" || userID == "" {
		http.Error(w, "tenant_id and user_id required", http.StatusBadRequest)
		return
	}
	limit := 50
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	msgs, err := s.threads.ListMessages(r.Context(), tenantID, userID, limit)
	if err != nil {
		slog.Error("timeline fetch failed", "tenant_id", tenantID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	entries := make([]timelineEntry, 0, len(msgs))
	for _, m := range msgs {
		entry := timelineEntry{
			Role: m.Role, Channel: m.Channel, Content: m.Content,
			Confidence: m.Confidence, CreatedAt: m.CreatedAt,
		}
		if lines := m.Metadata[store.MetaCitations]; lines != "" {
			entry.Citations = strings.Split(lines, "\n")
		}
		entries = append(entries, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": entries})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("response encode failed", "error", err)
	}
}
