package answer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nextlevelbuilder/answergrid/internal/config"
)

// ErrUpstream marks backend failures (timeout, transport error, non-2xx).
// These are never interpreted as silence.
var ErrUpstream = errors.New("answer backend unavailable")

// trustHeader carries the service identity to the backend. It is an
// internal credential, not a user-facing one.
const trustHeader = "X-Service-Token"

const (
	maxAttempts  = 3
	retryBackoff = 300 * time.Millisecond
)

// HistoryTurn is one prior exchange passed for conversational context.
type HistoryTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// QueryRequest is a single question for the backend.
type QueryRequest struct {
	Text    string
	Persona string // per-tenant system prompt override, empty = none
	History []HistoryTurn
}

// Client issues queries to the answer-generation backend.
type Client struct {
	baseURL string
	token   string
	mode    string
	http    *http.Client
}

func NewClient(cfg config.AnswerConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		mode:    cfg.Mode,
		http:    &http.Client{Timeout: cfg.Timeout()},
	}
}

// Query posts the question and parses the response, which may arrive as a
// plain JSON document or as a stream of server-sent events. Transient
// failures are retried a few times; anything still failing surfaces as
// ErrUpstream.
func (c *Client) Query(ctx context.Context, req QueryRequest) (*Result, error) {
	payload, err := json.Marshal(map[string]any{
		"text":                   req.Text,
		"mode":                   c.mode,
		"system_prompt_override": req.Persona,
		"history":                req.History,
	})
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", ErrUpstream, ctx.Err())
			case <-time.After(time.Duration(attempt-1) * retryBackoff):
			}
		}

		result, retryable, err := c.doQuery(ctx, payload)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrUpstream, lastErr)
}

func (c *Client) doQuery(ctx context.Context, payload []byte) (*Result, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/query", bytes.NewReader(payload))
	if err != nil {
		return nil, false, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")
	if c.token != "" {
		httpReq.Header.Set(trustHeader, c.token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		err := fmt.Errorf("backend status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		// 5xx may be a blip worth retrying; 4xx is our bug or a policy
		// rejection and will not improve.
		return nil, resp.StatusCode >= 500, err
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		result, err := parseEventStream(resp.Body)
		return result, false, err
	}
	result, err := parseJSONBody(resp.Body)
	return result, false, err
}

type backendResponse struct {
	Answer     string     `json:"answer"`
	Text       string     `json:"text"` // some deployments use "text"
	Confidence float64    `json:"confidence"`
	Citations  []Citation `json:"citations"`
	Silence    bool       `json:"silence"`
}

func parseJSONBody(r io.Reader) (*Result, error) {
	var body backendResponse
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode backend response: %w", err)
	}
	text := body.Answer
	if text == "" {
		text = body.Text
	}
	return &Result{
		Text:            text,
		ConfidenceScore: body.Confidence,
		Citations:       body.Citations,
		ExplicitSilence: body.Silence,
	}, nil
}

type streamEvent struct {
	Delta      string     `json:"delta"`
	Text       string     `json:"text"`
	Confidence *float64   `json:"confidence"`
	Citations  []Citation `json:"citations"`
	Silence    *bool      `json:"silence"`
}

// parseEventStream folds a server-sent-event stream into a single Result:
// text deltas concatenate, metadata fields take the last value seen.
func parseEventStream(r io.Reader) (*Result, error) {
	var (
		text    strings.Builder
		result  Result
		sawData bool
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" || data == "[DONE]" {
			continue
		}
		var ev streamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return nil, fmt.Errorf("decode stream event: %w", err)
		}
		sawData = true
		if ev.Delta != "" {
			text.WriteString(ev.Delta)
		} else if ev.Text != "" {
			text.Reset()
			text.WriteString(ev.Text)
		}
		if ev.Confidence != nil {
			result.ConfidenceScore = *ev.Confidence
		}
		if ev.Citations != nil {
			result.Citations = ev.Citations
		}
		if ev.Silence != nil {
			result.ExplicitSilence = *ev.Silence
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}
	if !sawData {
		return nil, errors.New("empty event stream")
	}
	result.Text = text.String()
	return &result, nil
}
