package answer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/nextlevelbuilder/answergrid/internal/config"
)

func testClient(url string) *Client {
	return NewClient(config.AnswerConfig{BaseURL: url, Mode: "qa", TimeoutSec: 5, Token: "svc-token"})
}

func TestQueryJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/query" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("X-Service-Token") != "svc-token" {
			t.Error("trust header missing")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"answer":"42","confidence":0.88,"citations":[{"document_id":"d1","source_name":"s","excerpt":"e","score":0.9}],"silence":false}`))
	}))
	defer srv.Close()

	res, err := testClient(srv.URL).Query(context.Background(), QueryRequest{Text: "meaning of life"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "42" || res.ConfidenceScore != 0.88 || len(res.Citations) != 1 || res.ExplicitSilence {
		t.Errorf("result = %+v", res)
	}
}

func TestQueryEventStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"delta\":\"The answer \"}\n\n"))
		w.Write([]byte("data: {\"delta\":\"is 42.\"}\n\n"))
		w.Write([]byte("data: {\"confidence\":0.77,\"citations\":[{\"document_id\":\"d1\",\"source_name\":\"s\",\"excerpt\":\"e\",\"score\":0.8}],\"silence\":false}\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	res, err := testClient(srv.URL).Query(context.Background(), QueryRequest{Text: "q"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "The answer is 42." {
		t.Errorf("text = %q", res.Text)
	}
	if res.ConfidenceScore != 0.77 || len(res.Citations) != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestQueryExplicitSilence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"answer":"","confidence":0.95,"silence":true}`))
	}))
	defer srv.Close()

	res, err := testClient(srv.URL).Query(context.Background(), QueryRequest{Text: "q"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.ExplicitSilence {
		t.Error("explicit silence flag not parsed")
	}
}

func TestQueryServerErrorRetriesThenFails(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Query(context.Background(), QueryRequest{Text: "q"})
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
	if got := hits.Load(); got != maxAttempts {
		t.Errorf("hits = %d, want %d", got, maxAttempts)
	}
}

func TestQueryClientErrorNoRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Query(context.Background(), QueryRequest{Text: "q"})
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("hits = %d, want 1 (4xx must not be retried)", got)
	}
}

func TestQueryUnreachableBackend(t *testing.T) {
	_, err := testClient("http://127.0.0.1:1").Query(context.Background(), QueryRequest{Text: "q"})
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
}
