// Package answer talks to the answer-generation backend and turns its
// responses into gated reply decisions.
package answer

import "time"

// Citation is a raw retrieval reference as returned by the backend.
type Citation struct {
	DocumentID  string  `json:"document_id"`
	ChunkID     string  `json:"chunk_id,omitempty"`
	SourceName  string  `json:"source_name"`
	Excerpt     string  `json:"excerpt"`
	Score       float64 `json:"score"`
	DocumentURL string  `json:"document_url,omitempty"`
}

// Result is the parsed backend response.
type Result struct {
	Text            string
	ConfidenceScore float64
	Citations       []Citation
	ExplicitSilence bool
}

// Confidence tier labels for individual citations.
const (
	LevelHigh   = "high"
	LevelMedium = "medium"
	LevelLow    = "low"

	ColorGreen = "green"
	ColorAmber = "amber"
	ColorRed   = "red"
)

// CitationBlock is a citation enriched for display and audit: tier
// classification, provenance hashes, and retrieval time.
type CitationBlock struct {
	DocumentID         string    `json:"documentId"`
	ChunkID            string    `json:"chunkId,omitempty"`
	SourceName         string    `json:"sourceName"`
	Excerpt            string    `json:"excerpt"`
	ConfidenceScore    float64   `json:"confidenceScore"`
	ConfidenceLevel    string    `json:"confidenceLevel"`
	ConfidenceColor    string    `json:"confidenceColor"`
	RetrievalTimestamp time.Time `json:"retrievalTimestamp"`
	QueryHash          string    `json:"queryHash"`
	ResponseHash       string    `json:"responseHash"`
	DocumentURL        string    `json:"documentUrl,omitempty"`
}

// Decision kinds.
const (
	KindAnswer  = "answer"
	KindSilence = "silence"
	KindError   = "error"
)

// ReplyDecision is the gated outcome for one inbound message. Exactly one
// of the kind-specific field groups is populated.
type ReplyDecision struct {
	Kind string

	// KindAnswer
	Text      string
	Citations []CitationBlock

	// KindSilence
	Reasoning   string
	Suggestions []string

	// KindError
	ErrorKind string
}

// NewAnswer builds an answer decision.
func NewAnswer(text string, citations []CitationBlock) ReplyDecision {
	return ReplyDecision{Kind: KindAnswer, Text: text, Citations: citations}
}

// NewSilence builds a silence decision. It carries no answer body and no
// citations by construction.
func NewSilence(reasoning string, suggestions []string) ReplyDecision {
	return ReplyDecision{Kind: KindSilence, Reasoning: reasoning, Suggestions: suggestions}
}

// NewError builds an error decision carrying only the error kind; the raw
// failure never reaches the end user.
func NewError(kind string) ReplyDecision {
	return ReplyDecision{Kind: KindError, ErrorKind: kind}
}
