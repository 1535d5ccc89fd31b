package answer

import (
	"testing"
	"time"
)

func TestEnrichCitations(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	raw := []Citation{
		{DocumentID: "doc-1", ChunkID: "c-1", SourceName: "Filing Q4", Excerpt: "revenue grew", Score: 0.91, DocumentURL: "https://kb.example/doc-1"},
		{DocumentID: "doc-2", SourceName: "Memo", Excerpt: "see appendix", Score: 0.72},
		{DocumentID: "doc-3", SourceName: "Draft", Excerpt: "unverified", Score: 0.40},
	}

	blocks := EnrichCitations(raw, "what was revenue", "revenue grew 10%", now)
	if len(blocks) != 3 {
		t.Fatalf("got %d blocks", len(blocks))
	}

	wantColors := []string{ColorGreen, ColorAmber, ColorRed}
	wantLevels := []string{LevelHigh, LevelMedium, LevelLow}
	for i, b := range blocks {
		if b.ConfidenceColor != wantColors[i] || b.ConfidenceLevel != wantLevels[i] {
			t.Errorf("block %d tier = %s/%s, want %s/%s", i, b.ConfidenceLevel, b.ConfidenceColor, wantLevels[i], wantColors[i])
		}
		if !b.RetrievalTimestamp.Equal(now) {
			t.Errorf("block %d timestamp = %v", i, b.RetrievalTimestamp)
		}
	}

	// Provenance hashes are shared across the whole reply.
	if blocks[0].QueryHash != blocks[2].QueryHash || blocks[0].ResponseHash != blocks[2].ResponseHash {
		t.Error("hashes must be identical across blocks of one reply")
	}
	if blocks[0].QueryHash == blocks[0].ResponseHash {
		t.Error("query and response hashes should differ for different content")
	}
	if len(blocks[0].QueryHash) != hashLen {
		t.Errorf("hash length = %d", len(blocks[0].QueryHash))
	}
	if blocks[0].DocumentURL != "https://kb.example/doc-1" {
		t.Errorf("document url not carried: %q", blocks[0].DocumentURL)
	}
}

func TestEnrichCitationsEmpty(t *testing.T) {
	if got := EnrichCitations(nil, "q", "r", time.Now()); got != nil {
		t.Errorf("want nil for no citations, got %v", got)
	}
}

func TestContentHashStable(t *testing.T) {
	if ContentHash("abc") != ContentHash("abc") {
		t.Error("hash not deterministic")
	}
	if ContentHash("abc") == ContentHash("abd") {
		t.Error("distinct content should hash differently")
	}
}
