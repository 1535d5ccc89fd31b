package answer

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// hashLen is the number of hex chars kept from a provenance hash. Enough
// to correlate records, short enough for log lines.
const hashLen = 16

// ContentHash returns a short stable fingerprint of the given text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:hashLen]
}

// EnrichCitations turns raw backend citations into display-ready blocks:
// tier classification, retrieval time, and query/response provenance
// hashes shared across the whole reply.
func EnrichCitations(citations []Citation, queryText, responseText string, retrievedAt time.Time) []CitationBlock {
	if len(citations) == 0 {
		return nil
	}
	queryHash := ContentHash(queryText)
	responseHash := ContentHash(responseText)
	blocks := make([]CitationBlock, 0, len(citations))
	for _, c := range citations {
		level, color := TierFor(c.Score)
		blocks = append(blocks, CitationBlock{
			DocumentID:         c.DocumentID,
			ChunkID:            c.ChunkID,
			SourceName:         c.SourceName,
			Excerpt:            c.Excerpt,
			ConfidenceScore:    c.Score,
			ConfidenceLevel:    level,
			ConfidenceColor:    color,
			RetrievalTimestamp: retrievedAt,
			QueryHash:          queryHash,
			ResponseHash:       responseHash,
			DocumentURL:        c.DocumentURL,
		})
	}
	return blocks
}
