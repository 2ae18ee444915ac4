package vector

import (
	"context"
	"fmt"
	"strings"

	"lexrag/internal/models"

	"github.com/jackc/pgx/v5"
)

// anchorQuery stands in for an empty question. Summarization flows pass no
// question but the similarity search still needs a non-empty query vector.
const anchorQuery = "document"

// QueryText returns the text to embed for a retrieval request.
func QueryText(question string) string {
	if strings.TrimSpace(question) == "" {
		return anchorQuery
	}
	return question
}

type Searcher struct {
	q Queryer
}

type Queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func NewSearcher(q Queryer) *Searcher {
	return &Searcher{q: q}
}

// SearchChunks returns the topK chunks of one document nearest to queryVec,
// ordered by descending cosine similarity with chunk position as a
// deterministic tie-break. Degraded entries (zero-vector sentinels) are
// excluded. An empty result with a nil error means the document has no
// indexed chunks; transport failures surface as errors.
func (s *Searcher) SearchChunks(ctx context.Context, docHash string, queryVec []float32, topK int) ([]models.EvidenceChunk, error) {
	if topK <= 0 {
		topK = 5
	}
	rows, err := s.q.Query(ctx, `
SELECT chunk_id, doc_hash, page, chunk_index, text,
       1 - (embedding <=> $2::vector) AS score
FROM chunks
WHERE doc_hash = $1
  AND degraded = FALSE
  AND embedding IS NOT NULL
ORDER BY embedding <=> $2::vector ASC, page ASC, chunk_index ASC
LIMIT $3`, docHash, ToLiteral(queryVec), topK)
	if err != nil {
		return nil, fmt.Errorf("query vector search: %w", err)
	}
	defer rows.Close()

	results := make([]models.EvidenceChunk, 0, topK)
	for rows.Next() {
		var c models.EvidenceChunk
		if err := rows.Scan(&c.ChunkID, &c.DocHash, &c.Page, &c.ChunkIndex, &c.Text, &c.Score); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		results = append(results, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return results, nil
}

func ToLiteral(v []float32) string {
	parts := make([]string, 0, len(v))
	for _, x := range v {
		parts = append(parts, fmt.Sprintf("%f", x))
	}
	return "[" + strings.Join(parts, ",") + "]"
}
