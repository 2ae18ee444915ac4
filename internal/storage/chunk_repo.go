package storage

import (
	"context"
	"fmt"
	"log"
	"time"
)

type ChunkRecord struct {
	ChunkID    string
	DocHash    string
	Page       int
	ChunkIndex int
	Text       string
	Embedding  string
	Degraded   bool
}

// ChunkRepo writes chunk entries into the vector index. Writes go out in
// sub-batches smaller than the embedding batch; the index tolerates small
// bursts better than one large insert.
type ChunkRepo struct {
	db             *DB
	writeBatchSize int
	writeTimeout   time.Duration
}

func NewChunkRepo(db *DB, writeBatchSize int, writeTimeout time.Duration) *ChunkRepo {
	if writeBatchSize <= 0 {
		writeBatchSize = 16
	}
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	return &ChunkRepo{db: db, writeBatchSize: writeBatchSize, writeTimeout: writeTimeout}
}

// UpsertChunks writes records in sub-batches. A failing sub-batch aborts the
// remaining ones; sub-batches committed before the failure stay in the index
// (upserts are keyed by chunk_id, so a retry converges rather than
// duplicating). After a full write the count is re-read as a soft
// verification only.
func (r *ChunkRepo) UpsertChunks(ctx context.Context, records []ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}
	for i := 0; i < len(records); i += r.writeBatchSize {
		end := i + r.writeBatchSize
		if end > len(records) {
			end = len(records)
		}
		if err := r.upsertBatch(ctx, records[i:end]); err != nil {
			return fmt.Errorf("upsert chunk batch %d-%d: %w", i, end, err)
		}
	}

	docHash := records[0].DocHash
	if n, err := r.CountByDocument(ctx, docHash); err != nil {
		log.Printf("could not verify chunk count for %s: %v", docHash, err)
	} else {
		log.Printf("document %s has %d chunks in index after write", docHash, n)
	}
	return nil
}

func (r *ChunkRepo) upsertBatch(ctx context.Context, batch []ChunkRecord) error {
	bctx, cancel := context.WithTimeout(ctx, r.writeTimeout)
	defer cancel()

	tx, err := r.db.Pool.Begin(bctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(bctx)
	}()

	for _, c := range batch {
		_, err := tx.Exec(bctx, `
INSERT INTO chunks (chunk_id, doc_hash, page, chunk_index, text, embedding, degraded)
VALUES ($1, $2, $3, $4, $5, $6::vector, $7)
ON CONFLICT (chunk_id)
DO UPDATE SET
  text = EXCLUDED.text,
  embedding = EXCLUDED.embedding,
  degraded = EXCLUDED.degraded`,
			c.ChunkID, c.DocHash, c.Page, c.ChunkIndex, c.Text, c.Embedding, c.Degraded,
		)
		if err != nil {
			return fmt.Errorf("upsert chunk %s: %w", c.ChunkID, err)
		}
	}
	if err := tx.Commit(bctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *ChunkRepo) CountByDocument(ctx context.Context, docHash string) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM chunks WHERE doc_hash=$1`, docHash).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

func (r *ChunkRepo) DeleteByDocument(ctx context.Context, docHash string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM chunks WHERE doc_hash=$1`, docHash)
	if err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}
