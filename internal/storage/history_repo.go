package storage

import (
	"context"
	"fmt"

	"lexrag/internal/models"
)

type HistoryRepo struct {
	db *DB
}

func NewHistoryRepo(db *DB) *HistoryRepo {
	return &HistoryRepo{db: db}
}

func (r *HistoryRepo) Insert(ctx context.Context, rec models.QARecord) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO qa_history (id, doc_hash, owner_id, question, answer, confidence)
VALUES ($1, $2, NULLIF($3,''), $4, $5, $6)`,
		rec.ID, rec.DocHash, rec.OwnerID, rec.Question, rec.Answer, rec.Confidence,
	)
	if err != nil {
		return fmt.Errorf("insert qa history: %w", err)
	}
	return nil
}

func (r *HistoryRepo) ListByDocument(ctx context.Context, docHash string, limit int) ([]models.QARecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Pool.Query(ctx, `
SELECT id, doc_hash, COALESCE(owner_id,''), question, answer, confidence, created_at
FROM qa_history
WHERE doc_hash=$1
ORDER BY created_at DESC
LIMIT $2`, docHash, limit)
	if err != nil {
		return nil, fmt.Errorf("list qa history: %w", err)
	}
	defer rows.Close()
	out := make([]models.QARecord, 0, limit)
	for rows.Next() {
		var rec models.QARecord
		if err := rows.Scan(&rec.ID, &rec.DocHash, &rec.OwnerID, &rec.Question, &rec.Answer, &rec.Confidence, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan qa history: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate qa history: %w", err)
	}
	return out, nil
}
