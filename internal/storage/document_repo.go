package storage

import (
	"context"
	"errors"
	"fmt"

	"lexrag/internal/models"

	"github.com/jackc/pgx/v5"
)

var ErrDocumentNotFound = errors.New("document not found")

type DocumentRepo struct {
	db *DB
}

func NewDocumentRepo(db *DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

// Register inserts the document keyed by its content hash. The insert is the
// dedup compare-and-set: exactly one caller per hash observes created=true,
// so at most one ingestion pipeline ever starts for a given byte content.
func (r *DocumentRepo) Register(ctx context.Context, d models.Document) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
INSERT INTO documents (doc_hash, filename, owner_id, size_bytes, page_count, status)
VALUES ($1, $2, NULLIF($3,''), $4, $5, $6)
ON CONFLICT (doc_hash) DO NOTHING`,
		d.DocHash, d.Filename, d.OwnerID, d.SizeBytes, d.PageCount, models.StatusRegistered,
	)
	if err != nil {
		return false, fmt.Errorf("register document: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *DocumentRepo) Get(ctx context.Context, docHash string) (models.Document, error) {
	var d models.Document
	err := r.db.Pool.QueryRow(ctx, `
SELECT doc_hash, filename, COALESCE(owner_id,''), size_bytes, page_count, chunk_count, degraded_count,
       status, COALESCE(fail_reason,''), created_at, updated_at
FROM documents
WHERE doc_hash=$1`, docHash).
		Scan(&d.DocHash, &d.Filename, &d.OwnerID, &d.SizeBytes, &d.PageCount, &d.ChunkCount, &d.DegradedCount,
			&d.Status, &d.FailReason, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Document{}, ErrDocumentNotFound
	}
	if err != nil {
		return models.Document{}, fmt.Errorf("get document: %w", err)
	}
	return d, nil
}

func (r *DocumentRepo) MarkProcessing(ctx context.Context, docHash string) error {
	return r.setStatus(ctx, docHash, models.StatusProcessing, "")
}

func (r *DocumentRepo) MarkFailed(ctx context.Context, docHash, reason string) error {
	return r.setStatus(ctx, docHash, models.StatusFailed, reason)
}

func (r *DocumentRepo) MarkCompleted(ctx context.Context, docHash string, chunkCount, degradedCount int) error {
	_, err := r.db.Pool.Exec(ctx, `
UPDATE documents
SET status=$2, chunk_count=$3, degraded_count=$4, fail_reason=NULL, updated_at=NOW()
WHERE doc_hash=$1`, docHash, models.StatusCompleted, chunkCount, degradedCount)
	if err != nil {
		return fmt.Errorf("mark document completed: %w", err)
	}
	return nil
}

// Retrigger flips a failed document back to registered so its pipeline can be
// started again. It refuses any other source state.
func (r *DocumentRepo) Retrigger(ctx context.Context, docHash string) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
UPDATE documents SET status=$2, fail_reason=NULL, updated_at=NOW()
WHERE doc_hash=$1 AND status=$3`, docHash, models.StatusRegistered, models.StatusFailed)
	if err != nil {
		return false, fmt.Errorf("retrigger document: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *DocumentRepo) SetPageCount(ctx context.Context, docHash string, pages int) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE documents SET page_count=$2, updated_at=NOW() WHERE doc_hash=$1`, docHash, pages)
	if err != nil {
		return fmt.Errorf("set page count: %w", err)
	}
	return nil
}

func (r *DocumentRepo) Delete(ctx context.Context, docHash string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM documents WHERE doc_hash=$1`, docHash)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func (r *DocumentRepo) setStatus(ctx context.Context, docHash, status, failReason string) error {
	_, err := r.db.Pool.Exec(ctx, `
UPDATE documents SET status=$2, fail_reason=NULLIF($3,''), updated_at=NOW()
WHERE doc_hash=$1`, docHash, status, failReason)
	if err != nil {
		return fmt.Errorf("set document status %s: %w", status, err)
	}
	return nil
}
