package models

import "time"

const (
	StatusRegistered = "registered"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

type Document struct {
	DocHash       string    `json:"doc_hash"`
	Filename      string    `json:"filename"`
	OwnerID       string    `json:"owner_id,omitempty"`
	SizeBytes     int64     `json:"size_bytes"`
	PageCount     int       `json:"page_count"`
	ChunkCount    int       `json:"chunk_count"`
	DegradedCount int       `json:"degraded_count"`
	Status        string    `json:"status"`
	FailReason    string    `json:"fail_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type EvidenceChunk struct {
	ChunkID    string  `json:"chunk_id"`
	DocHash    string  `json:"doc_hash"`
	Page       int     `json:"page"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

type QARecord struct {
	ID         string    `json:"id"`
	DocHash    string    `json:"doc_hash"`
	OwnerID    string    `json:"owner_id,omitempty"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}
