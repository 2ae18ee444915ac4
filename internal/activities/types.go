package activities

import "lexrag/internal/pdfx"

type MarkProcessingInput struct {
	DocHash string `json:"doc_hash"`
}

type MarkFailedInput struct {
	DocHash string `json:"doc_hash"`
	Reason  string `json:"reason"`
}

type MarkCompletedInput struct {
	DocHash       string `json:"doc_hash"`
	ChunkCount    int    `json:"chunk_count"`
	DegradedCount int    `json:"degraded_count"`
}

type ExtractPagesInput struct {
	DocHash  string `json:"doc_hash"`
	Path     string `json:"path"`
	MaxPages int    `json:"max_pages"`
}

type ExtractPagesOutput struct {
	Pages []pdfx.Page `json:"pages"`
}

type ChunkPagesInput struct {
	DocHash      string      `json:"doc_hash"`
	Pages        []pdfx.Page `json:"pages"`
	ChunkSize    int         `json:"chunk_size"`
	ChunkOverlap int         `json:"chunk_overlap"`
}

type ChunkItem struct {
	ChunkID    string `json:"chunk_id"`
	DocHash    string `json:"doc_hash"`
	Page       int    `json:"page"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
}

type ChunkPagesOutput struct {
	Chunks []ChunkItem `json:"chunks"`
}

type EmbedChunksInput struct {
	Operation     string      `json:"operation"`
	DocHash       string      `json:"doc_hash"`
	ProviderIndex int         `json:"provider_index"`
	Chunks        []ChunkItem `json:"chunks"`
}

type EmbedChunksOutput struct {
	Vectors       [][]float32 `json:"vectors"`
	Degraded      []bool      `json:"degraded"`
	DegradedCount int         `json:"degraded_count"`
	ProviderName  string      `json:"provider_name"`
	Model         string      `json:"model"`
}

type UpsertChunksInput struct {
	Chunks   []ChunkItem `json:"chunks"`
	Vectors  [][]float32 `json:"vectors"`
	Degraded []bool      `json:"degraded"`
}
