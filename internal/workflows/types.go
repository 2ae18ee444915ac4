package workflows

type DocumentIngestInput struct {
	DocHash      string `json:"doc_hash"`
	Path         string `json:"path"`
	Filename     string `json:"filename"`
	ChunkSize    int    `json:"chunk_size"`
	ChunkOverlap int    `json:"chunk_overlap"`
	MaxPages     int    `json:"max_pages"`
}

type IngestStatus struct {
	DocHash       string            `json:"doc_hash"`
	CurrentStep   string            `json:"current_step"`
	Status        string            `json:"status"`
	FailReason    string            `json:"fail_reason,omitempty"`
	PageCount     int               `json:"page_count"`
	ChunkCount    int               `json:"chunk_count"`
	DegradedCount int               `json:"degraded_count"`
	Steps         map[string]string `json:"steps"`
}
