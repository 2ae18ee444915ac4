package workflows

import (
	"strings"
	"time"

	"lexrag/internal/activities"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const QueryGetIngestStatus = "GetIngestStatus"

// DocumentIngestWorkflow runs the heavy extract -> chunk -> embed -> upsert
// sequence for one registered document. Registration already holds the dedup
// lock (the documents row), so at most one of these runs per content hash.
// The workflow result is the terminal document status, "completed" or
// "failed"; expected failures resolve the document rather than the workflow.
func DocumentIngestWorkflow(ctx workflow.Context, input DocumentIngestInput) (string, error) {
	status := IngestStatus{
		DocHash:     input.DocHash,
		CurrentStep: "init",
		Status:      "processing",
		Steps:       map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetIngestStatus, func() (IngestStatus, error) {
		return status, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    2,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	fail := func(reason string) (string, error) {
		status.Status = "failed"
		status.FailReason = reason
		status.Steps[status.CurrentStep] = "failed"
		_ = workflow.ExecuteActivity(ctx, "MarkFailedActivity", activities.MarkFailedInput{
			DocHash: input.DocHash,
			Reason:  reason,
		}).Get(ctx, nil)
		return status.Status, nil
	}

	status.CurrentStep = "mark_processing"
	status.Steps[status.CurrentStep] = "processing"
	if err := workflow.ExecuteActivity(ctx, "MarkProcessingActivity", activities.MarkProcessingInput{DocHash: input.DocHash}).Get(ctx, nil); err != nil {
		return "", err
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "extract_pages"
	status.Steps[status.CurrentStep] = "processing"
	var extractOut activities.ExtractPagesOutput
	if err := workflow.ExecuteActivity(ctx, "ExtractPagesActivity", activities.ExtractPagesInput{
		DocHash:  input.DocHash,
		Path:     input.Path,
		MaxPages: input.MaxPages,
	}).Get(ctx, &extractOut); err != nil {
		return fail(extractionFailReason(err))
	}
	status.PageCount = len(extractOut.Pages)
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "chunk_pages"
	status.Steps[status.CurrentStep] = "processing"
	var chunkOut activities.ChunkPagesOutput
	if err := workflow.ExecuteActivity(ctx, "ChunkPagesActivity", activities.ChunkPagesInput{
		DocHash:      input.DocHash,
		Pages:        extractOut.Pages,
		ChunkSize:    input.ChunkSize,
		ChunkOverlap: input.ChunkOverlap,
	}).Get(ctx, &chunkOut); err != nil {
		return fail("chunking failed: " + err.Error())
	}
	if len(chunkOut.Chunks) == 0 {
		return fail("no chunks produced from extracted text")
	}
	status.ChunkCount = len(chunkOut.Chunks)
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "embed_chunks"
	status.Steps[status.CurrentStep] = "processing"
	var embedOut activities.EmbedChunksOutput
	if err := workflow.ExecuteActivity(ctx, "EmbedChunksActivity", activities.EmbedChunksInput{
		Operation: "ingest_embed",
		DocHash:   input.DocHash,
		Chunks:    chunkOut.Chunks,
	}).Get(ctx, &embedOut); err != nil {
		return fail("embedding failed: " + err.Error())
	}
	status.DegradedCount = embedOut.DegradedCount
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "upsert_chunks"
	status.Steps[status.CurrentStep] = "processing"
	if err := workflow.ExecuteActivity(ctx, "UpsertChunksActivity", activities.UpsertChunksInput{
		Chunks:   chunkOut.Chunks,
		Vectors:  embedOut.Vectors,
		Degraded: embedOut.Degraded,
	}).Get(ctx, nil); err != nil {
		return fail("vector index write failed: " + err.Error())
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "mark_completed"
	status.Steps[status.CurrentStep] = "processing"
	if err := workflow.ExecuteActivity(ctx, "MarkCompletedActivity", activities.MarkCompletedInput{
		DocHash:       input.DocHash,
		ChunkCount:    len(chunkOut.Chunks),
		DegradedCount: embedOut.DegradedCount,
	}).Get(ctx, nil); err != nil {
		return "", err
	}
	status.Steps[status.CurrentStep] = "done"
	status.CurrentStep = "done"
	status.Status = "completed"
	return status.Status, nil
}

func extractionFailReason(err error) string {
	e := err.Error()
	if strings.Contains(strings.ToLower(e), "no extractable text") {
		return "no extractable text found (scanned PDF without OCR?)"
	}
	return "extraction failed: " + e
}
