package workflows

import (
	"context"
	"errors"
	"testing"

	"lexrag/internal/activities"
	"lexrag/internal/pdfx"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"
)

func registerActivityName[T any](env *testsuite.TestWorkflowEnvironment, name string, fn T) {
	env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

func newIngestEnv(t *testing.T) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DocumentIngestWorkflow)
	registerActivityName(env, "MarkProcessingActivity", func(context.Context, activities.MarkProcessingInput) error { return nil })
	registerActivityName(env, "MarkFailedActivity", func(context.Context, activities.MarkFailedInput) error { return nil })
	registerActivityName(env, "MarkCompletedActivity", func(context.Context, activities.MarkCompletedInput) error { return nil })
	registerActivityName(env, "ExtractPagesActivity", func(context.Context, activities.ExtractPagesInput) (activities.ExtractPagesOutput, error) {
		return activities.ExtractPagesOutput{}, nil
	})
	registerActivityName(env, "ChunkPagesActivity", func(context.Context, activities.ChunkPagesInput) (activities.ChunkPagesOutput, error) {
		return activities.ChunkPagesOutput{}, nil
	})
	registerActivityName(env, "EmbedChunksActivity", func(context.Context, activities.EmbedChunksInput) (activities.EmbedChunksOutput, error) {
		return activities.EmbedChunksOutput{}, nil
	})
	registerActivityName(env, "UpsertChunksActivity", func(context.Context, activities.UpsertChunksInput) error { return nil })
	return env
}

func TestDocumentIngestWorkflowSuccess(t *testing.T) {
	env := newIngestEnv(t)

	chunks := []activities.ChunkItem{
		{ChunkID: "h::p1::c0", DocHash: "h", Page: 1, ChunkIndex: 0, Text: "first clause"},
		{ChunkID: "h::p1::c1", DocHash: "h", Page: 1, ChunkIndex: 1, Text: "second clause"},
	}
	env.OnActivity("MarkProcessingActivity", mock.Anything, activities.MarkProcessingInput{DocHash: "h"}).Return(nil)
	env.OnActivity("ExtractPagesActivity", mock.Anything, mock.Anything).Return(activities.ExtractPagesOutput{
		Pages: []pdfx.Page{{Number: 1, Text: "first clause second clause"}},
	}, nil)
	env.OnActivity("ChunkPagesActivity", mock.Anything, mock.Anything).Return(activities.ChunkPagesOutput{Chunks: chunks}, nil)
	env.OnActivity("EmbedChunksActivity", mock.Anything, mock.Anything).Return(activities.EmbedChunksOutput{
		Vectors:       [][]float32{{0.1, 0.2}, {0.3, 0.4}},
		Degraded:      []bool{false, true},
		DegradedCount: 1,
		ProviderName:  "mock",
		Model:         "mock-embed",
	}, nil)
	env.OnActivity("UpsertChunksActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("MarkCompletedActivity", mock.Anything, activities.MarkCompletedInput{DocHash: "h", ChunkCount: 2, DegradedCount: 1}).Return(nil)

	env.ExecuteWorkflow(DocumentIngestWorkflow, DocumentIngestInput{DocHash: "h", Path: "/tmp/h.pdf"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "completed", out)

	v, err := env.QueryWorkflow(QueryGetIngestStatus)
	require.NoError(t, err)
	var status IngestStatus
	require.NoError(t, v.Get(&status))
	require.Equal(t, "completed", status.Status)
	require.Equal(t, 2, status.ChunkCount)
	require.Equal(t, 1, status.DegradedCount)
}

func TestDocumentIngestWorkflowExtractionFailsGracefully(t *testing.T) {
	env := newIngestEnv(t)

	env.OnActivity("MarkProcessingActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("ExtractPagesActivity", mock.Anything, mock.Anything).Return(activities.ExtractPagesOutput{}, errors.New("no extractable text found in PDF"))
	env.OnActivity("MarkFailedActivity", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(DocumentIngestWorkflow, DocumentIngestInput{DocHash: "h", Path: "/tmp/h.pdf"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "failed", out)
	env.AssertCalled(t, "MarkFailedActivity", mock.Anything, activities.MarkFailedInput{
		DocHash: "h",
		Reason:  "no extractable text found (scanned PDF without OCR?)",
	})
}

func TestDocumentIngestWorkflowZeroChunksFails(t *testing.T) {
	env := newIngestEnv(t)

	env.OnActivity("MarkProcessingActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("ExtractPagesActivity", mock.Anything, mock.Anything).Return(activities.ExtractPagesOutput{
		Pages: []pdfx.Page{{Number: 1, Text: "tiny"}},
	}, nil)
	env.OnActivity("ChunkPagesActivity", mock.Anything, mock.Anything).Return(activities.ChunkPagesOutput{}, nil)
	env.OnActivity("MarkFailedActivity", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(DocumentIngestWorkflow, DocumentIngestInput{DocHash: "h", Path: "/tmp/h.pdf"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "failed", out)
}

func TestDocumentIngestWorkflowUpsertFailureFails(t *testing.T) {
	env := newIngestEnv(t)

	env.OnActivity("MarkProcessingActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("ExtractPagesActivity", mock.Anything, mock.Anything).Return(activities.ExtractPagesOutput{
		Pages: []pdfx.Page{{Number: 1, Text: "a body of text"}},
	}, nil)
	env.OnActivity("ChunkPagesActivity", mock.Anything, mock.Anything).Return(activities.ChunkPagesOutput{
		Chunks: []activities.ChunkItem{{ChunkID: "h::p1::c0", DocHash: "h", Page: 1, Text: "a body of text"}},
	}, nil)
	env.OnActivity("EmbedChunksActivity", mock.Anything, mock.Anything).Return(activities.EmbedChunksOutput{
		Vectors:  [][]float32{{0.1}},
		Degraded: []bool{false},
	}, nil)
	env.OnActivity("UpsertChunksActivity", mock.Anything, mock.Anything).Return(errors.New("index write rejected"))
	env.OnActivity("MarkFailedActivity", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(DocumentIngestWorkflow, DocumentIngestInput{DocHash: "h", Path: "/tmp/h.pdf"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "failed", out)
}
