package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.MarkProcessingActivity)
	w.RegisterActivity(a.MarkFailedActivity)
	w.RegisterActivity(a.MarkCompletedActivity)
	w.RegisterActivity(a.ExtractPagesActivity)
	w.RegisterActivity(a.ChunkPagesActivity)
	w.RegisterActivity(a.EmbedChunksActivity)
	w.RegisterActivity(a.UpsertChunksActivity)
}
