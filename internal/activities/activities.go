package activities

import (
	"context"
	"fmt"
	"log"
	"time"

	"lexrag/internal/config"
	"lexrag/internal/embed"
	"lexrag/internal/pdfx"
	"lexrag/internal/providers"
	"lexrag/internal/storage"
	"lexrag/internal/util"
	"lexrag/internal/vector"
)

type Activities struct {
	cfg       config.Config
	docRepo   *storage.DocumentRepo
	chunkRepo *storage.ChunkRepo
	providers *providers.Manager
}

func New(cfg config.Config, db *storage.DB) (*Activities, error) {
	pm, err := providers.NewManager(cfg)
	if err != nil {
		return nil, err
	}
	log.Printf("providers ready: %d llm, %d embed", pm.LLMCount(), pm.EmbedCount())
	return &Activities{
		cfg:       cfg,
		docRepo:   storage.NewDocumentRepo(db),
		chunkRepo: storage.NewChunkRepo(db, cfg.WriteBatchSize, time.Duration(cfg.WriteTimeoutSecs)*time.Second),
		providers: pm,
	}, nil
}

func (a *Activities) MarkProcessingActivity(ctx context.Context, in MarkProcessingInput) error {
	return a.docRepo.MarkProcessing(ctx, in.DocHash)
}

func (a *Activities) MarkFailedActivity(ctx context.Context, in MarkFailedInput) error {
	return a.docRepo.MarkFailed(ctx, in.DocHash, in.Reason)
}

func (a *Activities) MarkCompletedActivity(ctx context.Context, in MarkCompletedInput) error {
	return a.docRepo.MarkCompleted(ctx, in.DocHash, in.ChunkCount, in.DegradedCount)
}

func (a *Activities) ExtractPagesActivity(ctx context.Context, in ExtractPagesInput) (ExtractPagesOutput, error) {
	_ = ctx
	maxPages := in.MaxPages
	if maxPages <= 0 {
		maxPages = a.cfg.MaxPages
	}
	pages, err := pdfx.ExtractPages(in.Path, in.DocHash, maxPages)
	if err != nil {
		return ExtractPagesOutput{}, err
	}
	empty := true
	for _, p := range pages {
		if p.Text != "" {
			empty = false
			break
		}
	}
	if empty {
		return ExtractPagesOutput{}, util.ErrNoExtractableText
	}
	return ExtractPagesOutput{Pages: pages}, nil
}

func (a *Activities) ChunkPagesActivity(ctx context.Context, in ChunkPagesInput) (ChunkPagesOutput, error) {
	_ = ctx
	chunkSize := in.ChunkSize
	if chunkSize <= 0 {
		chunkSize = a.cfg.ChunkSize
	}
	overlap := in.ChunkOverlap
	if overlap < 0 || overlap >= chunkSize {
		overlap = a.cfg.ChunkOverlap
	}
	return ChunkPagesOutput{Chunks: BuildChunks(in.DocHash, in.Pages, chunkSize, overlap)}, nil
}

// BuildChunks splits each page and assigns the stable chunk identity
// {hash}::p{page}::c{index}. Identical bytes always produce identical IDs,
// which is what makes the index upserts idempotent.
func BuildChunks(docHash string, pages []pdfx.Page, chunkSize, overlap int) []ChunkItem {
	chunks := make([]ChunkItem, 0, len(pages)*4)
	for _, page := range pages {
		parts := util.ChunkText(page.Text, chunkSize, overlap)
		for idx, part := range parts {
			chunks = append(chunks, ChunkItem{
				ChunkID:    fmt.Sprintf("%s::p%d::c%d", docHash, page.Number, idx),
				DocHash:    docHash,
				Page:       page.Number,
				ChunkIndex: idx,
				Text:       part,
			})
		}
	}
	return chunks
}

func (a *Activities) EmbedChunksActivity(ctx context.Context, in EmbedChunksInput) (EmbedChunksOutput, error) {
	provider, _ := a.providers.EmbedProviderByIndex(in.ProviderIndex)
	batcher := embed.NewBatcher(provider, a.cfg.EmbedDim, a.cfg.EmbedBatchSize, time.Duration(a.cfg.EmbedTimeoutSecs)*time.Second)

	texts := make([]string, 0, len(in.Chunks))
	for _, c := range in.Chunks {
		texts = append(texts, c.Text)
	}
	res := batcher.EmbedAll(ctx, in.Operation, texts)
	return EmbedChunksOutput{
		Vectors:       res.Vectors,
		Degraded:      res.Degraded,
		DegradedCount: res.DegradedCount,
		ProviderName:  res.Provider.Name,
		Model:         res.Provider.Model,
	}, nil
}

func (a *Activities) UpsertChunksActivity(ctx context.Context, in UpsertChunksInput) error {
	if len(in.Vectors) != len(in.Chunks) || len(in.Degraded) != len(in.Chunks) {
		return fmt.Errorf("chunk/vector length mismatch: %d chunks, %d vectors, %d flags",
			len(in.Chunks), len(in.Vectors), len(in.Degraded))
	}
	records := make([]storage.ChunkRecord, 0, len(in.Chunks))
	for i, c := range in.Chunks {
		records = append(records, storage.ChunkRecord{
			ChunkID:    c.ChunkID,
			DocHash:    c.DocHash,
			Page:       c.Page,
			ChunkIndex: c.ChunkIndex,
			Text:       util.SanitizeText(c.Text),
			Embedding:  vector.ToLiteral(in.Vectors[i]),
			Degraded:   in.Degraded[i],
		})
	}
	return a.chunkRepo.UpsertChunks(ctx, records)
}
