package embed

import (
	"context"
	"fmt"
	"log"
	"time"

	"lexrag/internal/providers"
)

// Batcher converts chunk text into fixed-dimension vectors in fixed-size
// batches. A failed batch never fails the whole call: its slots are filled
// with zero vectors and flagged degraded, so output length and order always
// match the input.
type Batcher struct {
	provider  providers.EmbeddingProvider
	dim       int
	batchSize int
	timeout   time.Duration
}

type Result struct {
	Vectors       [][]float32
	Degraded      []bool
	DegradedCount int
	Provider      providers.ProviderInfo
}

func NewBatcher(p providers.EmbeddingProvider, dim, batchSize int, timeout time.Duration) *Batcher {
	if dim <= 0 {
		dim = 384
	}
	if batchSize <= 0 {
		batchSize = 32
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Batcher{provider: p, dim: dim, batchSize: batchSize, timeout: timeout}
}

func (b *Batcher) Dimension() int { return b.dim }

// EmbedAll embeds texts batch by batch. Each batch carries its own timeout;
// a timeout is treated the same as any other batch failure.
func (b *Batcher) EmbedAll(ctx context.Context, operation string, texts []string) Result {
	res := Result{
		Vectors:  make([][]float32, 0, len(texts)),
		Degraded: make([]bool, 0, len(texts)),
	}
	for i := 0; i < len(texts); i += b.batchSize {
		end := i + b.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[i:end]

		bctx, cancel := context.WithTimeout(ctx, b.timeout)
		vectors, info, err := b.provider.Embed(bctx, providers.EmbedRequest{
			Operation: operation,
			Inputs:    batch,
			Dimension: b.dim,
		})
		cancel()
		if info.Name != "" {
			res.Provider = info
		}
		if err != nil || len(vectors) != len(batch) {
			if err != nil {
				log.Printf("embed batch %d-%d degraded to zero vectors: %v", i, end, err)
			} else {
				log.Printf("embed batch %d-%d degraded to zero vectors: got %d vectors for %d inputs", i, end, len(vectors), len(batch))
			}
			for range batch {
				res.Vectors = append(res.Vectors, make([]float32, b.dim))
				res.Degraded = append(res.Degraded, true)
				res.DegradedCount++
			}
			continue
		}
		for j, v := range vectors {
			if len(v) != b.dim {
				log.Printf("embed batch %d-%d: vector %d has dimension %d, want %d; degraded", i, end, i+j, len(v), b.dim)
				res.Vectors = append(res.Vectors, make([]float32, b.dim))
				res.Degraded = append(res.Degraded, true)
				res.DegradedCount++
				continue
			}
			res.Vectors = append(res.Vectors, v)
			res.Degraded = append(res.Degraded, false)
		}
	}
	return res
}

// EmbedOne embeds a single query text. Unlike EmbedAll, a failure here is
// returned to the caller because a query without a vector cannot proceed.
func (b *Batcher) EmbedOne(ctx context.Context, operation, text string) ([]float32, providers.ProviderInfo, error) {
	bctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	vectors, info, err := b.provider.Embed(bctx, providers.EmbedRequest{
		Operation: operation,
		Inputs:    []string{text},
		Dimension: b.dim,
	})
	if err != nil {
		return nil, info, err
	}
	if len(vectors) == 0 {
		return nil, info, fmt.Errorf("embedding provider returned empty vectors")
	}
	return vectors[0], info, nil
}
