package embed

import (
	"context"
	"errors"
	"testing"
	"time"

	"lexrag/internal/providers"
)

type scriptedProvider struct {
	calls    int
	failCall int
	dim      int
}

func (p *scriptedProvider) Embed(_ context.Context, req providers.EmbedRequest) ([][]float32, providers.ProviderInfo, error) {
	p.calls++
	info := providers.ProviderInfo{Name: "scripted", Model: "scripted-v1"}
	if p.calls == p.failCall {
		return nil, info, errors.New("upstream 500")
	}
	out := make([][]float32, 0, len(req.Inputs))
	for range req.Inputs {
		v := make([]float32, p.dim)
		v[0] = 1
		out = append(out, v)
	}
	return out, info, nil
}

func TestEmbedAllFailedBatchDegradesToZeroVectors(t *testing.T) {
	p := &scriptedProvider{failCall: 2, dim: 4}
	b := NewBatcher(p, 4, 5, time.Second)

	texts := make([]string, 10)
	for i := range texts {
		texts[i] = "clause"
	}
	res := b.EmbedAll(context.Background(), "test", texts)

	if len(res.Vectors) != 10 || len(res.Degraded) != 10 {
		t.Fatalf("output shape must match input: %d vectors, %d flags", len(res.Vectors), len(res.Degraded))
	}
	if res.DegradedCount != 5 {
		t.Fatalf("expected 5 degraded entries, got %d", res.DegradedCount)
	}
	for i := 0; i < 5; i++ {
		if res.Degraded[i] {
			t.Fatalf("entry %d from the healthy batch should not be degraded", i)
		}
	}
	for i := 5; i < 10; i++ {
		if !res.Degraded[i] {
			t.Fatalf("entry %d from the failed batch should be degraded", i)
		}
		for j, x := range res.Vectors[i] {
			if x != 0 {
				t.Fatalf("degraded vector %d has non-zero component at %d", i, j)
			}
		}
	}
}

func TestEmbedAllWrongDimensionDegrades(t *testing.T) {
	p := &scriptedProvider{dim: 3}
	b := NewBatcher(p, 4, 5, time.Second)

	res := b.EmbedAll(context.Background(), "test", []string{"a", "b"})
	if len(res.Vectors) != 2 || res.DegradedCount != 2 {
		t.Fatalf("wrong-dimension vectors must degrade: %+v", res)
	}
	for _, v := range res.Vectors {
		if len(v) != 4 {
			t.Fatalf("degraded slot must hold a zero vector of the configured dimension, got %d", len(v))
		}
	}
}

func TestEmbedOnePropagatesFailure(t *testing.T) {
	p := &scriptedProvider{failCall: 1, dim: 4}
	b := NewBatcher(p, 4, 5, time.Second)

	if _, _, err := b.EmbedOne(context.Background(), "query", "question"); err == nil {
		t.Fatalf("query embedding failure must surface to the caller")
	}
}
