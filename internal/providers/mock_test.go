package providers

import (
	"context"
	"math"
	"testing"
)

func TestMockEmbedDeterministic(t *testing.T) {
	m := NewMockProvider(384)
	req := EmbedRequest{Operation: "test", Inputs: []string{"the governing law clause", "termination"}, Dimension: 384}

	a, _, err := m.Embed(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	b, _, err := m.Embed(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 2 || len(b) != 2 {
		t.Fatalf("expected one vector per input")
	}
	for i := range a {
		if len(a[i]) != 384 {
			t.Fatalf("vector %d has dimension %d", i, len(a[i]))
		}
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				t.Fatalf("vector %d differs between runs at %d", i, j)
			}
		}
	}
}

func TestMockEmbedVectorsAreUnitNorm(t *testing.T) {
	m := NewMockProvider(64)
	vecs, _, err := m.Embed(context.Background(), EmbedRequest{Inputs: []string{"indemnification clause"}, Dimension: 64})
	if err != nil {
		t.Fatal(err)
	}
	var sum float64
	for _, x := range vecs[0] {
		sum += float64(x) * float64(x)
	}
	if math.Abs(math.Sqrt(sum)-1.0) > 1e-3 {
		t.Fatalf("expected unit-norm vector, got norm %f", math.Sqrt(sum))
	}
}
