package activities

import (
	"fmt"
	"strings"
	"testing"

	"lexrag/internal/pdfx"
)

func testPages(n int) []pdfx.Page {
	pages := make([]pdfx.Page, 0, n)
	body := strings.Repeat("Each party shall keep the terms of this agreement confidential.\n\n", 40)
	for i := 1; i <= n; i++ {
		pages = append(pages, pdfx.Page{Number: i, Text: body})
	}
	return pages
}

func TestBuildChunksPerPageIdentity(t *testing.T) {
	chunks := BuildChunks("abc123", testPages(3), 800, 100)
	if len(chunks) < 9 {
		t.Fatalf("expected at least 3 chunks per page, got %d total", len(chunks))
	}

	seen := map[string]bool{}
	perPage := map[int]int{}
	for _, c := range chunks {
		if seen[c.ChunkID] {
			t.Fatalf("duplicate chunk id %s", c.ChunkID)
		}
		seen[c.ChunkID] = true
		want := fmt.Sprintf("abc123::p%d::c%d", c.Page, c.ChunkIndex)
		if c.ChunkID != want {
			t.Fatalf("chunk id %s does not match position, want %s", c.ChunkID, want)
		}
		if c.ChunkIndex != perPage[c.Page] {
			t.Fatalf("chunk indexes must be sequential per page: page %d got %d want %d", c.Page, c.ChunkIndex, perPage[c.Page])
		}
		perPage[c.Page]++
	}
}

func TestBuildChunksStableAcrossRuns(t *testing.T) {
	a := BuildChunks("abc123", testPages(2), 800, 100)
	b := BuildChunks("abc123", testPages(2), 800, 100)
	if len(a) != len(b) {
		t.Fatalf("chunk counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("chunk %d differs between runs", i)
		}
	}
}

func TestBuildChunksSkipsEmptyPages(t *testing.T) {
	pages := []pdfx.Page{
		{Number: 1, Text: ""},
		{Number: 2, Text: strings.Repeat("The term of this lease is twelve months. ", 30)},
	}
	chunks := BuildChunks("abc123", pages, 800, 100)
	if len(chunks) == 0 {
		t.Fatalf("expected chunks from page 2")
	}
	for _, c := range chunks {
		if c.Page != 2 {
			t.Fatalf("empty page must produce no chunks, got one on page %d", c.Page)
		}
	}
}
