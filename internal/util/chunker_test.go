package util

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestChunkTextDeterministic(t *testing.T) {
	text := strings.Repeat("The lessee shall pay rent on the first business day of each month.\n\n", 40)
	a := ChunkText(text, 800, 100)
	b := ChunkText(text, 800, 100)
	if len(a) == 0 {
		t.Fatalf("expected chunks, got none")
	}
	if len(a) != len(b) {
		t.Fatalf("chunk counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("chunk %d differs between runs", i)
		}
	}
	for i, c := range a {
		if n := utf8.RuneCountInString(c); n > 800 {
			t.Fatalf("chunk %d has %d runes, exceeds 800", i, n)
		}
	}
}

func TestChunkTextShortPageDropped(t *testing.T) {
	if got := ChunkText("Page 3 of 12", 800, 100); got != nil {
		t.Fatalf("expected nil for short page, got %v", got)
	}
}

func TestChunkTextPrefersParagraphBreaks(t *testing.T) {
	para1 := strings.Repeat("a", 500)
	para2 := strings.Repeat("b", 500)
	chunks := ChunkText(para1+"\n\n"+para2, 800, 100)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0] != para1 {
		t.Fatalf("first chunk should be the first paragraph, got %d runes", utf8.RuneCountInString(chunks[0]))
	}
	if chunks[1] != para2 {
		t.Fatalf("second chunk should be the second paragraph, got %d runes", utf8.RuneCountInString(chunks[1]))
	}
}

func TestChunkTextOverlapCarriesTrailingWords(t *testing.T) {
	words := make([]string, 0, 200)
	for i := 0; i < 200; i++ {
		words = append(words, fmt.Sprintf("w%03d", i))
	}
	chunks := ChunkText(strings.Join(words, " "), 50, 15)
	if len(chunks) < 3 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	if !strings.HasPrefix(chunks[0], "w000") {
		t.Fatalf("unexpected first chunk: %q", chunks[0])
	}
	for i := 1; i < len(chunks); i++ {
		prevWords := strings.Fields(chunks[i-1])
		if len(prevWords) == 0 {
			t.Fatalf("chunk %d is empty", i-1)
		}
		last := prevWords[len(prevWords)-1]
		if !strings.Contains(chunks[i], last) {
			t.Fatalf("chunk %d does not carry trailing word %q of chunk %d", i, last, i-1)
		}
	}
}

func TestChunkTextHardCutWithoutSeparators(t *testing.T) {
	text := strings.Repeat("x", 1000)
	chunks := ChunkText(text, 100, 0)
	if len(chunks) != 10 {
		t.Fatalf("expected 10 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if utf8.RuneCountInString(c) != 100 {
			t.Fatalf("chunk %d has %d runes, want 100", i, utf8.RuneCountInString(c))
		}
	}
}

func TestChunkTextDropsTinyResiduals(t *testing.T) {
	// 60 runes of body then a fragment below the minimum chunk length.
	text := strings.Repeat("y", 60) + "\n\n" + "tail"
	chunks := ChunkText(text, 60, 0)
	for i, c := range chunks {
		if utf8.RuneCountInString(c) <= 20 {
			t.Fatalf("chunk %d is a residual fragment: %q", i, c)
		}
	}
}
