package pdfx

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestExtractPagesInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	if err := os.WriteFile(path, []byte("not a pdf at all"), 0o644); err != nil {
		t.Fatal(err)
	}

	pages, err := ExtractPages(path, "deadbeef", 0)
	if err == nil {
		t.Fatalf("expected error for invalid pdf")
	}
	if len(pages) != 0 {
		t.Fatalf("expected no pages, got %d", len(pages))
	}

	var extErr *ExtractionError
	if !errors.As(err, &extErr) {
		t.Fatalf("expected *ExtractionError, got %T", err)
	}
	if extErr.DocHash != "deadbeef" {
		t.Fatalf("error should carry the content hash, got %q", extErr.DocHash)
	}
	if extErr.Unwrap() == nil {
		t.Fatalf("expected wrapped cause")
	}
}

func TestExtractPagesMissingFile(t *testing.T) {
	_, err := ExtractPages(filepath.Join(t.TempDir(), "missing.pdf"), "cafef00d", 0)
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestPageCountInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := PageCount(path); err == nil {
		t.Fatalf("expected error for invalid pdf")
	}
}
