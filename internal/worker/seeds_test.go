package worker

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadSeedsFromFile(t *testing.T) {
	content := `# seeds
https://example.com/news

ion https://ion.example.com/deals
https://example.com/news
ion https://ion.example.com/deals
`
	path := filepath.Join(t.TempDir(), "seeds.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	seeds, err := ReadSeedsFromFile(path)
	if err != nil {
		t.Fatalf("ReadSeedsFromFile: %v", err)
	}
	if len(seeds) != 2 {
		t.Fatalf("expected 2 unique seeds, got %d: %v", len(seeds), seeds)
	}
	if seeds[0].SourceID != "" || seeds[1].SourceID != "ion" {
		t.Errorf("unexpected source ids: %+v", seeds)
	}
}

func TestReadSeedsFromFile_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seeds.txt")
	if err := os.WriteFile(path, []byte("a b c\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadSeedsFromFile(path); err == nil {
		t.Error("expected error for three-field line")
	}
}

func TestReadSeedsFromFile_Missing(t *testing.T) {
	if _, err := ReadSeedsFromFile(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}
