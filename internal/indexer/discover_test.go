package indexer

import (
	"os"
	"path/filepath"
	"testing"
)

type fakeInserter struct {
	inserted [][]string
}

func (f *fakeInserter) Insert(path []string, artifactLocation string) error {
	cp := append([]string(nil), path...)
	f.inserted = append(f.inserted, cp)
	return nil
}

func TestDiscoverWalksArtifactFiles(t *testing.T) {
	root := t.TempDir()
	mustMkdirAll(t, filepath.Join(root, "shard0"))
	mustMkdirAll(t, filepath.Join(root, "shard1"))
	mustWriteFile(t, filepath.Join(root, "shard0", "status.filter"), "x")
	mustWriteFile(t, filepath.Join(root, "shard0", "amount.filter"), "x")
	mustWriteFile(t, filepath.Join(root, "shard1", "status.filter"), "x")
	mustWriteFile(t, filepath.Join(root, "shard0", "ignored.txt"), "x")

	ins := &fakeInserter{}
	if err := Discover(root, "acme", ".filter", ins, nil); err != nil {
		t.Fatalf("Discover: %v", err)
	}

	if len(ins.inserted) != 3 {
		t.Fatalf("expected 3 artifacts discovered, got %d: %v", len(ins.inserted), ins.inserted)
	}
	for _, p := range ins.inserted {
		if p[0] != "acme" {
			t.Fatalf("expected source segment first, got %v", p)
		}
		if len(p) != 3 {
			t.Fatalf("expected 3 segments [source, shard, column_file], got %v", p)
		}
	}
}

func TestDiscoverMissingRootIsNotFatal(t *testing.T) {
	ins := &fakeInserter{}
	if err := Discover(filepath.Join(t.TempDir(), "does-not-exist"), "acme", ".filter", ins, nil); err != nil {
		t.Fatalf("expected missing root to be non-fatal, got %v", err)
	}
	if len(ins.inserted) != 0 {
		t.Fatalf("expected no insertions for missing root")
	}
}

func mustMkdirAll(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}
