package columnar

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"shardindex/internal/filter"
)

func writeShardFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write shard file: %v", err)
	}
	return name
}

func TestJSONLReaderValuesByType(t *testing.T) {
	dir := t.TempDir()
	content := `{"status":"active","count":3,"seen_at":"2026-01-02T03:04:05Z"}
{"status":"inactive","count":7,"seen_at":"2026-02-02T03:04:05Z"}
{"status":null,"count":1,"seen_at":"2026-03-02T03:04:05Z"}
`
	name := writeShardFile(t, dir, "shard0.jsonl", content)

	schema := map[string]filter.DType{
		"status":  filter.DTypeString,
		"count":   filter.DTypeInt,
		"seen_at": filter.DTypeTimestamp,
	}
	reader := NewJSONLReader(schema, NewLocalBlobStore(dir))

	frame, err := reader.Open(context.Background(), name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer frame.Close()

	if frame.ShardID() != "shard0" {
		t.Fatalf("expected shard id shard0, got %q", frame.ShardID())
	}

	statusValues, err := frame.Values(context.Background(), "status")
	if err != nil {
		t.Fatalf("Values(status): %v", err)
	}
	if len(statusValues) != 2 {
		t.Fatalf("expected null status row to be skipped, got %v", statusValues)
	}

	countValues, err := frame.Values(context.Background(), "count")
	if err != nil {
		t.Fatalf("Values(count): %v", err)
	}
	sort.Strings(countValues)
	if len(countValues) != 3 {
		t.Fatalf("expected 3 count values, got %v", countValues)
	}

	tsValues, err := frame.Values(context.Background(), "seen_at")
	if err != nil {
		t.Fatalf("Values(seen_at): %v", err)
	}
	if len(tsValues) != 3 {
		t.Fatalf("expected 3 timestamp values, got %v", tsValues)
	}
}

func TestJSONLReaderColumns(t *testing.T) {
	dir := t.TempDir()
	name := writeShardFile(t, dir, "shard1.jsonl", `{"a":"1","b":"2"}`+"\n")

	schema := map[string]filter.DType{"a": filter.DTypeString, "b": filter.DTypeString}
	reader := NewJSONLReader(schema, NewLocalBlobStore(dir))

	frame, err := reader.Open(context.Background(), name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer frame.Close()

	cols := frame.Columns()
	if len(cols) != 2 || cols[0].Name != "a" || cols[1].Name != "b" {
		t.Fatalf("unexpected columns: %+v", cols)
	}
}

func TestJSONLReaderUnknownColumn(t *testing.T) {
	dir := t.TempDir()
	name := writeShardFile(t, dir, "shard2.jsonl", `{"a":"1"}`+"\n")

	reader := NewJSONLReader(map[string]filter.DType{"a": filter.DTypeString}, NewLocalBlobStore(dir))
	frame, err := reader.Open(context.Background(), name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer frame.Close()

	if _, err := frame.Values(context.Background(), "nope"); err == nil {
		t.Fatalf("expected error for unknown column")
	}
}
