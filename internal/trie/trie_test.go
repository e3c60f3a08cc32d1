package trie

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"shardindex/internal/filter"
)

func fakeLoader(calls *int64) Loader {
	return func(path string) (filter.Filter, error) {
		atomic.AddInt64(calls, 1)
		f := filter.NewBloomFilter(10, 0.1)
		f.Add(path)
		return f, nil
	}
}

func TestInsertAndExactSearch(t *testing.T) {
	var calls int64
	idx := New(fakeLoader(&calls), nil)

	if err := idx.Insert([]string{"src", "shard0", "colA.filter"}, "colA.filter"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := idx.Insert([]string{"src", "shard1", "colA.filter"}, "colA.filter#1"); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	matches, err := idx.Search(context.Background(), []string{"src", "shard0", "colA.filter"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
}

func TestSearchGlobMatchesWithinSegmentOnly(t *testing.T) {
	var calls int64
	idx := New(fakeLoader(&calls), nil)

	idx.Insert([]string{"src", "shard0", "colA.filter"}, "a")
	idx.Insert([]string{"src", "shard1", "colB.filter"}, "b")
	idx.Insert([]string{"src", "shard2", "colA.filter"}, "c")

	matches, err := idx.Search(context.Background(), []string{"src", "*", "colA.filter"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches for wildcard shard segment, got %d", len(matches))
	}

	// A glob must never cross a path separator: "*" in one segment cannot
	// match two literal segments joined together.
	matches, err = idx.Search(context.Background(), []string{"*"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("single wildcard segment must not match a deeper path, got %d matches", len(matches))
	}
}

func TestSearchDeterministicOrdering(t *testing.T) {
	var calls int64
	idx := New(fakeLoader(&calls), nil)

	for i := 9; i >= 0; i-- {
		idx.Insert([]string{"src", fmt.Sprintf("shard%d", i), "col.filter"}, fmt.Sprintf("art-%d", i))
	}

	first, err := idx.Search(context.Background(), []string{"src", "*", "col.filter"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	second, err := idx.Search(context.Background(), []string{"src", "*", "col.filter"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if len(first) != 10 || len(second) != 10 {
		t.Fatalf("expected 10 matches both times")
	}
	for i := range first {
		if first[i].Path[1] != second[i].Path[1] {
			t.Fatalf("search ordering not stable across calls at index %d", i)
		}
	}
	for i := 1; i < len(first); i++ {
		if pathLess(first[i].Path, first[i-1].Path) {
			t.Fatalf("matches not sorted: %v before %v", first[i-1].Path, first[i].Path)
		}
	}
}

func TestArtifactLoadedLazilyAndOnce(t *testing.T) {
	var calls int64
	idx := New(fakeLoader(&calls), nil)
	idx.Insert([]string{"src", "shard0", "col.filter"}, "loc")

	if atomic.LoadInt64(&calls) != 0 {
		t.Fatalf("loader must not run before any search reaches the node")
	}

	for i := 0; i < 5; i++ {
		if _, err := idx.Search(context.Background(), []string{"src", "shard0", "col.filter"}); err != nil {
			t.Fatalf("Search: %v", err)
		}
	}

	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Fatalf("expected exactly one load, got %d", got)
	}
}

func TestSize(t *testing.T) {
	var calls int64
	idx := New(fakeLoader(&calls), nil)
	idx.Insert([]string{"a", "b", "c"}, "x")
	idx.Insert([]string{"a", "b", "d"}, "y")
	idx.Insert([]string{"a", "b", "c"}, "x-updated")

	if got := idx.Size(); got != 2 {
		t.Fatalf("expected size 2 (re-insert of same path must not double-count), got %d", got)
	}
}
