package query

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"shardindex/internal/trie"
)

// Searcher is the subset of *trie.Index the engine depends on.
type Searcher interface {
	Search(ctx context.Context, pattern []string) ([]trie.Match, error)
}

// Engine evaluates a query tree against a Searcher, producing the set of
// shard identifiers whose filters cannot rule the query out.
type Engine struct {
	index         Searcher
	artifactExt   string
}

// NewEngine constructs an Engine. artifactExt is the column-artifact file
// suffix used to build the glob pattern for a leaf's third path segment
// (e.g. ".filter").
func NewEngine(index Searcher, artifactExt string) *Engine {
	return &Engine{index: index, artifactExt: artifactExt}
}

// Request is a single evaluation: source names the top-level trie
// segment, files is a shard-id glob (e.g. "APAC_AUS_*"), query is the
// boolean tree to evaluate.
type Request struct {
	Source string
	Files  string
	Query  Node
}

// Eval returns the sorted, de-duplicated set of shard identifiers that
// cannot be ruled out by query, over the shards matched by files.
func (e *Engine) Eval(ctx context.Context, req Request) ([]string, error) {
	set, err := e.eval(ctx, req.Query, req.Source, req.Files)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (e *Engine) eval(ctx context.Context, node Node, source, files string) (map[string]struct{}, error) {
	switch n := node.(type) {
	case *Leaf:
		return e.evalLeaf(ctx, n, source, files)
	case *Internal:
		return e.evalInternal(ctx, n, source, files)
	default:
		return nil, fmt.Errorf("query: unknown node type %T", node)
	}
}

// evalLeaf builds the [source, files, column+ext] pattern, searches the
// trie, and tests each matched filter's membership. Case-folding applies
// only to the column segment, never to files or the artifact suffix.
func (e *Engine) evalLeaf(ctx context.Context, leaf *Leaf, source, files string) (map[string]struct{}, error) {
	columnSeg := strings.ToLower(leaf.Column) + "*" + e.artifactExt
	pattern := []string{source, files, columnSeg}

	matches, err := e.index.Search(ctx, pattern)
	if err != nil {
		return nil, fmt.Errorf("query: search %v: %w", pattern, err)
	}

	var (
		mu     sync.Mutex
		result = make(map[string]struct{})
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, m := range matches {
		m := m
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			if !m.Filter.Contains(leaf.Value) {
				return nil
			}
			shardID := shardIDOf(m.Path)
			mu.Lock()
			result[shardID] = struct{}{}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) evalInternal(ctx context.Context, in *Internal, source, files string) (map[string]struct{}, error) {
	if len(in.Rules) == 0 {
		return map[string]struct{}{}, nil
	}

	results := make([]map[string]struct{}, len(in.Rules))
	g, gctx := errgroup.WithContext(ctx)
	for i, child := range in.Rules {
		i, child := i, child
		g.Go(func() error {
			r, err := e.eval(gctx, child, source, files)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	switch in.Condition {
	case OpAnd:
		return intersect(results), nil
	case OpOr:
		return union(results), nil
	default:
		return nil, fmt.Errorf("query: unknown condition %q", in.Condition)
	}
}

// shardIDOf returns the shard id of a matched path: its second-to-last
// segment, the shard directory that holds the column artifact.
func shardIDOf(path []string) string {
	if len(path) < 2 {
		return strings.Join(path, "/")
	}
	return path[len(path)-2]
}

func intersect(sets []map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(sets[0]))
	for id := range sets[0] {
		out[id] = struct{}{}
	}
	for _, s := range sets[1:] {
		for id := range out {
			if _, ok := s[id]; !ok {
				delete(out, id)
			}
		}
	}
	return out
}

func union(sets []map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for _, s := range sets {
		for id := range s {
			out[id] = struct{}{}
		}
	}
	return out
}
