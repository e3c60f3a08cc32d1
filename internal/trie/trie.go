// Package trie implements the path-addressable index over filter artifacts.
//
// Paths are segmented ([]string), one segment per path component (source,
// shard id, column file name). A segment may itself be a glob pattern at
// search time; insertion segments are always literal. Artifact loading is
// lazy: a terminal node records where its artifact lives on disk but does
// not read it until the first search that reaches it, and concurrent
// searches that race to load the same node's artifact are deduplicated so
// the backing file is read at most once.
package trie

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"shardindex/internal/callgroup"
	"shardindex/internal/filter"
	"shardindex/internal/logging"
)

// node is one segment of one inserted path.
type node struct {
	mu       sync.RWMutex
	children map[string]*node

	// terminal fields, set only on nodes created by Insert as the last
	// segment of a path.
	isTerminal bool
	artifactAt string // filesystem location, read lazily via loader
	loaded     bool
	filter     filter.Filter
	loadErr    error
}

func newNode() *node {
	return &node{children: make(map[string]*node)}
}

// Loader reads and decodes the artifact at path. Satisfied by filter.Load
// in production and by a fake in tests.
type Loader func(path string) (filter.Filter, error)

// Match is one terminal node reached by a Search, together with its
// filter's value membership test.
type Match struct {
	Path   []string
	Filter filter.Filter
}

// Index is the path trie. The zero value is not usable; construct with New.
type Index struct {
	root   *node
	load   Loader
	group  callgroup.Group[string]
	logger *slog.Logger

	mu   sync.RWMutex
	size int
}

// New constructs an empty Index. loader is used to materialize a terminal
// node's filter on first access; pass filter.Load in production.
func New(loader Loader, logger *slog.Logger) *Index {
	logger = logging.Default(logger)
	return &Index{
		root:   newNode(),
		load:   loader,
		logger: logger.With("component", "trie"),
	}
}

// Insert records a path ending in a filter artifact at artifactLocation.
// Segments are literal; glob characters in an inserted segment are matched
// literally by later searches, never expanded at insert time.
func (idx *Index) Insert(path []string, artifactLocation string) error {
	if len(path) == 0 {
		return fmt.Errorf("trie: insert with empty path")
	}

	cur := idx.root
	for _, seg := range path {
		cur.mu.Lock()
		child, ok := cur.children[seg]
		if !ok {
			child = newNode()
			cur.children[seg] = child
		}
		cur.mu.Unlock()
		cur = child
	}

	cur.mu.Lock()
	alreadyTerminal := cur.isTerminal
	cur.isTerminal = true
	cur.artifactAt = artifactLocation
	cur.loaded = false
	cur.filter = nil
	cur.loadErr = nil
	cur.mu.Unlock()

	if !alreadyTerminal {
		idx.mu.Lock()
		idx.size++
		idx.mu.Unlock()
	}
	return nil
}

// Size returns the number of terminal (artifact-bearing) paths inserted.
func (idx *Index) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.size
}

// Search walks the trie following pattern, one glob-matched segment at a
// time, and returns every terminal node reached. A pattern segment is
// matched against literal child segments with shell-style glob semantics
// (*, ?, [...]) that never cross a segment boundary: a single pattern
// segment can only ever match a single path segment.
//
// Matching artifacts are loaded on first touch; a match whose artifact
// fails to load is logged and left out of the result rather than aborting
// the whole search, since other branches may still be live.
func (idx *Index) Search(ctx context.Context, pattern []string) ([]Match, error) {
	if len(pattern) == 0 {
		return nil, fmt.Errorf("trie: search with empty pattern")
	}

	var matches []Match
	if err := idx.walk(ctx, idx.root, pattern, nil, &matches); err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool {
		return pathLess(matches[i].Path, matches[j].Path)
	})
	return matches, nil
}

func (idx *Index) walk(ctx context.Context, n *node, remaining []string, prefix []string, out *[]Match) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if len(remaining) == 0 {
		if n.isTerminal {
			f, err := idx.materialize(ctx, n)
			path := append(append([]string(nil), prefix...))
			if err != nil {
				idx.logger.Warn("artifact load failed", "path", path, "error", err)
				return nil
			}
			*out = append(*out, Match{Path: path, Filter: f})
		}
		return nil
	}

	pat := remaining[0]
	rest := remaining[1:]

	n.mu.RLock()
	children := make(map[string]*node, len(n.children))
	for k, v := range n.children {
		children[k] = v
	}
	n.mu.RUnlock()

	for seg, child := range children {
		matched, err := doublestar.Match(pat, seg)
		if err != nil {
			return fmt.Errorf("trie: invalid glob segment %q: %w", pat, err)
		}
		if !matched {
			continue
		}
		if err := idx.walk(ctx, child, rest, append(prefix, seg), out); err != nil {
			return err
		}
	}
	return nil
}

// materialize loads a terminal node's filter exactly once, deduplicating
// concurrent callers that reach the same node before the first load
// completes.
func (idx *Index) materialize(ctx context.Context, n *node) (filter.Filter, error) {
	n.mu.RLock()
	if n.loaded {
		f, err := n.filter, n.loadErr
		n.mu.RUnlock()
		return f, err
	}
	artifactAt := n.artifactAt
	n.mu.RUnlock()

	key := artifactAt
	errCh := idx.group.DoChan(key, func() error {
		n.mu.RLock()
		done, prevErr := n.loaded, n.loadErr
		n.mu.RUnlock()
		if done {
			return prevErr
		}
		f, err := idx.load(artifactAt)
		n.mu.Lock()
		n.filter = f
		n.loadErr = err
		n.loaded = true
		n.mu.Unlock()
		return err
	})

	select {
	case err := <-errCh:
		n.mu.RLock()
		f, loadErr := n.filter, n.loadErr
		n.mu.RUnlock()
		if err != nil {
			return nil, err
		}
		return f, loadErr
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func pathLess(a, b []string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
