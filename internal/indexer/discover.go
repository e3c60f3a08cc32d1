package indexer

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"shardindex/internal/logging"
)

// Inserter is the subset of *trie.Index the discovery loader depends on.
type Inserter interface {
	Insert(path []string, artifactLocation string) error
}

// Discover walks indexRoot for files named with artifactExt and inserts
// each one into index at [sourceName, ...relative path segments]. A
// missing indexRoot is logged and treated as an empty store, not a
// fatal error — the server can still start and serve an empty index.
func Discover(indexRoot, sourceName, artifactExt string, index Inserter, logger *slog.Logger) error {
	logger = logging.Default(logger).With("component", "indexer")

	if _, err := os.Stat(indexRoot); err != nil {
		if os.IsNotExist(err) {
			logger.Warn("index root missing, starting with empty store", "root", indexRoot)
			return nil
		}
		return err
	}

	return filepath.WalkDir(indexRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(d.Name(), artifactExt) {
			return nil
		}

		rel, err := filepath.Rel(indexRoot, path)
		if err != nil {
			return err
		}

		segments := append([]string{sourceName}, strings.Split(rel, string(filepath.Separator))...)
		if err := index.Insert(segments, path); err != nil {
			logger.Warn("failed to insert discovered artifact", "path", path, "error", err)
		}
		return nil
	})
}
