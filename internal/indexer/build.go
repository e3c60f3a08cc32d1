// Package indexer builds filter artifacts from shard data and loads
// previously built artifacts back into a path trie at startup.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"shardindex/internal/callgroup"
	"shardindex/internal/columnar"
	"shardindex/internal/filter"
	"shardindex/internal/logging"
)

// Indexer reads shards through a columnar.Reader and writes filter
// artifacts under outputDir, one subdirectory per shard id.
type Indexer struct {
	reader      columnar.Reader
	policy      Policy
	outputDir   string
	artifactExt string
	group       callgroup.Group[string]
	logger      *slog.Logger
}

// New constructs an Indexer. artifactExt is the file suffix written for
// each column artifact (e.g. ".filter"), appended as given to the
// lower-cased column name.
func New(reader columnar.Reader, policy Policy, outputDir, artifactExt string, logger *slog.Logger) *Indexer {
	logger = logging.Default(logger)
	return &Indexer{
		reader:      reader,
		policy:      policy,
		outputDir:   outputDir,
		artifactExt: artifactExt,
		logger:      logger.With("component", "indexer"),
	}
}

// BuildShard builds every column artifact for the shard at location.
// Concurrent calls for the same location are deduplicated: only one
// build runs, and all callers observe its result.
func (ix *Indexer) BuildShard(ctx context.Context, location string) error {
	errCh := ix.group.DoChan(location, func() error {
		return ix.buildShard(ctx, location)
	})
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (ix *Indexer) buildShard(ctx context.Context, location string) error {
	frame, err := ix.reader.Open(ctx, location)
	if err != nil {
		return fmt.Errorf("indexer: open %s: %w", location, err)
	}
	defer frame.Close()

	shardID := frame.ShardID()
	cols := frame.Columns()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, runtime.GOMAXPROCS(0)))

	for _, col := range cols {
		col := col
		g.Go(func() error {
			values, err := frame.Values(gctx, col.Name)
			if err != nil {
				return fmt.Errorf("indexer: shard %s column %s: %w", shardID, col.Name, err)
			}

			f, err := ix.buildFilter(col.DType, values)
			if err != nil {
				return fmt.Errorf("indexer: shard %s column %s: %w", shardID, col.Name, err)
			}

			data, err := filter.Encode(f)
			if err != nil {
				return fmt.Errorf("indexer: shard %s column %s: encode: %w", shardID, col.Name, err)
			}

			dir := filepath.Join(ix.outputDir, shardID)
			name := strings.ToLower(col.Name) + ix.artifactExt
			if err := filter.WriteAtomic(dir, name, data); err != nil {
				return fmt.Errorf("indexer: shard %s column %s: write: %w", shardID, col.Name, err)
			}
			return nil
		})
	}

	return g.Wait()
}

// BuildAll builds every shard in locations. A per-shard failure is
// logged and does not stop the remaining shards, per the indexer's
// monotonic progress guarantee.
func (ix *Indexer) BuildAll(ctx context.Context, locations []string) {
	for _, loc := range locations {
		if err := ix.BuildShard(ctx, loc); err != nil {
			ix.logger.Error("shard build failed", "location", loc, "error", err)
		}
	}
}

func (ix *Indexer) buildFilter(dtype filter.DType, values []string) (filter.Filter, error) {
	if dtype.IsNumericOrTemporal() {
		distinct := make(map[string]struct{}, len(values))
		for _, v := range values {
			distinct[v] = struct{}{}
		}
		if ix.policy.Choose(dtype, uint64(len(distinct))) == filter.KindRange {
			return buildRangeFilter(dtype, values)
		}
	}
	return buildBloomFilter(values, ix.policy.ErrorRate), nil
}

func buildBloomFilter(values []string, errorRate float64) *filter.BloomFilter {
	capacity := uint64(len(values))
	b := filter.NewBloomFilter(capacity, errorRate)
	for _, v := range values {
		b.Add(v)
	}
	return b
}

func buildRangeFilter(dtype filter.DType, values []string) (*filter.RangeFilter, error) {
	if len(values) == 0 {
		if dtype == filter.DTypeTimestamp {
			return filter.NewTimestampRangeFilter(time.Time{}, time.Time{}, true), nil
		}
		return filter.NewNumericRangeFilter(dtype, 0, 0, true), nil
	}

	if dtype == filter.DTypeTimestamp {
		min, max := time.Time{}, time.Time{}
		for i, v := range values {
			t, err := parseCanonicalTimestamp(v)
			if err != nil {
				return nil, err
			}
			if i == 0 || t.Before(min) {
				min = t
			}
			if i == 0 || t.After(max) {
				max = t
			}
		}
		return filter.NewTimestampRangeFilter(min, max, false), nil
	}

	var min, max float64
	for i, v := range values {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("indexer: non-numeric value %q for numeric column", v)
		}
		if i == 0 || f < min {
			min = f
		}
		if i == 0 || f > max {
			max = f
		}
	}
	return filter.NewNumericRangeFilter(dtype, min, max, false), nil
}

func parseCanonicalTimestamp(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, v)
}
