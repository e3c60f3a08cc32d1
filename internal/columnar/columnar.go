// Package columnar defines the capability interfaces the indexer uses to
// read shard data, independent of the underlying columnar container
// format. Production shard readers and object-storage backed blob stores
// are external capabilities; this package only defines the boundary and
// ships a minimal newline-delimited-JSON reader and local-filesystem blob
// store as testable stand-ins.
package columnar

import (
	"context"
	"io"

	"shardindex/internal/filter"
)

// ColumnInfo describes one column as reported by a Frame.
type ColumnInfo struct {
	Name  string
	DType filter.DType
}

// Frame is one open shard, positioned for column-at-a-time reads.
type Frame interface {
	// ShardID is the shard identifier this frame was opened for.
	ShardID() string

	// Columns lists every column present in the shard.
	Columns() []ColumnInfo

	// Values returns every non-null value observed in column, in the
	// canonical string form used for Bloom insertion and range bounds
	// (see filter.CanonicalString). Duplicates are not collapsed; the
	// caller decides what to do with repeated values.
	Values(ctx context.Context, column string) ([]string, error)

	Close() error
}

// Reader opens a shard by location and returns a Frame over it.
type Reader interface {
	Open(ctx context.Context, location string) (Frame, error)
}

// BlobStore abstracts fetching a shard's raw bytes, standing in for an
// object-storage client in a production deployment.
type BlobStore interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}
