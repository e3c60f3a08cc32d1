package columnar

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"shardindex/internal/filter"
)

// JSONLReader reads one shard as a newline-delimited JSON file: one
// object per row, keyed by column name. The schema (column name to
// declared type) is supplied at construction since JSON alone does not
// distinguish a numeric string from a number reliably across encoders.
//
// This is a stand-in for the real columnar reader referenced by the
// Indexer; production shard formats are an external capability.
type JSONLReader struct {
	schema map[string]filter.DType
	store  BlobStore
}

// NewJSONLReader builds a Reader over store using schema to interpret
// each row's fields.
func NewJSONLReader(schema map[string]filter.DType, store BlobStore) *JSONLReader {
	return &JSONLReader{schema: schema, store: store}
}

// Open reads location in full and parses it as newline-delimited JSON.
// The shard id is derived from the base name of location, with any
// extension stripped.
func (r *JSONLReader) Open(ctx context.Context, location string) (Frame, error) {
	rc, err := r.store.Open(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("columnar: open %s: %w", location, err)
	}
	defer rc.Close()

	rows := make([]map[string]json.RawMessage, 0, 64)
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var row map[string]json.RawMessage
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			return nil, fmt.Errorf("columnar: malformed row in %s: %w", location, err)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("columnar: read %s: %w", location, err)
	}

	shardID := strings.TrimSuffix(filepath.Base(location), filepath.Ext(location))
	return &jsonlFrame{shardID: shardID, schema: r.schema, rows: rows}, nil
}

type jsonlFrame struct {
	shardID string
	schema  map[string]filter.DType
	rows    []map[string]json.RawMessage
}

func (f *jsonlFrame) ShardID() string { return f.shardID }

func (f *jsonlFrame) Columns() []ColumnInfo {
	cols := make([]ColumnInfo, 0, len(f.schema))
	for name, dtype := range f.schema {
		cols = append(cols, ColumnInfo{Name: name, DType: dtype})
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].Name < cols[j].Name })
	return cols
}

func (f *jsonlFrame) Values(ctx context.Context, column string) ([]string, error) {
	dtype, ok := f.schema[column]
	if !ok {
		return nil, fmt.Errorf("columnar: unknown column %q", column)
	}

	values := make([]string, 0, len(f.rows))
	for _, row := range f.rows {
		raw, ok := row[column]
		if !ok || string(raw) == "null" {
			continue
		}

		var canon string
		var canonOK bool
		switch dtype {
		case filter.DTypeTimestamp:
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return nil, fmt.Errorf("columnar: column %q: %w", column, err)
			}
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				if t, err = time.Parse(time.RFC3339, s); err != nil {
					return nil, fmt.Errorf("columnar: column %q: bad timestamp %q", column, s)
				}
			}
			canon, canonOK = filter.CanonicalString(dtype, t)
		case filter.DTypeInt, filter.DTypeFloat:
			var n json.Number
			if err := json.Unmarshal(raw, &n); err != nil {
				return nil, fmt.Errorf("columnar: column %q: %w", column, err)
			}
			canon, canonOK = n.String(), true
		default:
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return nil, fmt.Errorf("columnar: column %q: %w", column, err)
			}
			canon, canonOK = filter.CanonicalString(dtype, s)
		}

		if !canonOK {
			return nil, fmt.Errorf("columnar: column %q: value did not canonicalize", column)
		}
		values = append(values, canon)
	}
	return values, nil
}

func (f *jsonlFrame) Close() error { return nil }
