// Package filter implements the probabilistic and range filters that back
// the shard index: a tagged union of a Bloom filter (for low-cardinality or
// non-numeric columns) and a [min, max] range filter (for numeric/temporal
// columns with many distinct values).
//
// A Filter never returns a false negative for its shard's data within its
// declared domain; false positives are allowed and, for Bloom filters,
// bounded by the configured error rate.
package filter

import (
	"errors"
	"time"
)

// ErrCorruptArtifact is returned when a serialized artifact fails a
// structural check (bad signature, type, version, or checksum).
var ErrCorruptArtifact = errors.New("filter: corrupt artifact")

// DType identifies the declared type of a column for construction-policy
// and range-parsing purposes.
type DType byte

const (
	DTypeString DType = iota
	DTypeInt
	DTypeFloat
	DTypeTimestamp
)

func (d DType) String() string {
	switch d {
	case DTypeInt:
		return "integer"
	case DTypeFloat:
		return "floating"
	case DTypeTimestamp:
		return "timestamp"
	default:
		return "string"
	}
}

// IsNumericOrTemporal reports whether d is eligible for range-filter
// construction under the policy in Policy.Choose.
func (d DType) IsNumericOrTemporal() bool {
	return d == DTypeInt || d == DTypeFloat || d == DTypeTimestamp
}

// ParseDType maps a schema file's declared column type name to a DType.
func ParseDType(name string) (DType, error) {
	switch name {
	case "string":
		return DTypeString, nil
	case "int", "integer":
		return DTypeInt, nil
	case "float", "floating":
		return DTypeFloat, nil
	case "timestamp":
		return DTypeTimestamp, nil
	default:
		return 0, errors.New("filter: unknown column type " + name)
	}
}

// Filter is the common interface satisfied by BloomFilter and RangeFilter.
type Filter interface {
	// Contains reports whether v might be present. False means v is
	// definitely absent; this must never be true-when-absent's inverse
	// (i.e. no false negatives).
	Contains(v string) bool

	// Kind identifies the concrete filter type, used for dispatch and
	// for selecting the correct codec on serialize/deserialize.
	Kind() Kind
}

// Kind tags the concrete type of a Filter.
type Kind byte

const (
	KindBloom Kind = iota
	KindRange
)

// CanonicalString renders v in the canonical string form used both for
// Bloom insertion at build time: a time.Time is rendered as RFC3339 (with
// fractional seconds when present) in UTC for DTypeTimestamp. For every
// other dtype v must already be a string and is returned unchanged;
// numeric values are not reformatted here.
func CanonicalString(d DType, v any) (string, bool) {
	switch d {
	case DTypeTimestamp:
		t, ok := v.(time.Time)
		if !ok {
			return "", false
		}
		return t.UTC().Format(time.RFC3339Nano), true
	default:
		s, ok := v.(string)
		return s, ok
	}
}
