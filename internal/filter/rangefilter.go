package filter

import (
	"strconv"
	"time"
)

// RangeFilter states the inclusive [min, max] range of values observed in
// one numeric or temporal column of one shard. It is chosen over a Bloom
// filter when the column's distinct-value count exceeds the configured
// range-filter threshold (see the indexer's construction policy).
//
// Nulls are ignored when computing min/max. If every value in the column
// was null, Empty is true and Contains always returns false.
type RangeFilter struct {
	DType DType
	Empty bool

	// minNum/maxNum hold the range for DTypeInt/DTypeFloat.
	minNum, maxNum float64

	// minTime/maxTime hold the range for DTypeTimestamp, in Unix
	// nanoseconds — kept as int64 rather than float64 so that the full
	// nanosecond range survives round-tripping without precision loss.
	minTime, maxTime int64
}

// NewNumericRangeFilter builds a range filter over integer or floating
// values.
func NewNumericRangeFilter(dtype DType, min, max float64, empty bool) *RangeFilter {
	return &RangeFilter{DType: dtype, Empty: empty, minNum: min, maxNum: max}
}

// NewTimestampRangeFilter builds a range filter over timestamp values.
func NewTimestampRangeFilter(min, max time.Time, empty bool) *RangeFilter {
	return &RangeFilter{DType: DTypeTimestamp, Empty: empty, minTime: min.UnixNano(), maxTime: max.UnixNano()}
}

// NumericBounds and TimeBounds expose the stored bounds.
func (r *RangeFilter) NumericBounds() (min, max float64) { return r.minNum, r.maxNum }
func (r *RangeFilter) TimeBounds() (min, max int64)      { return r.minTime, r.maxTime }

// Contains parses v according to the filter's declared dtype. A parse
// failure means v cannot possibly match this column and Contains returns
// false (not a false negative: v was never a member of this filter's
// domain in the first place).
func (r *RangeFilter) Contains(v string) bool {
	if r.Empty {
		return false
	}

	switch r.DType {
	case DTypeInt:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return false
		}
		f := float64(n)
		return r.minNum <= f && f <= r.maxNum

	case DTypeFloat:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return false
		}
		return r.minNum <= f && f <= r.maxNum

	case DTypeTimestamp:
		t, err := parseTimestamp(v)
		if err != nil {
			return false
		}
		ns := t.UnixNano()
		return r.minTime <= ns && ns <= r.maxTime

	default:
		return false
	}
}

// Kind implements Filter.
func (r *RangeFilter) Kind() Kind { return KindRange }

// parseTimestamp accepts RFC3339 (with or without fractional seconds),
// the canonical form written by CanonicalString for DTypeTimestamp.
func parseTimestamp(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, v)
}
