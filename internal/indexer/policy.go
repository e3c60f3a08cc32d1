package indexer

import "shardindex/internal/filter"

// Policy is the construction policy that chooses between a Bloom filter
// and a range filter for one column of one shard.
//
// A numeric or temporal column with more distinct values than
// RangeFilterThreshold gets a range filter (bounds are cheap regardless
// of cardinality); everything else gets a Bloom filter at ErrorRate whose
// capacity is the column's count of non-null values, not its row count.
type Policy struct {
	RangeFilterThreshold uint64
	ErrorRate            float64
}

// DefaultPolicy returns the baseline threshold and error rate used when
// no override is configured.
func DefaultPolicy() Policy {
	return Policy{RangeFilterThreshold: 1000, ErrorRate: 0.1}
}

// Choose reports which Kind dtype/distinctCount should receive.
func (p Policy) Choose(dtype filter.DType, distinctCount uint64) filter.Kind {
	if dtype.IsNumericOrTemporal() && distinctCount > p.RangeFilterThreshold {
		return filter.KindRange
	}
	return filter.KindBloom
}
