// Package average computes the mean of the last field of each line, grouped
// by the first field, using partial (sum, count) pairs so that values can be
// pre-aggregated anywhere before the final reduce.
package average

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jehiah/gomrstats/mrproto"
)

// SumCountPair is a partial aggregate. Pairs combine by pointwise addition.
type SumCountPair struct {
	Sum   int64
	Count int64
}

// Combine is associative and commutative, so pairs may be folded in any
// order and grouping.
func (p SumCountPair) Combine(o SumCountPair) SumCountPair {
	return SumCountPair{Sum: p.Sum + o.Sum, Count: p.Count + o.Count}
}

func CombineAll(pairs ...SumCountPair) SumCountPair {
	var total SumCountPair
	for _, p := range pairs {
		total = total.Combine(p)
	}
	return total
}

// Mean is Sum/Count; ok is false when nothing was counted.
func (p SumCountPair) Mean() (mean float64, ok bool) {
	if p.Count == 0 {
		return 0, false
	}
	return float64(p.Sum) / float64(p.Count), true
}

// MarshalJSON encodes the pair as [sum,count]
func (p SumCountPair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int64{p.Sum, p.Count})
}

func (p *SumCountPair) UnmarshalJSON(b []byte) error {
	var v []int64
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("invalid sum/count pair %s: %w", b, err)
	}
	if len(v) != 2 {
		return fmt.Errorf("invalid sum/count pair %s: expected [sum,count]", b)
	}
	p.Sum, p.Count = v[0], v[1]
	return nil
}

// Parse reads a record of at least two whitespace separated fields. The first
// field is the key and the last a base 10 integer. Anything else, including
// a last field that is not an integer, is not a record and ok is false.
func Parse(line string) (key string, p SumCountPair, ok bool) {
	fields := strings.Fields(mrproto.ValidUTF8(line))
	if len(fields) <= 1 {
		return "", p, false
	}
	n, err := strconv.ParseInt(fields[len(fields)-1], 10, 64)
	if err != nil {
		return "", p, false
	}
	return fields[0], SumCountPair{Sum: n, Count: 1}, true
}

// KeyedAverage accumulates pairs per key.
type KeyedAverage map[string]SumCountPair

func (k KeyedAverage) Add(key string, p SumCountPair) {
	k[key] = k[key].Combine(p)
}

// Means finalizes every key that has a non zero count.
func (k KeyedAverage) Means() map[string]float64 {
	out := make(map[string]float64, len(k))
	for key, p := range k {
		if mean, ok := p.Mean(); ok {
			out[key] = mean
		}
	}
	return out
}
