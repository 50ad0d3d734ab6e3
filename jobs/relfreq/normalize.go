package relfreq

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jehiah/gomrstats/mrproto"
)

// ErrUnsortedInput is returned when left token groups do not arrive in the
// order the shuffle sorts them. A left token showing up again after its group
// was finalized is always out of order.
var ErrUnsortedInput = errors.New("left token groups out of shuffle order")

// Distribution is the relative frequency of each right token after Left.
type Distribution struct {
	Left string
	Freq map[string]float64
}

// Sum of all frequencies; 1.0 for any emitted distribution, within rounding.
func (d Distribution) Sum() float64 {
	var total float64
	for _, f := range d.Freq {
		total += f
	}
	return total
}

// String formats the distribution as {right: p, ...} in right token order
func (d Distribution) String() string {
	rights := make([]string, 0, len(d.Freq))
	for r := range d.Freq {
		rights = append(rights, r)
	}
	sort.Strings(rights)
	var b strings.Builder
	b.WriteByte('{')
	for i, r := range rights {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(r)
		b.WriteString(": ")
		b.WriteString(mrproto.FormatDouble(d.Freq[r]))
	}
	b.WriteByte('}')
	return b.String()
}

// Normalizer turns a stream of pair counts grouped by left token into one
// Distribution per left token.
type Normalizer struct {
	emit    func(Distribution)
	left    string
	started bool
	group   map[string]int64
	// prev is the left token of the last finalized group
	prev    string
	hasPrev bool
	err     error
}

func NewNormalizer(emit func(Distribution)) *Normalizer {
	return &Normalizer{
		emit:  emit,
		group: make(map[string]int64),
	}
}

// Add sums counts for pair into the current group. When pair starts a new
// left token the current group is finalized first. A right token that
// arrives more than once within a group accumulates.
func (n *Normalizer) Add(pair TokenPair, counts ...int64) error {
	if n.err != nil {
		return n.err
	}
	var sum int64
	for _, c := range counts {
		sum += c
	}
	if n.started && pair.Left != n.left {
		n.finalize()
	}
	if !n.started && n.hasPrev && groupOrder(pair.Left) <= groupOrder(n.prev) {
		n.err = fmt.Errorf("%w: %q after %q", ErrUnsortedInput, pair.Left, n.prev)
		return n.err
	}
	n.group[pair.Right] += sum
	n.left = pair.Left
	n.started = true
	return nil
}

// Flush finalizes the last group. Call it once the input is exhausted.
func (n *Normalizer) Flush() error {
	if n.err != nil {
		return n.err
	}
	if n.started {
		n.finalize()
	}
	return nil
}

func (n *Normalizer) finalize() {
	var total int64
	for _, c := range n.group {
		total += c
	}
	if total > 0 {
		d := Distribution{Left: n.left, Freq: make(map[string]float64, len(n.group))}
		for r, c := range n.group {
			d.Freq[r] = float64(c) / float64(total)
		}
		n.emit(d)
	}
	n.prev, n.hasPrev = n.left, true
	n.group = make(map[string]int64)
	n.started = false
}

// groupOrder is where a left token's keys sort in the shuffle: encoded keys
// start with `["left",` so groups are ordered by the JSON string and the
// separator after it, not by the raw token.
func groupOrder(left string) string {
	b, _ := json.Marshal(left)
	return string(b) + ","
}
