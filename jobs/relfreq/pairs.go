// Package relfreq computes, for every token, the relative frequency of the
// tokens that follow it on the same line.
//
// A token is paired with each later token on its line up to, but excluding,
// the next occurrence of itself. Pair counts are summed per left token and
// normalized into a probability distribution over right tokens.
package relfreq

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jehiah/gomrstats/mrproto"
)

// TokenPair is an ordered co-occurrence; Left was seen before Right.
type TokenPair struct {
	Left  string
	Right string
}

// MarshalJSON encodes the pair as ["left","right"] so that a bytewise sort of
// encoded keys keeps every left token contiguous.
func (p TokenPair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{p.Left, p.Right})
}

func (p *TokenPair) UnmarshalJSON(b []byte) error {
	var v []string
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("invalid token pair %s: %w", b, err)
	}
	if len(v) != 2 {
		return fmt.Errorf("invalid token pair %s: expected [left,right]", b)
	}
	p.Left, p.Right = v[0], v[1]
	return nil
}

func (p TokenPair) String() string {
	return "(" + p.Left + ", " + p.Right + ")"
}

// Tokenize splits a line on whitespace, dropping empty tokens. Invalid UTF-8
// bytes become U+FFFD first, as they would after the key encoding, so that
// tokens differ here exactly when they differ at the reducer.
func Tokenize(line string) []string {
	return strings.Fields(mrproto.ValidUTF8(line))
}

// Window calls fn for each pair (tokens[i], tokens[j]) with j > i, stopping
// the scan for i at the first later token equal to tokens[i].
//
// "a b a c" yields (a,b) (b,a) (b,c) (a,c).
func Window(tokens []string, fn func(TokenPair)) {
	for i, w := range tokens {
		for j := i + 1; j < len(tokens) && tokens[j] != w; j++ {
			fn(TokenPair{Left: w, Right: tokens[j]})
		}
	}
}

// PairCounter counts pairs for one map unit before they are emitted.
type PairCounter struct {
	counts map[TokenPair]int64
}

func NewPairCounter() *PairCounter {
	return &PairCounter{counts: make(map[TokenPair]int64)}
}

func (c *PairCounter) Increment(p TokenPair) {
	c.counts[p]++
}

func (c *PairCounter) Len() int {
	return len(c.counts)
}

// Drain hands every pair and its count to fn and leaves the counter empty.
// Pairs are drained in (Left, Right) order.
func (c *PairCounter) Drain(fn func(TokenPair, int64)) {
	pairs := make([]TokenPair, 0, len(c.counts))
	for p := range c.counts {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Left != pairs[j].Left {
			return pairs[i].Left < pairs[j].Left
		}
		return pairs[i].Right < pairs[j].Right
	})
	counts := c.counts
	c.counts = make(map[TokenPair]int64)
	for _, p := range pairs {
		fn(p, counts[p])
	}
}
