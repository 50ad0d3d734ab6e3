package relfreq

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/jehiah/gomrstats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelativeFrequencyStep(t *testing.T) {
	in := "a b a c\n"
	out := "a\t{b: 0.5, c: 0.5}\nb\t{a: 0.5, c: 0.5}\n"
	gomrstats.TestMapReduceStep(t, &Step{}, bytes.NewBufferString(in), bytes.NewBufferString(out))
}

func TestRelativeFrequencyStepLines(t *testing.T) {
	in := "a b a c\n\nb c\nsolo\n"
	out := "a\t{b: 0.5, c: 0.5}\nb\t{a: 0.3333333333333333, c: 0.6666666666666666}\n"
	gomrstats.TestMapReduceStep(t, &Step{}, bytes.NewBufferString(in), bytes.NewBufferString(out))
	// evicting early only splits counts, the result is unchanged
	gomrstats.TestMapReduceStep(t, &Step{MaxPairs: 1}, bytes.NewBufferString(in), bytes.NewBufferString(out))
}

// a token never pairs with itself, even when it is not valid UTF-8
func TestRelativeFrequencyStepInvalidUTF8(t *testing.T) {
	in := "\xff \xfe\nlatin caf\xe9 caf\xe8\n"
	out := "latin\t{caf\uFFFD: 1.0}\n"
	gomrstats.TestMapReduceStep(t, &Step{}, bytes.NewBufferString(in), bytes.NewBufferString(out))

	var buf bytes.Buffer
	require.NoError(t, (&Step{}).Mapper(strings.NewReader("\xff \xfe\n"), &buf))
	assert.Empty(t, buf.String())
}

func TestRelativeFrequencyMapper(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&Step{}).Mapper(strings.NewReader("a b a c"), &buf))
	assert.Equal(t, `["a","b"]	1
["a","c"]	1
["b","a"]	1
["b","c"]	1
`, buf.String())
}

// counts are emitted once per map unit, not once per line
func TestRelativeFrequencyMapperCombinesAcrossLines(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&Step{}).Mapper(strings.NewReader("x y\nx y\nx y\n"), &buf))
	assert.Equal(t, "[\"x\",\"y\"]\t3\n", buf.String())
}

func TestRelativeFrequencyReducerUnsorted(t *testing.T) {
	var buf bytes.Buffer
	in := "[\"a\",\"b\"]\t1\n[\"b\",\"a\"]\t1\n[\"a\",\"c\"]\t1\n[\"c\",\"a\"]\t1\n"
	err := (&Step{}).Reducer(strings.NewReader(in), &buf)
	assert.True(t, errors.Is(err, ErrUnsortedInput))
}

func TestRelativeFrequencyPartition(t *testing.T) {
	s := &Step{}
	for n := 1; n < 10; n++ {
		p := s.Partition([]byte(`["a","b"]`), n)
		assert.Equal(t, p, s.Partition([]byte(`["a","zzz"]`), n))
		assert.Equal(t, gomrstats.HashPartition([]byte("a"), n), p)
	}
	assert.Equal(t, gomrstats.HashPartition([]byte("junk"), 4), s.Partition([]byte("junk"), 4))
}
