package average

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	type testCase struct {
		line string
		key  string
		pair SumCountPair
		ok   bool
	}
	tests := []testCase{
		{"10.0.0.1 x y 5", "10.0.0.1", SumCountPair{5, 1}, true},
		{"10.0.0.1 a 7", "10.0.0.1", SumCountPair{7, 1}, true},
		{"10.0.0.2 z bad", "", SumCountPair{}, false},
		{"10.0.0.3\t\t-4", "10.0.0.3", SumCountPair{-4, 1}, true},
		{"  10.0.0.4   12  ", "10.0.0.4", SumCountPair{12, 1}, true},
		{"10.0.0.5", "", SumCountPair{}, false},
		{"42", "", SumCountPair{}, false},
		{"", "", SumCountPair{}, false},
		{"10.0.0.6 1.5", "", SumCountPair{}, false},
		{"10.0.0.7 99999999999999999999", "", SumCountPair{}, false},
		{"caf\xe9 3", "caf\uFFFD", SumCountPair{3, 1}, true},
	}
	for _, tc := range tests {
		t.Run(tc.line, func(t *testing.T) {
			key, pair, ok := Parse(tc.line)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.key, key)
			assert.Equal(t, tc.pair, pair)
		})
	}
}

func TestCombineAssociative(t *testing.T) {
	pairs := []SumCountPair{{5, 1}, {7, 1}, {-3, 2}, {0, 4}, {100, 9}}
	for _, p1 := range pairs {
		for _, p2 := range pairs {
			for _, p3 := range pairs {
				assert.Equal(t, p1.Combine(p2).Combine(p3), p1.Combine(p2.Combine(p3)))
				assert.Equal(t, p1.Combine(p2), p2.Combine(p1))
			}
		}
	}
	assert.Equal(t, SumCountPair{209, 17}, CombineAll(pairs...))
	assert.Equal(t, SumCountPair{}, CombineAll())
}

func TestMean(t *testing.T) {
	mean, ok := SumCountPair{12, 2}.Mean()
	assert.True(t, ok)
	assert.Equal(t, 6.0, mean)

	_, ok = SumCountPair{}.Mean()
	assert.False(t, ok)
}

func TestSumCountPairJSON(t *testing.T) {
	b, err := json.Marshal(SumCountPair{12, 2})
	require.NoError(t, err)
	assert.Equal(t, "[12,2]", string(b))

	var p SumCountPair
	require.NoError(t, json.Unmarshal([]byte("[3,1]"), &p))
	assert.Equal(t, SumCountPair{3, 1}, p)

	assert.Error(t, json.Unmarshal([]byte("[3]"), &p))
	assert.Error(t, json.Unmarshal([]byte(`{"sum":3}`), &p))
}

func TestKeyedAverage(t *testing.T) {
	k := KeyedAverage{}
	for _, line := range []string{"10.0.0.1 x y 5", "10.0.0.1 a 7", "10.0.0.2 z bad", "10.0.0.3 1"} {
		if key, p, ok := Parse(line); ok {
			k.Add(key, p)
		}
	}
	k["empty"] = SumCountPair{}
	assert.Equal(t, map[string]float64{"10.0.0.1": 6.0, "10.0.0.3": 1.0}, k.Means())
}
