package mrproto

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawInputProtocol(t *testing.T) {
	// the last line has no trailing newline and must still be delivered
	input := bytes.NewBufferString("10.0.0.1 a 7\r\n\n10.0.0.2 z bad")
	var lines []string
	for line := range RawInputProtocol(input) {
		lines = append(lines, string(line))
	}
	assert.Equal(t, []string{"10.0.0.1 a 7", "", "10.0.0.2 z bad"}, lines)
}

func TestJsonInternalOutputProtocol(t *testing.T) {
	// test writing json keys and values
	var b []byte
	buf := bytes.NewBuffer(b)

	wg, out := JsonInternalOutputProtocol(buf)
	out <- KeyValue{"a", 1}
	out <- KeyValue{[]string{"b", "c"}, uint32(1)}
	out <- KeyValue{"d", []int64{10, 2}}
	close(out)
	wg.Wait()

	assert.Equal(t, `"a"	1
["b","c"]	1
"d"	[10,2]
`, buf.String())
}

func TestJsonInternalInputProtocol(t *testing.T) {
	input := bytes.NewBufferString(`["a","b"]	1
["a","b"]	2
no-tab-here
["a","c"]	3
not-json	1
"z"	[1,1]
`)
	type group struct {
		key    string
		values []int64
	}
	var groups []group
	for kv := range JsonInternalInputProtocol(input) {
		key, err := kv.Key.Encode()
		require.NoError(t, err)
		g := group{key: string(key)}
		for v := range kv.Values {
			if n, err := v.Int64(); err == nil {
				g.values = append(g.values, n)
			} else {
				g.values = append(g.values, int64(len(v.MustArray())))
			}
		}
		groups = append(groups, g)
	}
	assert.Equal(t, []group{
		{`["a","b"]`, []int64{1, 2}},
		{`["a","c"]`, []int64{3}},
		{`"z"`, []int64{2}},
	}, groups)
}

func TestRawInternalInputProtocol(t *testing.T) {
	type testCase struct {
		data   string
		values int
	}

	tests := []testCase{
		{"\tkey\n\tkey\n", 2},
		{"a\tkey\na\tkey\n", 2},
		{"a\tkey\nb\tkey\nc\tkey", 3},
		{"a\nb\tkey\n", 1},
	}

	consume := func(r io.Reader) (values int) {
		for range RawInternalInputProtocol(r) {
			values++
		}
		return
	}

	for i, tc := range tests {
		values := consume(bytes.NewBufferString(tc.data))
		if values != tc.values {
			t.Errorf("test[%d] got %d expected %d values", i, values, tc.values)
		}
	}
}

func TestRawKeyValueOutputProtocol(t *testing.T) {
	var buf bytes.Buffer
	wg, out := RawKeyValueOutputProtocol(&buf)
	out <- KeyValue{"10.0.0.1", "6.0"}
	close(out)
	wg.Wait()
	assert.Equal(t, "10.0.0.1\t6.0\n", buf.String())
}
