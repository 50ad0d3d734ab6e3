package gomrstats

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashPartitionStable(t *testing.T) {
	n := 8
	key := []byte(`"same-key"`)
	first := HashPartition(key, n)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, HashPartition(key, n))
	}
}

func TestHashPartitionRange(t *testing.T) {
	n := 7
	keys := []string{"a", "b", "c", "foo", "bar", "baz", "k1", "k2", "k3", ""}
	for _, key := range keys {
		got := HashPartition([]byte(key), n)
		if got < 0 || got >= n {
			t.Fatalf("partition out of range for key %q: %d", key, got)
		}
	}
}

type fixedPartitionStep struct{ partition int }

func (s fixedPartitionStep) Reducer(io.Reader, io.Writer) error { return nil }
func (s fixedPartitionStep) Partition([]byte, int) int        { return s.partition }

func TestPartitionFor(t *testing.T) {
	assert.Equal(t, 2, PartitionFor(fixedPartitionStep{2}, []byte("k"), 3))
	// out of range answers fall back to hashing
	assert.Equal(t, HashPartition([]byte("k"), 3), PartitionFor(fixedPartitionStep{9}, []byte("k"), 3))
}
