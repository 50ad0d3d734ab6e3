package gomrstats

import "hash/fnv"

// HashPartition maps key to [0, n) with fnv-32a.
func HashPartition(key []byte, n int) int {
	if n <= 0 {
		panic("n must be > 0")
	}
	h := fnv.New32a()
	_, _ = h.Write(key)
	return int(h.Sum32()&0x7fffffff) % n
}

// PartitionFor uses the step's Partitioner when it has one.
func PartitionFor(s Step, key []byte, n int) int {
	if p, ok := s.(Partitioner); ok {
		i := p.Partition(key, n)
		if i >= 0 && i < n {
			return i
		}
	}
	return HashPartition(key, n)
}
