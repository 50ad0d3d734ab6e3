package relfreq

import (
	"io"

	"github.com/bitly/go-simplejson"
	"github.com/jehiah/gomrstats"
	"github.com/jehiah/gomrstats/mrproto"
	log "github.com/sirupsen/logrus"
)

const counterGroup = "relfreq"

// Step is the map/reduce step for relative frequencies.
//
//	map:    "<token> <token> ..."        -> "[\"left\",\"right\"]\t<count>"
//	reduce: "[\"left\",\"right\"]\t<n>"... -> "<left>\t{right: p, ...}"
//
// The mapper keeps pair counts for the whole map unit and emits them when its
// input ends. With MaxPairs > 0 the least recently used pairs are emitted
// early to bound memory; the reducer sums partial counts either way.
type Step struct {
	MaxPairs int
}

func (s *Step) Mapper(r io.Reader, w io.Writer) error {
	wg, out := mrproto.JsonInternalOutputProtocol(w)
	var emitted int64
	emit := func(p TokenPair, n int64) {
		out <- mrproto.KeyValue{Key: p, Value: n}
		emitted++
	}

	var incr func(TokenPair)
	var flush func()
	if s.MaxPairs > 0 {
		lru := gomrstats.NewLRUCounter(emit, s.MaxPairs)
		incr = func(p TokenPair) { lru.Incr(p, 1) }
		flush = lru.Flush
	} else {
		counter := NewPairCounter()
		incr = counter.Increment
		flush = func() { counter.Drain(emit) }
	}

	var lines int64
	for line := range mrproto.RawInputProtocol(r) {
		lines++
		Window(Tokenize(string(line)), incr)
	}
	flush()
	close(out)
	wg.Wait()
	gomrstats.Counter(counterGroup, "map lines read", lines)
	gomrstats.Counter(counterGroup, "map pairs emitted", emitted)
	return nil
}

func (s *Step) Reducer(r io.Reader, w io.Writer) error {
	wg, out := mrproto.RawKeyValueOutputProtocol(w)
	n := NewNormalizer(func(d Distribution) {
		out <- mrproto.KeyValue{Key: d.Left, Value: d}
	})
	var err error
	for kv := range mrproto.JsonInternalInputProtocol(r) {
		var counts []int64
		for v := range kv.Values {
			c, verr := v.Int64()
			if verr != nil {
				gomrstats.Counter(counterGroup, "non-int value", 1)
				log.Warnf("non-int value %s", verr)
				continue
			}
			counts = append(counts, c)
		}
		pair, perr := decodeKey(kv.Key)
		if perr != nil {
			gomrstats.Counter(counterGroup, "invalid key", 1)
			log.Warnf("invalid key %s", perr)
			continue
		}
		// keep draining after an error so the input protocol can finish
		if err == nil {
			err = n.Add(pair, counts...)
		}
	}
	if err == nil {
		err = n.Flush()
	}
	close(out)
	wg.Wait()
	return err
}

// Partition sends every pair with the same left token to the same reduce unit.
func (s *Step) Partition(key []byte, n int) int {
	var p TokenPair
	if err := p.UnmarshalJSON(key); err != nil {
		return gomrstats.HashPartition(key, n)
	}
	return gomrstats.HashPartition([]byte(p.Left), n)
}

// StreamingPartitioner partitions on the key text before the first comma,
// i.e. `["left`. Lefts that contain a comma may share a reducer with other
// lefts, which is harmless; a left token never spans two reducers.
func (s *Step) StreamingPartitioner() (string, map[string]string) {
	return "org.apache.hadoop.mapred.lib.KeyFieldBasedPartitioner", map[string]string{
		"mapreduce.map.output.key.field.separator": ",",
		"mapreduce.partition.keypartitioner.options": "-k1,1",
	}
}

func decodeKey(key *simplejson.Json) (TokenPair, error) {
	b, err := key.Encode()
	if err != nil {
		return TokenPair{}, err
	}
	var p TokenPair
	if err := p.UnmarshalJSON(b); err != nil {
		return TokenPair{}, err
	}
	return p, nil
}
