package average

import (
	"io"

	"github.com/bitly/go-simplejson"
	"github.com/jehiah/gomrstats"
	"github.com/jehiah/gomrstats/mrproto"
	log "github.com/sirupsen/logrus"
)

const counterGroup = "average"

// Step is the map/combine/reduce step for per key averages.
//
//	map:     "<key> ... <int>"      -> "<json key>\t[int,1]"
//	combine: "<json key>\t[s,c]"... -> "<json key>\t[sum s,sum c]"
//	reduce:  "<json key>\t[s,c]"... -> "<key>\t<sum/count>"
type Step struct{}

func (s *Step) Mapper(r io.Reader, w io.Writer) error {
	wg, out := mrproto.JsonInternalOutputProtocol(w)
	var emitted int64
	for line := range mrproto.RawInputProtocol(r) {
		key, pair, ok := Parse(string(line))
		if !ok {
			continue
		}
		out <- mrproto.KeyValue{Key: key, Value: pair}
		emitted++
	}
	close(out)
	wg.Wait()
	gomrstats.Counter(counterGroup, "map records emitted", emitted)
	return nil
}

// Combiner folds the pairs of each key seen by one map unit.
func (s *Step) Combiner(r io.Reader, w io.Writer) error {
	wg, out := mrproto.JsonInternalOutputProtocol(w)
	for kv := range mrproto.JsonInternalInputProtocol(r) {
		key, pair := fold(kv)
		if pair.Count == 0 {
			continue
		}
		out <- mrproto.KeyValue{Key: key, Value: pair}
	}
	close(out)
	wg.Wait()
	return nil
}

func (s *Step) Reducer(r io.Reader, w io.Writer) error {
	wg, out := mrproto.RawKeyValueOutputProtocol(w)
	for kv := range mrproto.JsonInternalInputProtocol(r) {
		key, pair := fold(kv)
		mean, ok := pair.Mean()
		if !ok {
			continue
		}
		out <- mrproto.KeyValue{Key: key, Value: mrproto.FormatDouble(mean)}
	}
	close(out)
	wg.Wait()
	return nil
}

// fold drains the values of one key into a single pair
func fold(kv mrproto.JsonKeyChan) (string, SumCountPair) {
	var total SumCountPair
	for v := range kv.Values {
		p, err := decodePair(v)
		if err != nil {
			gomrstats.Counter(counterGroup, "invalid value", 1)
			log.Warnf("skipping value for %v: %s", kv.Key, err)
			continue
		}
		total = total.Combine(p)
	}
	key, err := kv.Key.String()
	if err != nil {
		gomrstats.Counter(counterGroup, "non-string key", 1)
		log.Warnf("non-string key %s", err)
		return "", SumCountPair{}
	}
	return key, total
}

func decodePair(v *simplejson.Json) (SumCountPair, error) {
	b, err := v.Encode()
	if err != nil {
		return SumCountPair{}, err
	}
	var p SumCountPair
	if err := p.UnmarshalJSON(b); err != nil {
		return SumCountPair{}, err
	}
	return p, nil
}
