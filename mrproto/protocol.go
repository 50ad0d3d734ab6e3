// Package mrproto holds the line protocols spoken between stages.
//
// Intermediate records are "<json key>\t<json value>\n" so that a bytewise
// sort groups equal keys. Final output is "<key>\t<value>\n" with raw text.
package mrproto

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/bitly/go-simplejson"
	"github.com/jehiah/gomrstats"
	log "github.com/sirupsen/logrus"
)

const readerSize = 1024 * 1024 * 2

func trimNewline(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte("\n"))
	return bytes.TrimSuffix(line, []byte("\r"))
}

// returns a channel of input lines without their line endings. This channel
// will be closed when the input stream closes. Errors will be logged
func RawInputProtocol(input io.Reader) <-chan []byte {
	out := make(chan []byte, 100)
	go func() {
		r := bufio.NewReaderSize(input, readerSize)
		for {
			line, lineErr := r.ReadBytes('\n')
			if len(line) > 0 {
				out <- trimNewline(line)
			}
			if lineErr == io.EOF {
				break
			}
			if lineErr != nil {
				gomrstats.Counter("RawInputProtocol", "read error", 1)
				log.Errorf("%s - failed reading after %q", lineErr, line)
				break
			}
		}
		close(out)
	}()
	return out
}

type JsonKeyChan struct {
	Key    *simplejson.Json
	Values <-chan *simplejson.Json
}

// returns an input channel with a simplejson.Json key, and a channel of
// simplejson.Json Values for that key. Consecutive lines with an identical
// key are collated, so the input must be sorted. Each Values channel must be
// drained before the next key is read. Errors will be logged
func JsonInternalInputProtocol(input io.Reader) <-chan JsonKeyChan {
	out := make(chan JsonKeyChan)
	var jsonChan chan *simplejson.Json
	var lastKey []byte
	collate := func(line []byte) {
		chunks := bytes.SplitN(trimNewline(line), []byte("\t"), 2)
		if len(chunks) != 2 {
			gomrstats.Counter("JsonInternalInputProtocol", "invalid line - no tab", 1)
			log.Warnf("invalid line. no tab - %q", line)
			return
		}
		if !bytes.Equal(chunks[0], lastKey) || jsonChan == nil {
			if jsonChan != nil {
				close(jsonChan)
				jsonChan = nil
			}
			key, err := simplejson.NewJson(chunks[0])
			if err != nil {
				gomrstats.Counter("JsonInternalInputProtocol", "invalid key", 1)
				log.Warnf("%s - failed parsing key %q", err, line)
				lastKey = lastKey[:0]
				return
			}
			lastKey = chunks[0]
			jsonChan = make(chan *simplejson.Json, 100)
			out <- JsonKeyChan{key, jsonChan}
		}
		data, err := simplejson.NewJson(chunks[1])
		if err != nil {
			gomrstats.Counter("JsonInternalInputProtocol", "invalid value", 1)
			log.Warnf("%s - failed parsing %q", err, line)
			return
		}
		jsonChan <- data
	}
	go func() {
		r := bufio.NewReaderSize(input, readerSize)
		for {
			line, lineErr := r.ReadBytes('\n')
			if len(bytes.TrimSpace(line)) > 0 {
				collate(line)
			}
			if lineErr == io.EOF {
				break
			}
			if lineErr != nil {
				gomrstats.Counter("JsonInternalInputProtocol", "read error", 1)
				log.Errorf("%s - failed reading after %q", lineErr, line)
				break
			}
		}
		if jsonChan != nil {
			close(jsonChan)
		}
		close(out)
	}()
	return out
}

type KeyValue struct {
	Key   interface{}
	Value interface{}
}

// returns an input channel with a raw key, value without collating keys
func RawInternalInputProtocol(input io.Reader) <-chan KeyValue {
	out := make(chan KeyValue, 100)
	go func() {
		for line := range RawInputProtocol(input) {
			if len(line) == 0 {
				continue
			}
			chunks := bytes.SplitN(line, []byte("\t"), 2)
			if len(chunks) != 2 {
				gomrstats.Counter("RawInternalInputProtocol", "invalid line - no tab", 1)
				log.Warnf("invalid line. no tab - %q", line)
				continue
			}
			out <- KeyValue{chunks[0], chunks[1]}
		}
		close(out)
	}()
	return out
}

// a json Key, and a json value
func JsonInternalOutputProtocol(writer io.Writer) (*sync.WaitGroup, chan<- KeyValue) {
	w := bufio.NewWriter(writer)
	in := make(chan KeyValue, 100)
	tab := []byte("\t")
	newline := []byte("\n")
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		for kv := range in {
			kBytes, err := json.Marshal(kv.Key)
			if err != nil {
				gomrstats.Counter("JsonInternalOutputProtocol", "unable to json encode key", 1)
				log.Warnf("%s - failed encoding %v", err, kv.Key)
				continue
			}
			vBytes, err := json.Marshal(kv.Value)
			if err != nil {
				gomrstats.Counter("JsonInternalOutputProtocol", "unable to json encode value", 1)
				log.Warnf("%s - failed encoding %v", err, kv.Value)
				continue
			}
			w.Write(kBytes)  // nolint:errcheck
			w.Write(tab)     // nolint:errcheck
			w.Write(vBytes)  // nolint:errcheck
			w.Write(newline) // nolint:errcheck
		}
		w.Flush()
		wg.Done()
	}()
	return &wg, in
}

// a raw Key and a raw value, each written with %v. Keys and values that
// implement fmt.Stringer control their own format.
func RawKeyValueOutputProtocol(writer io.Writer) (*sync.WaitGroup, chan<- KeyValue) {
	w := bufio.NewWriter(writer)
	in := make(chan KeyValue, 100)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		for kv := range in {
			fmt.Fprintf(w, "%v\t%v\n", kv.Key, kv.Value)
		}
		w.Flush()
		wg.Done()
	}()
	return &wg, in
}
