package gomrstats

import (
	"bufio"
	"bytes"
	"io"
	"sort"
	"sync"
	"testing"

	log "github.com/sirupsen/logrus"
)

type Mapper interface {
	Mapper(io.Reader, io.Writer) error
}

type Reducer interface {
	Reducer(io.Reader, io.Writer) error
}

type Combiner interface {
	Combiner(io.Reader, io.Writer) error
}

// Partitioner routes an intermediate key to one of n reduce units. Steps
// that do not implement it are partitioned by a hash of the full key.
type Partitioner interface {
	Partition(key []byte, n int) int
}

// StepReducerTasksCount lets a step override Runner.ReducerTasks
type StepReducerTasksCount interface {
	NumberReducerTasks() int
}

// StreamingPartitioner is the hadoop streaming counterpart of Partitioner:
// a partitioner class and the job properties that configure it.
type StreamingPartitioner interface {
	StreamingPartitioner() (class string, properties map[string]string)
}

type Step interface {
	Reducer
}

// SortLines orders lines bytewise. Keys are the line prefix up to the first
// tab, so equal keys end up adjacent.
func SortLines(lines [][]byte) {
	sort.SliceStable(lines, func(i, j int) bool { return bytes.Compare(lines[i], lines[j]) == -1 })
}

// ReadLines splits a stream into lines, each keeping its trailing newline.
// A final line without a newline gets one appended.
func ReadLines(in io.Reader) ([][]byte, error) {
	var data [][]byte
	r := bufio.NewReader(in)
	for {
		line, err := r.ReadBytes('\n')
		if len(line) >= 1 {
			if line[len(line)-1] != '\n' {
				line = append(line, '\n')
			}
			data = append(data, line)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return data, nil
}

// a simple line sort
func sortPhase(in io.Reader, out io.Writer) error {
	data, err := ReadLines(in)
	if err != nil {
		return err
	}
	SortLines(data)
	for _, line := range data {
		if _, err := out.Write(line); err != nil {
			return err
		}
	}
	return nil
}

// pipe runs stage over in and returns a reader of its output
func pipe(t *testing.T, wg *sync.WaitGroup, name string, stage func(io.Reader, io.Writer) error, in io.Reader) io.Reader {
	r, w := io.Pipe()
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := stage(in, w)
		if err != nil {
			t.Errorf("%s failed with %s", name, err)
		}
		w.CloseWithError(err)
		// unblock the writer if the downstream stage stopped early
		if c, ok := in.(io.Closer); ok {
			c.Close()
		}
	}()
	return r
}

// test that a given step, and input generates a given output
//
// in -> map -> [sort -> combine] -> sort -> reduce -> out
func TestMapReduceStep(t *testing.T, s Step, in io.Reader, out io.Reader) []byte {
	var wg sync.WaitGroup

	var next io.Reader = in
	if m, ok := s.(Mapper); ok {
		next = pipe(t, &wg, "mapper", m.Mapper, next)
	}
	if c, ok := s.(Combiner); ok {
		next = pipe(t, &wg, "combine sort", sortPhase, next)
		next = pipe(t, &wg, "combiner", c.Combiner, next)
	}
	next = pipe(t, &wg, "sort", sortPhase, next)

	reduceOut := bytes.NewBuffer([]byte{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := s.Reducer(next, reduceOut)
		if err != nil {
			t.Errorf("reduce failed with %s", err)
		}
		if c, ok := next.(io.Closer); ok {
			c.Close()
		}
	}()
	wg.Wait()

	outBytes, err := io.ReadAll(out)
	if err != nil {
		t.Errorf("failed reading expected output %s", err)
		return nil
	}
	outBytes = bytes.TrimSpace(outBytes)
	result := bytes.TrimSpace(reduceOut.Bytes())
	if !bytes.Equal(result, outBytes) {
		// TODO: iterate line by line for better feedback on errors
		log.Infof("got output:\n%s", result)
		log.Infof("expected output:\n%s", outBytes)
		t.Errorf("output does not match expected output")
	}
	return result
}
