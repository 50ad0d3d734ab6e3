// Package local runs a gomrstats Step without hadoop.
//
// Input lines are split into map units that run in parallel. Each unit's
// output is optionally combined, then partitioned by key. Once every map unit
// is done, each partition is sorted and handed to one reduce unit; reduce
// units also run in parallel. A unit that fails is re-run from scratch, and a
// unit that keeps failing fails the whole job.
package local

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cheggaaa/pb/v3"
	"github.com/google/uuid"
	"github.com/jehiah/gomrstats"
	mapreduce "github.com/kevwan/mapreduce/v2"
	log "github.com/sirupsen/logrus"
)

type unit struct {
	index int
	uuid  string
	lines [][]byte
}

type mapOutput struct {
	unit       int
	partitions [][][]byte
}

type reduceOutput struct {
	partition int
	data      []byte
}

type engine struct {
	step gomrstats.Step
	opts Options
	bar  *pb.ProgressBar
}

// Run executes step over all lines of inputs and returns the output of each
// reduce partition, in partition order.
func Run(ctx context.Context, step gomrstats.Step, inputs []io.Reader, opts Options) ([][]byte, error) {
	opts.withDefaults(step)
	var lines [][]byte
	for _, in := range inputs {
		l, err := gomrstats.ReadLines(in)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}
		lines = append(lines, l...)
	}
	units := split(lines, opts.Units)
	log.Infof("[local] %d lines in %d map units (%s)", len(lines), len(units), opts)

	e := &engine{step: step, opts: opts}
	if opts.Progress != nil {
		e.bar = pb.New(len(units) + opts.Reducers).SetWriter(opts.Progress).Start()
		defer e.bar.Finish()
	}

	shuffled, err := e.mapStage(ctx, units)
	if err != nil {
		return nil, err
	}
	return e.reduceStage(ctx, shuffled)
}

// WriteTo writes the reduce outputs back to back.
func WriteTo(w io.Writer, parts [][]byte) error {
	for _, p := range parts {
		if _, err := w.Write(p); err != nil {
			return err
		}
	}
	return nil
}

// WriteParts writes one part-NNNNN file per reduce partition into dir and
// marks it complete with an empty _SUCCESS file.
func WriteParts(dir string, parts [][]byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for i, p := range parts {
		name := filepath.Join(dir, fmt.Sprintf("part-%05d", i))
		if err := os.WriteFile(name, p, 0o644); err != nil {
			return err
		}
	}
	return os.WriteFile(filepath.Join(dir, "_SUCCESS"), nil, 0o644)
}

// split cuts lines into at most n contiguous, non empty units
func split(lines [][]byte, n int) []unit {
	if len(lines) == 0 {
		return nil
	}
	if n > len(lines) {
		n = len(lines)
	}
	size := (len(lines) + n - 1) / n
	var units []unit
	for start := 0; start < len(lines); start += size {
		end := start + size
		if end > len(lines) {
			end = len(lines)
		}
		units = append(units, unit{index: len(units), uuid: uuid.New().String(), lines: lines[start:end]})
	}
	return units
}

func (e *engine) mapStage(ctx context.Context, units []unit) ([][][]byte, error) {
	shuffled, err := mapreduce.MapReduce(func(source chan<- unit) {
		for _, u := range units {
			source <- u
		}
	}, func(u unit, writer mapreduce.Writer[mapOutput], cancel func(error)) {
		var partitions [][][]byte
		err := e.attempt(ctx, "map", u.index, u.uuid, func() (err error) {
			partitions, err = e.runMapUnit(u)
			return err
		})
		if err != nil {
			cancel(err)
			return
		}
		writer.Write(mapOutput{unit: u.index, partitions: partitions})
	}, func(pipe <-chan mapOutput, writer mapreduce.Writer[[][][]byte], cancel func(error)) {
		// nothing is reduced until every map unit has reported
		shuffled := make([][][]byte, e.opts.Reducers)
		for out := range pipe {
			for i, lines := range out.partitions {
				shuffled[i] = append(shuffled[i], lines...)
			}
			e.increment()
		}
		writer.Write(shuffled)
	}, mapreduce.WithWorkers(e.opts.Workers), mapreduce.WithContext(ctx))
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		return nil, err
	}
	return shuffled, nil
}

func (e *engine) reduceStage(ctx context.Context, shuffled [][][]byte) ([][]byte, error) {
	parts, err := mapreduce.MapReduce(func(source chan<- int) {
		for i := range shuffled {
			source <- i
		}
	}, func(i int, writer mapreduce.Writer[reduceOutput], cancel func(error)) {
		var data []byte
		err := e.attempt(ctx, "reduce", i, uuid.New().String(), func() (err error) {
			data, err = e.runReduceUnit(shuffled[i])
			return err
		})
		if err != nil {
			cancel(err)
			return
		}
		writer.Write(reduceOutput{partition: i, data: data})
	}, func(pipe <-chan reduceOutput, writer mapreduce.Writer[[][]byte], cancel func(error)) {
		parts := make([][]byte, len(shuffled))
		for out := range pipe {
			parts[out.partition] = out.data
			e.increment()
		}
		writer.Write(parts)
	}, mapreduce.WithWorkers(e.opts.Workers), mapreduce.WithContext(ctx))
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		return nil, err
	}
	return parts, nil
}

// attempt runs fn until it succeeds or MaxAttempts is reached. Each attempt
// starts over from the unit's input.
func (e *engine) attempt(ctx context.Context, stage string, index int, id string, fn func() error) error {
	logger := log.WithFields(log.Fields{"stage": stage, "unit": index, "uuid": id})
	for n := 1; ; n++ {
		logger.Debugf("[local] start %s unit attempt %d", stage, n)
		err := guard(fn)
		if err == nil {
			logger.Debugf("[local] finish %s unit", stage)
			return nil
		}
		logger.Warnf("[local] %s unit attempt %d failed: %s", stage, n, err)
		if n >= e.opts.MaxAttempts {
			return fmt.Errorf("%s unit %d failed after %d attempts: %w", stage, index, n, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
}

// guard turns a panic inside a unit into an error for that attempt
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func (e *engine) increment() {
	if e.bar != nil {
		e.bar.Increment()
	}
}

func (e *engine) runMapUnit(u unit) ([][][]byte, error) {
	var mapped bytes.Buffer
	if m, ok := e.step.(gomrstats.Mapper); ok {
		if err := m.Mapper(bytes.NewReader(bytes.Join(u.lines, nil)), &mapped); err != nil {
			return nil, err
		}
	} else {
		// identity mapper
		mapped.Write(bytes.Join(u.lines, nil))
	}
	lines, err := gomrstats.ReadLines(&mapped)
	if err != nil {
		return nil, err
	}

	if c, ok := e.step.(gomrstats.Combiner); ok && e.opts.Combine {
		gomrstats.SortLines(lines)
		var combined bytes.Buffer
		if err := c.Combiner(bytes.NewReader(bytes.Join(lines, nil)), &combined); err != nil {
			return nil, err
		}
		if lines, err = gomrstats.ReadLines(&combined); err != nil {
			return nil, err
		}
	}

	partitions := make([][][]byte, e.opts.Reducers)
	for _, line := range lines {
		i := gomrstats.PartitionFor(e.step, keyOf(line), e.opts.Reducers)
		partitions[i] = append(partitions[i], line)
	}
	return partitions, nil
}

func (e *engine) runReduceUnit(lines [][]byte) ([]byte, error) {
	sorted := make([][]byte, len(lines))
	copy(sorted, lines)
	gomrstats.SortLines(sorted)
	var out bytes.Buffer
	if err := e.step.Reducer(bytes.NewReader(bytes.Join(sorted, nil)), &out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// keyOf is the line up to the first tab, or the whole line without its newline
func keyOf(line []byte) []byte {
	if i := bytes.IndexByte(line, '\t'); i >= 0 {
		return line[:i]
	}
	return bytes.TrimRight(line, "\r\n")
}
