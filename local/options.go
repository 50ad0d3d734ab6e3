package local

import (
	"fmt"
	"io"
	"runtime"

	"github.com/jehiah/gomrstats"
)

// Options controls how a step is executed locally.
type Options struct {
	// Units is the number of map units the input lines are split into.
	Units int
	// Reducers is the number of reduce partitions; a step implementing
	// gomrstats.StepReducerTasksCount overrides it.
	Reducers int
	// Workers bounds how many units run at the same time.
	Workers int
	// Combine runs the step's Combiner over each map unit's sorted output.
	Combine bool
	// MaxAttempts is how often a failing unit is started from scratch before
	// the job fails.
	MaxAttempts int
	// Progress, when set, receives a progress bar over all units.
	Progress io.Writer
}

func (o *Options) withDefaults(s gomrstats.Step) {
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.Units <= 0 {
		o.Units = o.Workers
	}
	if t, ok := s.(gomrstats.StepReducerTasksCount); ok && t.NumberReducerTasks() > 0 {
		o.Reducers = t.NumberReducerTasks()
	}
	if o.Reducers <= 0 {
		o.Reducers = 1
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 4
	}
}

func (o Options) String() string {
	return fmt.Sprintf("units=%d reducers=%d workers=%d combine=%v max_attempts=%d", o.Units, o.Reducers, o.Workers, o.Combine, o.MaxAttempts)
}
