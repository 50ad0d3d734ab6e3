package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jehiah/gomrstats"
	"github.com/jehiah/gomrstats/jobs/average"
	"github.com/jehiah/gomrstats/jobs/relfreq"
	"github.com/jehiah/gomrstats/local"
	"github.com/jehiah/gomrstats/sink"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type options struct {
	config       string
	name         string
	input        []string
	output       string
	units        int
	reducers     int
	workers      int
	combine      bool
	maxAttempts  int
	maxPairs     int
	stage        string
	step         int
	remoteLogger string
	submitJob    bool
	dataproc     gomrstats.DataprocConfig
	sink         string
	progress     bool
	logLevel     string
}

func newRootCmd() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:           "gomrstats",
		Short:         "map/reduce statistics jobs",
		Long:          "gomrstats computes per key averages and relative frequencies of co-occurring tokens as map/reduce jobs.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	f := root.PersistentFlags()
	f.StringVarP(&o.config, "config", "c", "", "YAML job config; flags override its values")
	f.StringVar(&o.name, "name", "", "job name (default: the command name)")
	f.StringSliceVarP(&o.input, "input", "i", nil, "input files or globs; - reads stdin")
	f.StringVarP(&o.output, "output", "o", "", "output directory; empty or - writes to stdout")
	f.IntVar(&o.units, "units", 0, "map units (default: workers)")
	f.IntVarP(&o.reducers, "reducers", "r", 0, "reduce partitions (default 1)")
	f.IntVarP(&o.workers, "workers", "w", 0, "parallel units (default: number of CPUs)")
	f.BoolVar(&o.combine, "combine", true, "combine each map unit's output before the shuffle")
	f.IntVar(&o.maxAttempts, "max-attempts", 0, "attempts per unit before the job fails (default 4)")
	f.StringVar(&o.stage, "stage", "", "mapper, combiner or reducer; set when run as a hadoop task")
	f.IntVar(&o.step, "step", 0, "the step to execute")
	f.StringVar(&o.remoteLogger, "remote-logger", "", "address for remote logger")
	f.BoolVar(&o.submitJob, "submit-job", false, "submit the job to hadoop or dataproc")
	f.StringVar(&o.dataproc.Project, "dataproc-project", "", "Google Cloud project")
	f.StringVar(&o.dataproc.Region, "dataproc-region", "", "Dataproc region (default global)")
	f.StringVar(&o.dataproc.Cluster, "dataproc-cluster", "", "Dataproc cluster; submits there instead of local hadoop")
	f.StringVar(&o.dataproc.Credentials, "dataproc-credentials", "", "service account json (default: application default credentials)")
	f.StringVar(&o.dataproc.Bucket, "dataproc-bucket", "", "GCS bucket for the job binary and temporary output")
	f.StringVar(&o.sink, "sink", "", "load results into mysql://, sqlite:// or redis:// (see package sink)")
	f.BoolVar(&o.progress, "progress", false, "show a progress bar over map and reduce units")
	f.StringVar(&o.logLevel, "log-level", "", "debug, info, warn or error (default info)")

	root.AddCommand(&cobra.Command{
		Use:   "average",
		Short: "mean of the trailing integer field per leading key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd, o, func(*gomrstats.JobConfig) gomrstats.Step { return &average.Step{} })
		},
	})

	rf := &cobra.Command{
		Use:   "relfreq",
		Short: "relative frequency of tokens following each token within a line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd, o, func(c *gomrstats.JobConfig) gomrstats.Step { return &relfreq.Step{MaxPairs: c.MaxPairs} })
		},
	}
	rf.Flags().IntVar(&o.maxPairs, "max-pairs", 0, "bound the pairs each map unit holds; 0 is unbounded")
	root.AddCommand(rf)

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gomrstats v%s\n", gomrstats.VERSION)
		},
	})
	return root
}

// jobConfig reads --config and applies the flags that were set
func jobConfig(cmd *cobra.Command, o *options) (*gomrstats.JobConfig, error) {
	c := &gomrstats.JobConfig{}
	if o.config != "" {
		var err error
		if c, err = gomrstats.LoadJobConfig(o.config); err != nil {
			return nil, err
		}
	}
	changed := cmd.Flags().Changed
	if changed("name") {
		c.Name = o.name
	}
	if changed("input") {
		c.Input = o.input
	}
	if changed("output") {
		c.Output = o.output
	}
	if changed("units") {
		c.Units = o.units
	}
	if changed("reducers") {
		c.Reducers = o.reducers
	}
	if changed("workers") {
		c.Workers = o.workers
	}
	if changed("combine") {
		c.Combine = &o.combine
	}
	if changed("max-attempts") {
		c.MaxAttempts = o.maxAttempts
	}
	if changed("max-pairs") {
		c.MaxPairs = o.maxPairs
	}
	if changed("sink") {
		c.Sink = o.sink
	}
	if changed("progress") {
		c.Progress = o.progress
	}
	if changed("log-level") {
		c.LogLevel = o.logLevel
	}
	for flag, v := range map[string]*string{
		"dataproc-project":     &c.Dataproc.Project,
		"dataproc-region":      &c.Dataproc.Region,
		"dataproc-cluster":     &c.Dataproc.Cluster,
		"dataproc-credentials": &c.Dataproc.Credentials,
		"dataproc-bucket":      &c.Dataproc.Bucket,
	} {
		if changed(flag) {
			*v = cmd.Flags().Lookup(flag).Value.String()
		}
	}
	if c.Name == "" {
		c.Name = cmd.Name()
	}
	c.WithDefaults()
	return c, nil
}

func runJob(cmd *cobra.Command, o *options, newStep func(*gomrstats.JobConfig) gomrstats.Step) error {
	c, err := jobConfig(cmd, o)
	if err != nil {
		return err
	}
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	step := newStep(c)
	ctx := cmd.Context()

	if o.stage != "" || o.submitJob {
		return runHadoop(ctx, cmd, o, c, step)
	}
	if err := c.Validate(); err != nil {
		return err
	}
	return runLocal(ctx, cmd, c, step)
}

func runHadoop(ctx context.Context, cmd *cobra.Command, o *options, c *gomrstats.JobConfig, step gomrstats.Step) error {
	r := gomrstats.NewRunner(c.Name, step)
	r.Stage = o.stage
	r.StepNumber = o.step
	r.RemoteLogger = o.remoteLogger
	r.SubmitJob = o.submitJob
	r.Stdin = cmd.InOrStdin()
	r.Stdout = cmd.OutOrStdout()
	if o.stage != "" {
		return r.Run(ctx)
	}

	if err := c.Validate(); err != nil {
		return err
	}
	r.InputFiles = c.Input
	r.Output = c.Output
	r.ReducerTasks = c.Hadoop.ReducerTasks
	r.MapReduceOptions = c.Hadoop.Options
	r.CompressOutput = c.Hadoop.CompressOutput
	r.Dataproc = c.Dataproc
	// tasks don't see the config file
	r.PassThroughOptions = []string{cmd.Name(), fmt.Sprintf("--log-level=%s", c.LogLevel)}
	if cmd.Name() == "relfreq" {
		r.PassThroughOptions = append(r.PassThroughOptions, fmt.Sprintf("--max-pairs=%d", c.MaxPairs))
	}
	if err := r.Run(ctx); err != nil {
		return err
	}

	if c.Sink != "" {
		rc, err := r.ReadOutput(ctx)
		if err != nil {
			return err
		}
		err = loadSink(ctx, c.Sink, rc)
		rc.Close()
		if err != nil {
			return err
		}
	}
	if c.Output == "" {
		log.Infof("output left in %s", r.Output)
		return nil
	}
	return r.Cleanup(ctx)
}

// inputs expands globs and opens every input; "-" is stdin
func inputs(cmd *cobra.Command, patterns []string) ([]io.Reader, func(), error) {
	var readers []io.Reader
	var files []*os.File
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}
	for _, p := range patterns {
		if p == "-" {
			readers = append(readers, cmd.InOrStdin())
			continue
		}
		matches, err := filepath.Glob(p)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		if len(matches) == 0 {
			closeAll()
			return nil, nil, fmt.Errorf("no input matched %q", p)
		}
		for _, m := range matches {
			f, err := os.Open(m)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			files = append(files, f)
			readers = append(readers, f)
		}
	}
	return readers, closeAll, nil
}

func runLocal(ctx context.Context, cmd *cobra.Command, c *gomrstats.JobConfig, step gomrstats.Step) error {
	// no hadoop task tracker is reading stderr
	prev := gomrstats.SetReporterOutput(gomrstats.LogReporter())
	defer gomrstats.SetReporterOutput(prev)

	readers, closeAll, err := inputs(cmd, c.Input)
	if err != nil {
		return err
	}
	defer closeAll()

	opts := local.Options{
		Units:       c.Units,
		Reducers:    c.Reducers,
		Workers:     c.Workers,
		Combine:     *c.Combine,
		MaxAttempts: c.MaxAttempts,
	}
	if c.Progress {
		opts.Progress = cmd.ErrOrStderr()
	}
	parts, err := local.Run(ctx, step, readers, opts)
	if err != nil {
		return err
	}

	if c.Output == "" || c.Output == "-" {
		err = local.WriteTo(cmd.OutOrStdout(), parts)
	} else {
		err = local.WriteParts(c.Output, parts)
		log.Infof("wrote %d partitions to %s", len(parts), c.Output)
	}
	if err != nil {
		return err
	}
	if c.Sink != "" {
		return loadSink(ctx, c.Sink, bytes.NewReader(bytes.Join(parts, nil)))
	}
	return nil
}

func loadSink(ctx context.Context, uri string, r io.Reader) error {
	s, err := sink.Open(ctx, uri)
	if err != nil {
		return err
	}
	defer s.Close()
	_, err = sink.Load(ctx, s, r, 0)
	return err
}
