package gomrstats

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// HadoopConfig is passed through to hadoop streaming
type HadoopConfig struct {
	Options        []string `yaml:"options"`
	CompressOutput bool     `yaml:"compress_output"`
	ReducerTasks   int      `yaml:"reducer_tasks"`
}

// DataprocConfig selects a Dataproc cluster instead of a local hadoop
// install. The bucket stages the job binary and temporary output.
type DataprocConfig struct {
	Project     string `yaml:"project"`
	Region      string `yaml:"region"`
	Cluster     string `yaml:"cluster"`
	Credentials string `yaml:"credentials"`
	Bucket      string `yaml:"bucket"`
}

func (c DataprocConfig) Enabled() bool {
	return c.Cluster != ""
}

// JobConfig describes one run of a job. It is read from YAML and then
// overridden by command line flags.
type JobConfig struct {
	Name        string         `yaml:"name"`
	Input       []string       `yaml:"input"`
	Output      string         `yaml:"output"`
	Units       int            `yaml:"units"`
	Reducers    int            `yaml:"reducers"`
	Workers     int            `yaml:"workers"`
	Combine     *bool          `yaml:"combine"`
	MaxAttempts int            `yaml:"max_attempts"`
	MaxPairs    int            `yaml:"max_pairs"`
	Sink        string         `yaml:"sink"`
	Progress    bool           `yaml:"progress"`
	LogLevel    string         `yaml:"log_level"`
	Hadoop      HadoopConfig   `yaml:"hadoop"`
	Dataproc    DataprocConfig `yaml:"dataproc"`
}

// LoadJobConfig reads a YAML job file. Unknown fields are an error.
func LoadJobConfig(path string) (*JobConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var c JobConfig
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &c, nil
}

func (c *JobConfig) WithDefaults() {
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.Units <= 0 {
		c.Units = c.Workers
	}
	if c.Reducers <= 0 {
		c.Reducers = 1
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 4
	}
	if c.Combine == nil {
		combine := true
		c.Combine = &combine
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Hadoop.ReducerTasks <= 0 {
		c.Hadoop.ReducerTasks = 30
	}
	if c.Dataproc.Region == "" {
		c.Dataproc.Region = "global"
	}
}

func (c *JobConfig) Validate() error {
	if len(c.Input) == 0 {
		return errors.New("at least one input is required")
	}
	if c.MaxPairs < 0 {
		return fmt.Errorf("max_pairs must be >= 0, got %d", c.MaxPairs)
	}
	if c.Dataproc.Enabled() {
		if c.Dataproc.Project == "" {
			return errors.New("dataproc.project is required with dataproc.cluster")
		}
		if c.Dataproc.Bucket == "" {
			return errors.New("dataproc.bucket is required with dataproc.cluster")
		}
	}
	return nil
}
