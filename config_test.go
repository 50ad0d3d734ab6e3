package gomrstats

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadJobConfig(t *testing.T) {
	c, err := LoadJobConfig(writeConfig(t, `
name: relfreq-daily
input: [logs/a.txt, "logs/*.gz"]
output: out/relfreq
reducers: 4
combine: false
max_pairs: 10000
sink: sqlite:///tmp/relfreq.db?table=relfreq
hadoop:
  options: ["-D", "mapreduce.task.timeout=600000"]
  compress_output: true
dataproc:
  project: p
  cluster: c
  bucket: b
`))
	require.NoError(t, err)
	c.WithDefaults()
	require.NoError(t, c.Validate())

	assert.Equal(t, "relfreq-daily", c.Name)
	assert.Equal(t, []string{"logs/a.txt", "logs/*.gz"}, c.Input)
	assert.Equal(t, 4, c.Reducers)
	assert.False(t, *c.Combine)
	assert.Equal(t, 10000, c.MaxPairs)
	assert.Equal(t, 4, c.MaxAttempts)
	assert.Equal(t, 30, c.Hadoop.ReducerTasks)
	assert.True(t, c.Hadoop.CompressOutput)
	assert.Equal(t, "global", c.Dataproc.Region)
	assert.True(t, c.Dataproc.Enabled())
	assert.Equal(t, c.Workers, c.Units)
}

func TestLoadJobConfigUnknownField(t *testing.T) {
	_, err := LoadJobConfig(writeConfig(t, "reducer: 3\n"))
	assert.Error(t, err)
}

func TestJobConfigDefaults(t *testing.T) {
	var c JobConfig
	c.WithDefaults()
	assert.True(t, *c.Combine)
	assert.Equal(t, 1, c.Reducers)
	assert.Equal(t, "info", c.LogLevel)
}

func TestJobConfigValidate(t *testing.T) {
	type testCase struct {
		name   string
		config JobConfig
		err    string
	}
	tests := []testCase{
		{"no input", JobConfig{}, "at least one input is required"},
		{"negative pairs", JobConfig{Input: []string{"x"}, MaxPairs: -1}, "max_pairs must be >= 0, got -1"},
		{"dataproc project", JobConfig{Input: []string{"x"}, Dataproc: DataprocConfig{Cluster: "c"}}, "dataproc.project is required with dataproc.cluster"},
		{"dataproc bucket", JobConfig{Input: []string{"x"}, Dataproc: DataprocConfig{Cluster: "c", Project: "p"}}, "dataproc.bucket is required with dataproc.cluster"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.EqualError(t, tc.config.Validate(), tc.err)
		})
	}
	ok := JobConfig{Input: []string{"x"}}
	assert.NoError(t, ok.Validate())
}
