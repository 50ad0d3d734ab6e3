package main

import (
	"bytes"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jehiah/gomrstats"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	out, _, err := executeReporting(t, stdin, args...)
	return out, err
}

// executeReporting also returns what was written to the reporter output
func executeReporting(t *testing.T, stdin string, args ...string) (string, string, error) {
	cmd := newRootCmd()
	var out, reported bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	prev := gomrstats.SetReporterOutput(&reported)
	defer gomrstats.SetReporterOutput(prev)
	err := cmd.Execute()
	return out.String(), reported.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "gomrstats v"+gomrstats.VERSION+"\n", out)
}

func TestAverageStdin(t *testing.T) {
	out, err := execute(t, "10.0.0.1 a 4\n10.0.0.1 b 8\n10.0.0.2 z bad\n", "average", "-i", "-")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1\t6.0\n", out)
}

func TestLocalRunKeepsCountersOffStderr(t *testing.T) {
	var logged bytes.Buffer
	log.SetOutput(&logged)
	level := log.GetLevel()
	defer func() {
		log.SetOutput(os.Stderr)
		log.SetLevel(level)
	}()

	out, reported, err := executeReporting(t, "10.0.0.1 a 4\n10.0.0.1 b 8\n", "average", "-i", "-", "--log-level=debug")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1\t6.0\n", out)
	assert.Empty(t, reported)
	assert.Contains(t, logged.String(), "reporter:counter:")
}

func TestRelfreqFilesToParts(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a b a c\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b c"), 0o644))
	outDir := filepath.Join(dir, "out")
	db := filepath.Join(dir, "relfreq.db")

	_, err := execute(t, "", "relfreq",
		"-i", filepath.Join(dir, "*.txt"),
		"-o", outDir,
		"-r", "1",
		"--max-pairs", "1",
		"--sink", "sqlite://"+db+"?table=relfreq",
	)
	require.NoError(t, err)

	b, err := os.ReadFile(filepath.Join(outDir, "part-00000"))
	require.NoError(t, err)
	assert.Equal(t, "a\t{b: 0.5, c: 0.5}\nb\t{a: 0.3333333333333333, c: 0.6666666666666666}\n", string(b))

	conn, err := sql.Open("sqlite", db)
	require.NoError(t, err)
	defer conn.Close()
	var v string
	require.NoError(t, conn.QueryRow("SELECT result_value FROM relfreq WHERE result_key = ?", "a").Scan(&v))
	assert.Equal(t, "{b: 0.5, c: 0.5}", v)
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.txt")
	require.NoError(t, os.WriteFile(input, []byte("k x 1\nk y 2\n"), 0o644))
	config := filepath.Join(dir, "job.yaml")
	require.NoError(t, os.WriteFile(config, []byte("input: ["+input+"]\nreducers: 3\nlog_level: warn\n"), 0o644))

	out, err := execute(t, "", "average", "-c", config, "--combine=false")
	require.NoError(t, err)
	assert.Equal(t, "k\t1.5\n", out)
}

func TestErrors(t *testing.T) {
	_, err := execute(t, "", "average")
	assert.EqualError(t, err, "at least one input is required")

	_, err = execute(t, "", "average", "-i", filepath.Join(t.TempDir(), "*.missing"))
	assert.ErrorContains(t, err, "no input matched")

	_, err = execute(t, "", "average", "-i", "-", "--log-level", "loud")
	assert.Error(t, err)
}

func TestStage(t *testing.T) {
	out, err := execute(t, "k x 3\n", "average", "--stage", "mapper")
	require.NoError(t, err)
	assert.Equal(t, "\"k\"\t[3,1]\n", out)

	out, err = execute(t, "[\"a\",\"b\"]\t2\n[\"a\",\"c\"]\t2\n", "relfreq", "--stage", "reducer")
	require.NoError(t, err)
	assert.Equal(t, "a\t{b: 0.5, c: 0.5}\n", out)
}
