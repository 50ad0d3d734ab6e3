package hdfs

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Job is one hadoop streaming invocation
type Job struct {
	Name         string
	Input        []string
	Output       string
	Mapper       string
	Reducer      string
	Combiner     string
	Options      []string
	Properties   map[string]string // -D key=value
	Partitioner  string            // -partitioner
	ReducerTasks int
	CacheFiles   []string // -files
	Files        []string // -file
	// Proto is the filesystem prefix for paths given without a scheme.
	// It defaults to hdfs:///
	Proto string
}

// absolutePath qualifies path with proto unless it already has a scheme
func absolutePath(path, proto string) string {
	if strings.Contains(path, "://") {
		return path
	}
	if proto == "" {
		proto = "hdfs:///"
	}
	return strings.TrimSuffix(proto, "/") + "/" + strings.TrimPrefix(path, "/")
}

// JarArgs are the hadoop-streaming.jar arguments for the job. Generic
// options (-D, -files) come before the streaming command options.
func (j Job) JarArgs() []string {
	var args []string
	var keys []string
	for k := range j.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-D", fmt.Sprintf("%s=%s", k, j.Properties[k]))
	}
	if len(j.CacheFiles) > 0 {
		var s []string
		for _, f := range j.CacheFiles {
			s = append(s, absolutePath(f, j.Proto))
		}
		args = append(args, "-files", strings.Join(s, ","))
	}
	// important for this to be the end of the genericOptions, and beginning of the command options
	// this allows users to specify "-D ....", or "-outputformat"
	args = append(args, j.Options...)

	for _, f := range j.Input {
		args = append(args, "-input", absolutePath(f, j.Proto))
	}
	for _, f := range j.Files {
		args = append(args, "-file", f)
	}
	args = append(args, "-output", absolutePath(j.Output, j.Proto))
	args = append(args, "-mapper", j.Mapper)
	if j.Combiner != "" {
		args = append(args, "-combiner", j.Combiner)
	}
	args = append(args, "-reducer", j.Reducer)
	if j.Partitioner != "" {
		args = append(args, "-partitioner", j.Partitioner)
	}
	return args
}

func (j Job) validate() error {
	if j.Mapper == "" || j.Reducer == "" {
		return errors.New("missing argument Mapper or Reducer")
	}
	return nil
}

func SubmitJob(j Job) error {
	// http://hadoop.apache.org/docs/r1.1.1/streaming.html
	// https://hadoop.apache.org/docs/r2.9.0/hadoop-streaming/HadoopStreaming.html
	if err := j.validate(); err != nil {
		return err
	}
	jar, err := StreamingJar()
	if err != nil {
		log.Errorf("failed finding streaming jar %s", err)
		return err
	}

	p := make(map[string]string, len(j.Properties)+2)
	for k, v := range j.Properties {
		p[k] = v
	}
	if _, ok := p["mapreduce.job.name"]; !ok {
		p["mapreduce.job.name"] = j.Name
	}
	if _, ok := p["mapreduce.job.reduces"]; !ok {
		p["mapreduce.job.reduces"] = fmt.Sprintf("%d", j.ReducerTasks)
	}
	j.Properties = p

	args := append([]string{"jar", jar}, j.JarArgs()...)
	cmd := hadoop(args...)
	log.Info(cmd.Args)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
