// Package dataproc submits hadoop streaming jobs to a Google Cloud Dataproc
// cluster and waits for them to finish.
package dataproc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/jehiah/gomrstats/hdfs"
	log "github.com/sirupsen/logrus"
)

var (
	APIBase      = "https://dataproc.googleapis.com"
	pollInterval = time.Second * 2
)

const streamingJar = "file:///usr/lib/hadoop-mapreduce/hadoop-streaming.jar"

func isTerminalState(s string) bool {
	switch s {
	case "ATTEMPT_FAILURE", "ERROR", "DONE", "CANCELLED":
		return true
	default:
		return false
	}
}

// https://cloud.google.com/dataproc/docs/reference/rest/v1/projects.regions.jobs/submit
type jobRequest struct {
	RequestID string `json:"requestId,omitempty"`
	Job       job    `json:"job"`
}
type job struct {
	Placement struct {
		ClusterName string `json:"clusterName"`
	} `json:"placement"`
	Reference struct {
		JobID string `json:"jobId,omitempty"`
	} `json:"reference,omitempty"`
	// https://cloud.google.com/dataproc/docs/reference/rest/v1/HadoopJob
	HadoopJob struct {
		Args           []string          `json:"args"`
		MainJarFileURI string            `json:"mainJarFileUri"`
		FileURIs       []string          `json:"fileUris,omitempty"`
		Properties     map[string]string `json:"properties,omitempty"`
	} `json:"hadoopJob"`
	Status struct {
		State          string `json:"state,omitempty"`
		StateStartTime string `json:"stateStartTime,omitempty"`
		Details        string `json:"details,omitempty"`
		SubState       string `json:"substate,omitempty"`
	} `json:"status,omitempty"`
}

// SubmitJob runs j on cluster and blocks until the job reaches a terminal
// state. A job that does not end in DONE is an error.
func SubmitJob(ctx context.Context, j hdfs.Job, client *http.Client, project, region, cluster string) error {
	if j.Mapper == "" || j.Reducer == "" {
		return errors.New("missing argument Mapper or Reducer")
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
	// properties are sent separately from the jar args
	j.Properties = nil
	cacheFiles := j.CacheFiles
	j.CacheFiles = nil

	var req jobRequest
	req.RequestID = uuid.New().String()
	// job ids are unique per project so a resubmitted name needs a suffix
	req.Job.Reference.JobID = fmt.Sprintf("%s-%s", j.Name, req.RequestID[:8])
	req.Job.Placement.ClusterName = cluster
	req.Job.HadoopJob.MainJarFileURI = streamingJar
	req.Job.HadoopJob.Args = j.JarArgs()
	req.Job.HadoopJob.FileURIs = cacheFiles
	req.Job.HadoopJob.Properties = p

	resource := fmt.Sprintf("%s/v1/projects/%s/regions/%s/jobs:submit", APIBase, url.PathEscape(project), url.PathEscape(region))
	job, err := post(ctx, client, resource, req)
	if err != nil {
		return err
	}
	state := job.Status.State
	logger := log.WithField("job", job.Reference.JobID)
	logger.Infof("status:%s", state)

	resource = fmt.Sprintf("%s/v1/projects/%s/regions/%s/jobs/%s", APIBase, url.PathEscape(project), url.PathEscape(region), url.PathEscape(job.Reference.JobID))
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	var i int
	for !isTerminalState(state) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		i++
		job, err = get(ctx, client, resource)
		if err != nil {
			return err
		}
		// if state changes or 30s passes by
		if state != job.Status.State || i%15 == 0 {
			state = job.Status.State
			logger.Infof("status:%s", state)
		}
	}
	if state != "DONE" {
		if job.Status.Details != "" {
			logger.Error(job.Status.Details)
		}
		return fmt.Errorf("job %s ended in state %s", job.Reference.JobID, state)
	}
	return nil
}

func do(client *http.Client, req *http.Request) (*job, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		log.Error(string(respBody))
		return nil, fmt.Errorf("got status code %d", resp.StatusCode)
	}
	var j job
	if err := json.Unmarshal(respBody, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

func get(ctx context.Context, client *http.Client, resource string) (*job, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", resource, nil)
	if err != nil {
		return nil, err
	}
	return do(client, req)
}

func post(ctx context.Context, client *http.Client, resource string, jr jobRequest) (*job, error) {
	body, err := json.Marshal(jr)
	if err != nil {
		return nil, err
	}
	log.Infof("Submitting job %q to Dataproc cluster %q", jr.Job.Reference.JobID, jr.Job.Placement.ClusterName)
	log.Debug(resource)
	log.Debugf("args: %q", jr.Job.HadoopJob.Args)
	for k, v := range jr.Job.HadoopJob.Properties {
		log.Debugf("   -D %s=%v", k, v)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", resource, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return do(client, req)
}
