package dataproc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jehiah/gomrstats/hdfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeDataproc(t *testing.T, final string) (*httptest.Server, *jobRequest) {
	var submitted jobRequest
	var polls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/projects/p/regions/r/jobs:submit", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&submitted))
		j := submitted.Job
		j.Status.State = "PENDING"
		json.NewEncoder(w).Encode(j) // nolint:errcheck
	})
	mux.HandleFunc("/v1/projects/p/regions/r/jobs/", func(w http.ResponseWriter, r *http.Request) {
		j := submitted.Job
		j.Status.State = "RUNNING"
		if atomic.AddInt32(&polls, 1) > 1 {
			j.Status.State = final
		}
		json.NewEncoder(w).Encode(j) // nolint:errcheck
	})
	return httptest.NewServer(mux), &submitted
}

func testJob() hdfs.Job {
	return hdfs.Job{
		Name:         "average-1",
		Input:        []string{"gs://b/in"},
		Output:       "gs://b/out",
		Mapper:       "bin --stage=mapper",
		Reducer:      "bin --stage=reducer",
		ReducerTasks: 3,
		CacheFiles:   []string{"gs://b/tmp/bin#bin"},
		Properties:   map[string]string{"mapreduce.job.reduces": "5"},
	}
}

func TestSubmitJob(t *testing.T) {
	srv, submitted := fakeDataproc(t, "DONE")
	defer srv.Close()
	defer func(base string, interval time.Duration) { APIBase, pollInterval = base, interval }(APIBase, pollInterval)
	APIBase, pollInterval = srv.URL, time.Millisecond

	require.NoError(t, SubmitJob(context.Background(), testJob(), srv.Client(), "p", "r", "c"))
	assert.NotEmpty(t, submitted.RequestID)
	assert.Equal(t, "average-1-"+submitted.RequestID[:8], submitted.Job.Reference.JobID)
	assert.Equal(t, "c", submitted.Job.Placement.ClusterName)
	assert.Equal(t, []string{"gs://b/tmp/bin#bin"}, submitted.Job.HadoopJob.FileURIs)
	assert.Equal(t, "5", submitted.Job.HadoopJob.Properties["mapreduce.job.reduces"])
	assert.Equal(t, "average-1", submitted.Job.HadoopJob.Properties["mapreduce.job.name"])
	assert.NotContains(t, fmt.Sprint(submitted.Job.HadoopJob.Args), "-D")
	assert.NotContains(t, fmt.Sprint(submitted.Job.HadoopJob.Args), "-files")
}

func TestSubmitJobFailed(t *testing.T) {
	srv, _ := fakeDataproc(t, "ERROR")
	defer srv.Close()
	defer func(base string, interval time.Duration) { APIBase, pollInterval = base, interval }(APIBase, pollInterval)
	APIBase, pollInterval = srv.URL, time.Millisecond

	err := SubmitJob(context.Background(), testJob(), srv.Client(), "p", "r", "c")
	assert.Regexp(t, `^job average-1-[0-9a-f]{8} ended in state ERROR$`, err)
}

func TestSubmitJobResubmit(t *testing.T) {
	defer func(base string, interval time.Duration) { APIBase, pollInterval = base, interval }(APIBase, pollInterval)
	pollInterval = time.Millisecond

	var ids []string
	for i := 0; i < 2; i++ {
		srv, submitted := fakeDataproc(t, "DONE")
		APIBase = srv.URL
		require.NoError(t, SubmitJob(context.Background(), testJob(), srv.Client(), "p", "r", "c"))
		srv.Close()
		ids = append(ids, submitted.Job.Reference.JobID)
	}
	assert.NotEqual(t, ids[0], ids[1])
	for _, id := range ids {
		assert.Regexp(t, `^average-1-[0-9a-f]{8}$`, id)
	}
}

func TestSubmitJobMissingStage(t *testing.T) {
	err := SubmitJob(context.Background(), hdfs.Job{Mapper: "m"}, http.DefaultClient, "p", "r", "c")
	assert.Error(t, err)
}
