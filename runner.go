package gomrstats

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jehiah/gomrstats/dataproc"
	"github.com/jehiah/gomrstats/hdfs"
	"github.com/jehiah/gomrstats/internal/gcloud"
	"github.com/jehiah/gomrstats/internal/storage"
	log "github.com/sirupsen/logrus"
)

// Runner submits a sequence of steps as hadoop streaming jobs, and executes
// a single stage of a step when hadoop runs this binary as a task.
type Runner struct {
	Name               string
	Steps              []Step
	InputFiles         []string
	Output             string
	ReducerTasks       int
	PassThroughOptions []string
	MapReduceOptions   []string
	CompressOutput     bool
	Dataproc           DataprocConfig

	// Stage is mapper, combiner or reducer when running as a task
	Stage        string
	StepNumber   int
	RemoteLogger string
	SubmitJob    bool

	Stdin  io.Reader
	Stdout io.Writer

	tmpPath string
	exePath string
	client  *http.Client
}

func NewRunner(name string, steps ...Step) *Runner {
	r := &Runner{
		Name:         name,
		Steps:        steps,
		ReducerTasks: 30,
		Stdin:        os.Stdin,
		Stdout:       os.Stdout,
	}
	r.setTempPath()
	return r
}

func (r *Runner) setTempPath() {
	user, err := user.Current()
	var username = ""
	if err == nil {
		username = user.Username
	}
	now := time.Now().Format("20060102-150405")
	r.tmpPath = fmt.Sprintf("/user/%s/tmp/%s.%s", username, r.Name, now)
}

// proto is the filesystem prefix for paths without a scheme
func (r *Runner) proto() string {
	if r.Dataproc.Enabled() {
		return fmt.Sprintf("gs://%s/", r.Dataproc.Bucket)
	}
	return "hdfs:///"
}

// Cleanup removes the temporary directory holding the job binary and
// intermediate output.
func (r *Runner) Cleanup(ctx context.Context) error {
	if r.Dataproc.Enabled() {
		if r.client == nil {
			return nil
		}
		return storage.DeletePrefix(ctx, r.client, r.Dataproc.Bucket, strings.TrimPrefix(r.tmpPath, "/"))
	}
	return hdfs.RemoveAll(r.tmpPath)
}

func (r *Runner) job(loggerAddress string, stepNumber int, step Step) hdfs.Job {
	var input []string
	var output string

	if stepNumber == len(r.Steps)-1 && r.Output != "" {
		output = r.Output
	} else {
		if len(r.Steps) == 1 {
			output = fmt.Sprintf("%s/output", r.tmpPath)
		} else {
			output = fmt.Sprintf("%s/step_%d/output", r.tmpPath, stepNumber)
		}
	}

	if stepNumber == 0 {
		input = r.InputFiles
	} else {
		input = append(input, fmt.Sprintf("%s/step_%d/output/part-*", r.tmpPath, stepNumber-1))
	}

	processName := filepath.Base(r.exePath)
	taskOptions := append([]string{}, r.PassThroughOptions...)
	if loggerAddress != "" {
		taskOptions = append(taskOptions, fmt.Sprintf("--remote-logger=%s", loggerAddress))
	}
	taskOptions = append(taskOptions, fmt.Sprintf("--step=%d", stepNumber))
	taskString := fmt.Sprintf("%s %s", processName, strings.Join(taskOptions, " "))

	properties := make(map[string]string)
	if r.CompressOutput {
		properties["mapreduce.output.fileoutputformat.compress"] = "true"
		properties["mapreduce.output.fileoutputformat.compress.codec"] = "org.apache.hadoop.io.compress.GzipCodec"
	}

	name := r.Name
	if len(r.Steps) != 1 {
		name = fmt.Sprintf("%s-step_%d", name, stepNumber)
	}

	// specify reducer tasks per step
	reducerTasks := r.ReducerTasks
	if step, ok := step.(StepReducerTasksCount); ok {
		reducerTasks = step.NumberReducerTasks()
	}

	j := hdfs.Job{
		Name:         name,
		CacheFiles:   []string{fmt.Sprintf("%s%s#%s", r.proto(), strings.TrimPrefix(r.exePath, "/"), processName)},
		ReducerTasks: reducerTasks,
		Input:        input,
		Output:       output,
		Mapper:       fmt.Sprintf("%s --stage=mapper", taskString),
		Reducer:      fmt.Sprintf("%s --stage=reducer", taskString),
		Options:      r.MapReduceOptions,
		Properties:   properties,
		Proto:        r.proto(),
	}
	if _, ok := step.(Combiner); ok {
		j.Combiner = fmt.Sprintf("%s --stage=combiner", taskString)
	}
	if step, ok := step.(StreamingPartitioner); ok {
		class, p := step.StreamingPartitioner()
		j.Partitioner = class
		for k, v := range p {
			properties[k] = v
		}
	}
	return j
}

func (r *Runner) copyRunningBinaryToHdfs(localExePath string) error {
	// copy the current executible binary to hadoop for use as the map reduce tasks
	r.exePath = fmt.Sprintf("%s/%s", r.tmpPath, "gomrstats_binary")
	if err := hdfs.MkdirAll(r.tmpPath); err != nil {
		return err
	}
	if err := hdfs.Put(r.exePath, localExePath); err != nil {
		return fmt.Errorf("error copying %s to hdfs %w", r.exePath, err)
	}
	return nil
}

func (r *Runner) copyRunningBinaryToGCS(ctx context.Context, localExePath string) error {
	r.exePath = fmt.Sprintf("%s/%s", r.tmpPath, "gomrstats_binary")
	f, err := os.Open(localExePath)
	if err != nil {
		return err
	}
	defer f.Close()
	name := strings.TrimPrefix(r.exePath, "/")
	log.Infof("uploading %s to gs://%s/%s", localExePath, r.Dataproc.Bucket, name)
	if err := storage.Insert(ctx, r.client, r.Dataproc.Bucket, name, "application/octet-stream", f); err != nil {
		return fmt.Errorf("error copying %s to gcs %w", r.exePath, err)
	}
	return nil
}

// Run executes one task stage when Stage is set, and otherwise submits all
// steps when SubmitJob is set.
func (r *Runner) Run(ctx context.Context) error {
	if r.StepNumber < 0 || r.StepNumber >= len(r.Steps) {
		return fmt.Errorf("invalid --step=%d (max %d)", r.StepNumber, len(r.Steps)-1)
	}
	if r.RemoteLogger != "" {
		r.redirectLogs()
	}
	if r.Stage != "" {
		return r.runTask()
	}
	if !r.SubmitJob {
		return errors.New("missing --submit-job")
	}
	return r.submit(ctx)
}

func (r *Runner) redirectLogs() {
	conn, err := dialRemoteLogger(r.RemoteLogger)
	if err != nil {
		log.Warnf("failed connecting to remote logger %s", err)
		return
	}
	hostname, _ := os.Hostname()
	w := newPrefixLogger(fmt.Sprintf("[%s %s:%d] ", hostname, r.Stage, r.StepNumber), conn)
	log.SetOutput(w)
}

func (r *Runner) runTask() error {
	s := r.Steps[r.StepNumber]
	log.Infof("starting %s step %d", r.Stage, r.StepNumber)
	var err error
	switch r.Stage {
	case "mapper":
		s, ok := s.(Mapper)
		if !ok {
			// if a step does not support mapper, it's the identity mapper of just echo std -> stdout
			_, err = io.Copy(r.Stdout, r.Stdin)
		} else {
			err = s.Mapper(r.Stdin, r.Stdout)
		}
	case "reducer":
		err = s.Reducer(r.Stdin, r.Stdout)
	case "combiner":
		s, ok := s.(Combiner)
		if !ok {
			return errors.New("step does not support Combiner interface")
		}
		err = s.Combiner(r.Stdin, r.Stdout)
	default:
		return fmt.Errorf("invalid --stage=%q", r.Stage)
	}
	auditCpuTime("gomrstats", fmt.Sprintf("%s[%d]", r.Stage, r.StepNumber))
	return err
}

func (r *Runner) submit(ctx context.Context) error {
	log.Info("submitting map reduce job")
	r.setTempPath()

	localExePath, err := filepath.EvalSymlinks("/proc/self/exe")
	if err != nil {
		return fmt.Errorf("failed locating running executable %w", err)
	}

	// only tasks on a local hadoop cluster can dial back to this host
	var loggerAddress string
	if r.Dataproc.Enabled() {
		r.client, err = gcloud.Client(ctx, r.Dataproc.Credentials, gcloud.ScopeCloudPlatform)
		if err != nil {
			return err
		}
		if err := r.copyRunningBinaryToGCS(ctx, localExePath); err != nil {
			return err
		}
	} else {
		if !hdfs.HasHadoop() {
			return errors.New("HADOOP_HOME not set; set a dataproc cluster or run locally")
		}
		if r.Output != "" && hdfs.Exists(r.Output) {
			return fmt.Errorf("output %s already exists", r.Output)
		}
		if err := r.copyRunningBinaryToHdfs(localExePath); err != nil {
			return err
		}
		loggerAddress, err = startRemoteLogListener()
		if err != nil {
			log.Warnf("remote logging disabled %s", err)
		}
	}

	if r.Output == "" {
		r.Output = fmt.Sprintf("%s/output", r.tmpPath)
	}

	for stepNumber, step := range r.Steps {
		j := r.job(loggerAddress, stepNumber, step)
		if r.Dataproc.Enabled() {
			err = dataproc.SubmitJob(ctx, j, r.client, r.Dataproc.Project, r.Dataproc.Region, r.Dataproc.Cluster)
		} else {
			err = hdfs.SubmitJob(j)
		}
		if err != nil {
			return fmt.Errorf("failed running Step %d: %w", stepNumber, err)
		}
	}

	if !r.Dataproc.Enabled() {
		files, err := hdfs.List(r.Output)
		if err != nil {
			log.Warnf("%s", err)
		}
		for _, f := range files {
			if !f.IsDir() {
				log.Infof("output %s %d bytes", f.Path, f.Size)
			}
		}
	}
	return nil
}

// ReadOutput streams the part files of the final step's output
func (r *Runner) ReadOutput(ctx context.Context) (io.ReadCloser, error) {
	if r.Dataproc.Enabled() {
		return r.readGCSOutput(ctx)
	}
	cmd := hdfs.Cat(r.Output + "/part-*")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &cmdReader{ReadCloser: stdout, cmd: cmd}, nil
}

type cmdReader struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (c *cmdReader) Close() error {
	c.ReadCloser.Close()
	return c.cmd.Wait()
}

func (r *Runner) readGCSOutput(ctx context.Context) (io.ReadCloser, error) {
	bucket := r.Dataproc.Bucket
	prefix := strings.TrimPrefix(r.Output, "/")
	if strings.HasPrefix(r.Output, "gs://") {
		chunks := strings.SplitN(strings.TrimPrefix(r.Output, "gs://"), "/", 2)
		bucket = chunks[0]
		prefix = ""
		if len(chunks) == 2 {
			prefix = chunks[1]
		}
	}
	prefix = strings.TrimSuffix(prefix, "/") + "/part-"

	var names []string
	var token string
	for {
		items, next, err := storage.List(ctx, r.client, bucket, prefix, token)
		if err != nil {
			return nil, err
		}
		for _, o := range items {
			names = append(names, o.Name)
		}
		if next == "" {
			break
		}
		token = next
	}
	sort.Strings(names)
	return &gcsReader{ctx: ctx, client: r.client, bucket: bucket, names: names}, nil
}

// gcsReader reads objects back to back, opening each one as it is reached
type gcsReader struct {
	ctx    context.Context
	client *http.Client
	bucket string
	names  []string
	cur    io.ReadCloser
}

func (g *gcsReader) Read(p []byte) (int, error) {
	for {
		if g.cur == nil {
			if len(g.names) == 0 {
				return 0, io.EOF
			}
			rc, err := storage.Get(g.ctx, g.client, g.bucket, g.names[0])
			if err != nil {
				return 0, err
			}
			g.cur, g.names = rc, g.names[1:]
		}
		n, err := g.cur.Read(p)
		if err == io.EOF {
			g.cur.Close()
			g.cur = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (g *gcsReader) Close() error {
	if g.cur != nil {
		return g.cur.Close()
	}
	return nil
}
