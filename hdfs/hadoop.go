package hdfs

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// HasHadoop reports whether a hadoop install is configured via $HADOOP_HOME
func HasHadoop() bool {
	return os.Getenv("HADOOP_HOME") != ""
}

// hadoop builds a command for the hadoop launcher under $HADOOP_HOME
func hadoop(args ...string) *exec.Cmd {
	return exec.Command(filepath.Join(os.Getenv("HADOOP_HOME"), "bin", "hadoop"), args...)
}

// shell runs `hadoop fs <args>` with its output on stderr
func shell(args ...string) error {
	cmd := hadoop(append([]string{"fs"}, args...)...)
	log.Debug(cmd.Args)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

var (
	jarMu     sync.Mutex
	cachedJar string
	jarName   = regexp.MustCompile(`^hadoop.*streaming.*\.jar$`)
)

// StreamingJar locates the hadoop streaming jar. $HADOOP_STREAMING_JAR wins,
// otherwise the first hadoop*streaming*.jar under $HADOOP_HOME is used.
func StreamingJar() (string, error) {
	jarMu.Lock()
	defer jarMu.Unlock()
	if cachedJar != "" {
		return cachedJar, nil
	}
	if jar := os.Getenv("HADOOP_STREAMING_JAR"); jar != "" {
		cachedJar = jar
		return jar, nil
	}
	home := os.Getenv("HADOOP_HOME")
	if home == "" {
		return "", errors.New("env HADOOP_HOME not set")
	}
	jar, err := findStreamingJar(home)
	if err != nil {
		return "", err
	}
	cachedJar = jar
	return jar, nil
}

func findStreamingJar(root string) (string, error) {
	var found string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// unreadable directories are skipped
			return nil
		}
		if !d.IsDir() && jarName.MatchString(d.Name()) {
			found = p
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", fmt.Errorf("no streaming jar under %s", root)
	}
	return found, nil
}

// MkdirAll creates remote along with any missing parents
func MkdirAll(remote string) error {
	return shell("-mkdir", "-p", remote)
}

// Exists reports whether remote is present on the cluster filesystem
func Exists(remote string) bool {
	return shell("-test", "-e", remote) == nil
}

// Put copies local files to the remote path
func Put(remote string, local ...string) error {
	return shell(append(append([]string{"-put"}, local...), remote)...)
}

// RemoveAll deletes remote and everything below it
func RemoveAll(remote string) error {
	return shell("-rm", "-r", remote)
}

// Cat returns an unstarted command that streams the files matching glob
func Cat(glob string) *exec.Cmd {
	cmd := hadoop("fs", "-cat", glob)
	log.Debug(cmd.Args)
	return cmd
}

// File is one entry of a directory listing
type File struct {
	Mode     string
	Replicas int64 // zero for directories
	Owner    string
	Group    string
	Size     int64
	Modified time.Time
	Path     string
}

func (f File) IsDir() bool { return strings.HasPrefix(f.Mode, "d") }

// List returns the entries of the remote directory
func List(remote string) ([]File, error) {
	cmd := hadoop("fs", "-ls", remote)
	log.Debug(cmd.Args)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w %s", remote, err, strings.TrimSpace(stderr.String()))
	}
	return parseListing(bytes.NewReader(out))
}

// parseListing reads `hadoop fs -ls` output. Lines that are not entries are
// logged and skipped.
func parseListing(r io.Reader) ([]File, error) {
	var files []File
	s := bufio.NewScanner(r)
	for s.Scan() {
		line := s.Text()
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "Found ") {
			continue
		}
		f, err := parseEntry(line)
		if err != nil {
			log.Warnf("skipping ls line %q: %s", line, err)
			continue
		}
		files = append(files, f)
	}
	return files, s.Err()
}

// parseEntry parses one listing line
//
//	mode replicas owner group size date time path
//
// where replicas is "-" for directories and path may contain spaces.
func parseEntry(line string) (File, error) {
	fields := strings.Fields(line)
	if len(fields) < 8 {
		return File{}, fmt.Errorf("want 8 fields got %d", len(fields))
	}
	f := File{
		Mode:  fields[0],
		Owner: fields[2],
		Group: fields[3],
		Path:  strings.Join(fields[7:], " "),
	}
	var err error
	if fields[1] != "-" {
		if f.Replicas, err = strconv.ParseInt(fields[1], 10, 64); err != nil {
			return File{}, err
		}
	}
	if f.Size, err = strconv.ParseInt(fields[4], 10, 64); err != nil {
		return File{}, err
	}
	if f.Modified, err = time.Parse("2006-01-02 15:04", fields[5]+" "+fields[6]); err != nil {
		return File{}, err
	}
	return f, nil
}
