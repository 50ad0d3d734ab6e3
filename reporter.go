package gomrstats

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
)

var (
	reporterMu  sync.Mutex
	reporterOut io.Writer = os.Stderr
)

// SetReporterOutput redirects counter and status lines, which hadoop
// streaming reads from stderr. It returns the previous writer.
func SetReporterOutput(w io.Writer) io.Writer {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	prev := reporterOut
	reporterOut = w
	return prev
}

// LogReporter logs counter and status lines at debug level. Use it when
// nothing reads the streaming protocol from stderr.
func LogReporter() io.Writer { return logReporter{} }

type logReporter struct{}

func (logReporter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		log.WithField("source", "reporter").Debug(line)
	}
	return len(p), nil
}

func report(format string, args ...interface{}) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	fmt.Fprintf(reporterOut, format, args...)
	if f, ok := reporterOut.(*os.File); ok {
		f.Sync()
	}
}

// reporter:counter:<group>,<counter>,<amount>
func Counter(group string, counter string, amount int64) {
	report("reporter:counter:%s,%s,%d\n", group, counter, amount)
}

//  reporter:status:<message>
func Status(message string) {
	report("reporter:status:%s\n", message)
}

func auditCpuTime(group string, prefix string) {
	var u syscall.Rusage
	err := syscall.Getrusage(syscall.RUSAGE_SELF, &u)
	if err != nil {
		log.Errorf("error getting Rusage: %s", err)
		return
	}
	userTime := time.Duration(u.Utime.Nano()) * time.Nanosecond
	systemTime := time.Duration(u.Stime.Nano()) * time.Nanosecond
	Counter(group, fmt.Sprintf("%s userTime (ms)", prefix), int64(userTime/time.Millisecond))
	Counter(group, fmt.Sprintf("%s systemTime (ms)", prefix), int64(systemTime/time.Millisecond))
}
