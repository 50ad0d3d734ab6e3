package gomrstats

import (
	"io"
	"net"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// redirect log to a remote port
func dialRemoteLogger(addr string) (io.Writer, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialTimeout("tcp", tcpAddr.String(), 5*time.Second)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// listen for log messages from map and reduce tasks, and copy them to stderr
func startRemoteLogListener() (string, error) {
	ln, err := net.Listen("tcp4", "0.0.0.0:0")
	if err != nil {
		return "", err
	}
	log.Infof("listening on %v for log messages", ln.Addr())

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				continue
			}
			log.Debugf("accepted remote logging connection from %s", conn.RemoteAddr())
			go io.Copy(os.Stderr, conn)
		}
	}()

	hostname, err := os.Hostname()
	if err != nil {
		return "", err
	}
	return strings.Replace(ln.Addr().String(), "0.0.0.0", hostname, 1), nil
}

type prefixLogger struct {
	prefix []byte
	w      io.Writer
}

func (p *prefixLogger) Write(b []byte) (n int, err error) {
	n, err = p.w.Write(p.prefix)
	if err != nil {
		return n, err
	}
	nn, err := p.w.Write(b)
	return n + nn, err
}

// newPrefixLogger returns a writer that behaves like w except
// that it writes a prefix before each write
func newPrefixLogger(prefix string, w io.Writer) io.Writer {
	return &prefixLogger{[]byte(prefix), w}
}
