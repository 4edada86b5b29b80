package progress

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// StderrSink pretty-prints each event to an operator's terminal, one line
// per event, e.g.:
//
//	==> deploy/terraform_apply started: applying infrastructure plan
//	==> deploy/terraform_apply ok: applying infrastructure plan
type StderrSink struct {
	Writer io.Writer
}

// NewStderrSink returns a StderrSink writing to os.Stderr.
func NewStderrSink() *StderrSink {
	return &StderrSink{Writer: os.Stderr}
}

// Handle implements Sink.
func (s *StderrSink) Handle(e Event) {
	w := s.Writer
	if w == nil {
		w = os.Stderr
	}

	marker := "==>"
	if e.Status == "failed" {
		marker = "!!!"
	}

	fmt.Fprintf(w, "%s %s/%s %s", marker, e.Component, e.Step, e.Status)
	if e.Message != "" {
		fmt.Fprintf(w, ": %s", e.Message)
	}
	fmt.Fprintln(w)
}

// JSONLogSink appends one JSON line per event to a durable file, giving
// operators a greppable audit trail of every command's steps
// (<deployment-dir>/.exasol-progress.log). This supplements spec.md's
// Progress Reporter responsibility; it does not replace the stderr sink.
type JSONLogSink struct {
	mu   sync.Mutex
	file *os.File
}

// NewJSONLogSink opens (creating if necessary) the log file at path for
// appending.
func NewJSONLogSink(path string) (*JSONLogSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, err
	}
	return &JSONLogSink{file: f}, nil
}

// Handle implements Sink. Marshal/write errors are swallowed: a broken
// audit log must never abort the operation it is merely observing.
func (s *JSONLogSink) Handle(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.file.Write(append(data, '\n'))
}

// Close closes the underlying file.
func (s *JSONLogSink) Close() error {
	return s.file.Close()
}
