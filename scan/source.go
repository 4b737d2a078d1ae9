// Package scan correlates monitor and execution logs with the containers
// and contract calls of a benchmark repetition.
package scan

import (
	"io"
	"os"
	"strings"
)

// Source opens a fresh reader over a log. Each scan opens its own reader so
// concurrent scans never share a read offset.
type Source interface {
	Open() (io.ReadCloser, error)
	String() string
}

// File is a log on disk.
type File string

// Open opens the file read-only.
func (f File) Open() (io.ReadCloser, error) {
	return os.Open(string(f))
}

func (f File) String() string { return string(f) }

// Text is an in-memory log.
type Text string

// Open returns a reader over the text.
func (t Text) Open() (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(string(t))), nil
}

func (t Text) String() string { return "<memory>" }
