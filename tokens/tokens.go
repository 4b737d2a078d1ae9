// Package tokens delivers container identifiers as an ordered stream of
// whitespace-separated tokens. A stream ends with io.EOF once its writer
// closes it.
package tokens

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// ErrClosed is returned by Next after Close.
var ErrClosed = errors.New("token stream closed")

// Stream is an ordered token source with a blocking read.
type Stream interface {
	// Next blocks until a token is available, the stream ends (io.EOF) or
	// ctx is done.
	Next(ctx context.Context) (string, error)
	Close() error
}

// Opener opens a fresh stream, once per repetition.
type Opener interface {
	Open(ctx context.Context) (Stream, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context) (Stream, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context) (Stream, error) { return f(ctx) }

// Path opens a named pipe or regular file for reading. Opening a pipe
// blocks until a writer connects.
type Path string

// Open opens the path read-only and streams its tokens.
func (p Path) Open(ctx context.Context) (Stream, error) {
	type opened struct {
		f   *os.File
		err error
	}

	ch := make(chan opened, 1)

	go func() {
		f, err := os.OpenFile(string(p), os.O_RDONLY, 0)
		ch <- opened{f, err}
	}()

	select {
	case o := <-ch:
		if o.err != nil {
			return nil, fmt.Errorf("open identifier channel %s: %w", p, o.err)
		}

		return NewReaderStream(o.f), nil

	case <-ctx.Done():
		// Release the pipe if a writer shows up later.
		go func() {
			if o := <-ch; o.f != nil {
				o.f.Close()
			}
		}()

		return nil, ctx.Err()
	}
}

type item struct {
	token string
	err   error
}

type readerStream struct {
	rc    io.ReadCloser
	items chan item
	done  chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// NewReaderStream splits rc into whitespace-separated tokens. The stream
// owns rc and closes it on Close.
func NewReaderStream(rc io.ReadCloser) Stream {
	s := &readerStream{
		rc:    rc,
		items: make(chan item),
		done:  make(chan struct{}),
	}

	go s.pump()

	return s
}

func (s *readerStream) pump() {
	defer close(s.items)

	scanner := bufio.NewScanner(s.rc)
	scanner.Split(bufio.ScanWords)

	for scanner.Scan() {
		select {
		case s.items <- item{token: scanner.Text()}:
		case <-s.done:
			return
		}
	}

	if err := scanner.Err(); err != nil {
		select {
		case s.items <- item{err: err}:
		case <-s.done:
		}
	}
}

func (s *readerStream) Next(ctx context.Context) (string, error) {
	select {
	case <-s.done:
		return "", ErrClosed
	default:
	}

	select {
	case it, ok := <-s.items:
		if !ok {
			return "", io.EOF
		}

		if it.err != nil {
			return "", fmt.Errorf("read token: %w", it.err)
		}

		return it.token, nil

	case <-s.done:
		return "", ErrClosed

	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *readerStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.closeErr = s.rc.Close()
	})

	return s.closeErr
}

type chanStream struct {
	ch   <-chan string
	done chan struct{}
	once sync.Once
}

// FromChan streams tokens sent on ch until ch is closed.
func FromChan(ch <-chan string) Stream {
	return &chanStream{ch: ch, done: make(chan struct{})}
}

func (s *chanStream) Next(ctx context.Context) (string, error) {
	select {
	case <-s.done:
		return "", ErrClosed
	default:
	}

	select {
	case tok, ok := <-s.ch:
		if !ok {
			return "", io.EOF
		}

		return tok, nil

	case <-s.done:
		return "", ErrClosed

	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *chanStream) Close() error {
	s.once.Do(func() { close(s.done) })

	return nil
}
