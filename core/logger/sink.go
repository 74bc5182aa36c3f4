package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

// sink writes lines to its outputs from a single goroutine. Outputs are
// flushed whenever the queue runs empty, so bursts share one syscall.
type sink struct {
	jobs chan job
	done chan struct{}

	mu     sync.RWMutex
	closed bool

	errMu sync.Mutex
	err   error

	outs []*bufio.Writer
}

// job carries a line, or a flush request when ack is set.
type job struct {
	line []byte
	ack  chan error
}

var errSinkClosed = errors.New("logger: sink closed")

func newSink(writers []io.Writer, queue int) *sink {
	s := &sink{
		jobs: make(chan job, queue),
		done: make(chan struct{}),
	}
	for _, w := range writers {
		if w != nil {
			s.outs = append(s.outs, bufio.NewWriter(w))
		}
	}
	go s.run()
	return s
}

func (s *sink) run() {
	defer close(s.done)
	for j := range s.jobs {
		if j.ack != nil {
			j.ack <- s.flush()
			continue
		}
		for _, w := range s.outs {
			if _, err := w.Write(j.line); err != nil {
				s.fail(err)
			}
		}
		if len(s.jobs) == 0 {
			if err := s.flush(); err != nil {
				s.fail(err)
			}
		}
	}
	if err := s.flush(); err != nil {
		s.fail(err)
	}
}

func (s *sink) flush() error {
	var errs []error
	for _, w := range s.outs {
		errs = append(errs, w.Flush())
	}
	return errors.Join(errs...)
}

func (s *sink) fail(err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
}

func (s *sink) firstErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// write queues a copy of p; it blocks while the queue is full.
func (s *sink) write(p []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errSinkClosed
	}
	s.jobs <- job{line: append([]byte(nil), p...)}
	return s.firstErr()
}

// sync waits until every queued line reached the outputs.
func (s *sink) sync() error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return s.firstErr()
	}
	ack := make(chan error, 1)
	s.jobs <- job{ack: ack}
	s.mu.RUnlock()
	return errors.Join(<-ack, s.firstErr())
}

func (s *sink) close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.jobs)
	}
	s.mu.Unlock()
	<-s.done
	return s.firstErr()
}
