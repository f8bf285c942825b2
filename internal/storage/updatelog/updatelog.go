// Package updatelog implements the per-task append-only checkpoint log.
//
// Each log is a sequence of length-delimited wire.Record entries. The
// file is opened with O_SYNC so every successful append is durable
// before the call returns; there is no write buffering.
package updatelog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/heronworks/heron/internal/wire"
)

// File is the subset of *os.File the log writes through. It allows
// fault injection in tests.
type File interface {
	Write(p []byte) (n int, err error)
	Sync() error
	Close() error
}

// Log is an append-only checkpoint log for one task's update stream.
// The file handle is kept open for the lifetime of the task so that
// appending records stays cheap.
type Log struct {
	mu     sync.Mutex
	file   File
	path   string
	closed bool
}

const logFileMode = 0o647

// Open creates the log's parent directory if missing and opens the
// file with create, read-write, append, and synchronous-write
// semantics.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR|os.O_SYNC, logFileMode)
	if err != nil {
		return nil, fmt.Errorf("failed to open '%s' for status updates: %w", path, err)
	}

	return &Log{file: file, path: path}, nil
}

// NewWithFile wraps an already-open file. Used by tests to inject
// write failures; Replay is unavailable on such a log.
func NewWithFile(path string, file File) *Log {
	return &Log{file: file, path: path}
}

// Append durably writes one record. The record is fully flushed to
// stable storage before Append returns.
func (l *Log) Append(r wire.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	buf := wire.AppendDelimited(nil, wire.MarshalRecord(r))
	if _, err := l.file.Write(buf); err != nil {
		return fmt.Errorf("failed to write %s record to '%s': %w", r.Type, l.path, err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync '%s': %w", l.path, err)
	}
	return nil
}

// Replay reads the log from the beginning and invokes handler for each
// record in order. It opens a fresh read-only handle, so it can run
// before or between appends. A record that fails to decode (including
// a torn record at the tail) is reported as ErrCorruptRecord.
func (l *Log) Replay(handler func(wire.Record) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	file, err := os.Open(l.path)
	if err != nil {
		return fmt.Errorf("failed to open '%s' for replay: %w", l.path, err)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	for {
		msg, err := wire.ReadDelimited(reader)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w in '%s': %v", ErrCorruptRecord, l.path, err)
		}

		record, err := wire.UnmarshalRecord(msg)
		if err != nil {
			return fmt.Errorf("%w in '%s': %v", ErrCorruptRecord, l.path, err)
		}

		if err := handler(record); err != nil {
			return err
		}
	}
}

// Path returns the file path of the log.
func (l *Log) Path() string {
	return l.path
}

// Close closes the underlying file. Close is idempotent.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}
