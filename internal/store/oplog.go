// Package store implements the per-process operation log: an append-only,
// fsynced, line-oriented file of protocol messages with an in-memory index
// that can be rebuilt by replaying the file.
package store

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/rodrigocitadin/tpc-audit/internal/message"
	"github.com/rodrigocitadin/tpc-audit/internal/metrics"
)

var (
	ErrNotFound    = errors.New("no message at offset")
	ErrDuplicateID = errors.New("duplicate message id")
	ErrClosed      = errors.New("operation log closed")
)

type Option func(*OpLog)

func WithLogger(logger *zap.Logger) Option {
	return func(l *OpLog) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *OpLog) {
		l.metrics = m
	}
}

// OpLog is the operation log of a single process. Keys are the per-log
// sequence numbers 1, 2, 3... assigned by Append.
type OpLog struct {
	path   string
	shared *Shared

	// guarded by shared.mu
	seqno        uint32
	file         *os.File
	needsNewline bool
	err          error

	logger  *zap.Logger
	metrics *metrics.Metrics
}

func newOpLog(path string, entries map[uint32]message.Message, opts []Option) *OpLog {
	l := &OpLog{
		path:   path,
		shared: newShared(entries),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(zap.String("component", "oplog"), zap.String("path", path))
	return l
}

// New creates the log file at path, truncating any previous content.
func New(path string, opts ...Option) (*OpLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create operation log: %w", err)
	}

	l := newOpLog(path, nil, opts)
	l.file = f
	l.logger.Debug("Created operation log")
	return l, nil
}

// FromFile rebuilds a log by replaying the file at path. Persisted ids are
// kept as the keys and the sequence resumes after the highest one. Any line
// that does not parse, or that repeats an id, fails the whole load.
func FromFile(path string, opts ...Option) (*OpLog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open operation log: %w", err)
	}
	defer f.Close()

	entries := make(map[uint32]message.Message)
	var (
		seqno        uint32
		needsNewline bool
		lineNo       int
	)

	reader := bufio.NewReader(f)
	for {
		line, readErr := reader.ReadBytes('\n')
		if readErr != nil && readErr != io.EOF {
			return nil, fmt.Errorf("%s: read line %d: %w", path, lineNo+1, readErr)
		}
		if len(line) > 0 {
			lineNo++
			m, err := message.Parse(line)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
			}
			if _, dup := entries[m.ID]; dup {
				return nil, fmt.Errorf("%s:%d: %w %d", path, lineNo, ErrDuplicateID, m.ID)
			}
			entries[m.ID] = m
			seqno = max(seqno, m.ID)
			needsNewline = !bytes.HasSuffix(line, []byte("\n"))
		}
		if readErr == io.EOF {
			break
		}
	}

	l := newOpLog(path, entries, opts)
	l.seqno = seqno
	l.needsNewline = needsNewline
	if l.metrics != nil {
		l.metrics.Replayed.Add(float64(len(entries)))
	}
	l.logger.Info("Replayed operation log", zap.Int("messages", len(entries)), zap.Uint32("seqno", seqno))
	return l, nil
}

// Append records one protocol event. The message is keyed and stamped with
// the next sequence number, written as one line and synced before it becomes
// visible through the index. After a write or sync failure the log refuses
// every further append with the same error.
func (l *OpLog) Append(kind message.Kind, txID, senderID string, opID uint32) (message.Message, error) {
	l.shared.mu.Lock()
	defer l.shared.mu.Unlock()

	if l.err != nil {
		return message.Message{}, l.err
	}

	m := message.Reconstruct(kind, l.seqno+1, txID, senderID, opID)
	line, err := m.MarshalLine()
	if err != nil {
		return message.Message{}, err
	}

	if l.file == nil {
		if err := l.reopen(); err != nil {
			return message.Message{}, l.fail(err)
		}
	}
	if _, err := l.file.Write(line); err != nil {
		return message.Message{}, l.fail(fmt.Errorf("write message %d: %w", m.ID, err))
	}
	if err := l.file.Sync(); err != nil {
		return message.Message{}, l.fail(fmt.Errorf("sync message %d: %w", m.ID, err))
	}

	l.seqno = m.ID
	l.shared.entries[m.ID] = m

	if l.metrics != nil {
		l.metrics.Appends.WithLabelValues(kind.String()).Inc()
	}
	l.logger.Debug("Appended message",
		zap.Uint32("id", m.ID),
		zap.Stringer("kind", kind),
		zap.String("txid", txID))

	return m, nil
}

// reopen opens a replayed log for appending.
func (l *OpLog) reopen() error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("reopen operation log: %w", err)
	}
	if l.needsNewline {
		if _, err := f.Write([]byte("\n")); err != nil {
			f.Close()
			return fmt.Errorf("terminate last record: %w", err)
		}
		l.needsNewline = false
	}
	l.file = f
	return nil
}

func (l *OpLog) fail(err error) error {
	l.err = err
	if l.metrics != nil {
		l.metrics.AppendFailures.Inc()
	}
	l.logger.Error("Operation log append failed", zap.Error(err))
	return err
}

// Read returns the message stored under offset.
func (l *OpLog) Read(offset uint32) (message.Message, error) {
	m, ok := l.shared.Get(offset)
	if !ok {
		return message.Message{}, fmt.Errorf("%w %d", ErrNotFound, offset)
	}
	return m, nil
}

// Handle returns the shared owner of the in-memory index.
func (l *OpLog) Handle() *Shared {
	return l.shared
}

func (l *OpLog) Path() string {
	return l.path
}

// Seqno is the highest key assigned or replayed so far.
func (l *OpLog) Seqno() uint32 {
	l.shared.mu.RLock()
	defer l.shared.mu.RUnlock()
	return l.seqno
}

// Close releases the backing file. The index stays readable.
func (l *OpLog) Close() error {
	l.shared.mu.Lock()
	defer l.shared.mu.Unlock()

	if l.err == nil {
		l.err = ErrClosed
	}
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
