package turnlog

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Logger provides async buffered logging with batch writes.
// It collects records in a channel and flushes them to storage either
// when the batch is full or at regular intervals.
type Logger struct {
	store         Store
	config        Config
	buffer        chan *Record
	done          chan struct{}
	wg            sync.WaitGroup
	flushInterval time.Duration
}

// LoggerInterface defines the interface for loggers (both real and noop)
type LoggerInterface interface {
	Write(record *Record)
	Close() error
}

// NewLogger creates a new async buffered Logger.
// The logger starts a background goroutine for flushing records.
func NewLogger(store Store, cfg Config) *Logger {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	l := &Logger{
		store:         store,
		config:        cfg,
		buffer:        make(chan *Record, cfg.BufferSize),
		done:          make(chan struct{}),
		flushInterval: cfg.FlushInterval,
	}

	l.wg.Add(1)
	go l.flushLoop()

	return l
}

// Write queues a record for async writing.
// This method is non-blocking. If the buffer is full, the record is
// dropped and a warning is logged.
func (l *Logger) Write(record *Record) {
	if record == nil {
		return
	}

	select {
	case l.buffer <- record:
	default:
		slog.Warn("turn log buffer full, dropping record",
			"session_id", record.SessionID,
			"detector", record.Detector,
		)
	}
}

// Close stops the logger and flushes remaining records.
// This should be called during graceful shutdown.
func (l *Logger) Close() error {
	close(l.done)
	l.wg.Wait()
	return l.store.Close()
}

// flushLoop runs in the background and periodically flushes the buffer.
func (l *Logger) flushLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()

	batch := make([]*Record, 0, 100)

	for {
		select {
		case record := <-l.buffer:
			batch = append(batch, record)
			if len(batch) >= 100 {
				l.flushBatch(batch)
				batch = make([]*Record, 0, 100)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				l.flushBatch(batch)
				batch = make([]*Record, 0, 100)
			}

		case <-l.done:
			// Shutdown: drain remaining records from the buffer.
			close(l.buffer)
			for record := range l.buffer {
				batch = append(batch, record)
			}
			if len(batch) > 0 {
				l.flushBatch(batch)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := l.store.Flush(ctx); err != nil {
				slog.Error("failed to flush turn log store", "error", err)
			}
			cancel()
			return
		}
	}
}

// flushBatch writes a batch of records to the store.
func (l *Logger) flushBatch(batch []*Record) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := l.store.WriteBatch(ctx, batch); err != nil {
		slog.Error("failed to write turn log batch",
			"error", err,
			"count", len(batch),
		)
	}
}

// NoopLogger is a logger that does nothing (used when logging is disabled)
type NoopLogger struct{}

// Write does nothing
func (l *NoopLogger) Write(_ *Record) {}

// Close does nothing
func (l *NoopLogger) Close() error {
	return nil
}
