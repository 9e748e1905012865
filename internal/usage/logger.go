package usage

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultBufferSize    = 1000
	defaultFlushInterval = 5 * time.Second
	batchFlushThreshold  = 50
	flushTimeout         = 30 * time.Second
)

// Logger buffers entries in a channel and flushes them to the store in
// batches, either when the batch fills or on a timer. Write never blocks;
// a full buffer drops the entry with a warning.
type Logger struct {
	store  Store
	buffer chan *Entry
	done   chan struct{}
	wg     sync.WaitGroup
	writes sync.WaitGroup
	closed atomic.Bool
}

// NewLogger starts the background flush loop.
func NewLogger(store Store) *Logger {
	l := &Logger{
		store:  store,
		buffer: make(chan *Entry, defaultBufferSize),
		done:   make(chan struct{}),
	}
	l.wg.Add(1)
	go l.flushLoop()
	return l
}

// Write queues an entry without blocking the request path.
func (l *Logger) Write(entry *Entry) {
	if entry == nil || l.closed.Load() {
		return
	}

	// Keeps Close from closing the buffer mid-send.
	l.writes.Add(1)
	defer l.writes.Done()
	if l.closed.Load() {
		return
	}

	select {
	case l.buffer <- entry:
	default:
		slog.Warn("usage buffer full, dropping entry",
			"provider", entry.Provider, "model", entry.Model)
	}
}

// Close flushes remaining entries and closes the store. Idempotent.
func (l *Logger) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	l.writes.Wait()
	close(l.done)
	l.wg.Wait()
	return l.store.Close()
}

func (l *Logger) flushLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(defaultFlushInterval)
	defer ticker.Stop()

	batch := make([]*Entry, 0, batchFlushThreshold)

	for {
		select {
		case entry := <-l.buffer:
			batch = append(batch, entry)
			if len(batch) >= batchFlushThreshold {
				l.flushBatch(batch)
				batch = make([]*Entry, 0, batchFlushThreshold)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				l.flushBatch(batch)
				batch = make([]*Entry, 0, batchFlushThreshold)
			}

		case <-l.done:
			// closed is already set, so no new sends can start.
			close(l.buffer)
			for entry := range l.buffer {
				batch = append(batch, entry)
			}
			l.flushBatch(batch)
			return
		}
	}
}

func (l *Logger) flushBatch(batch []*Entry) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := l.store.WriteBatch(ctx, batch); err != nil {
		slog.Error("failed to write usage batch", "error", err, "count", len(batch))
	}
}
