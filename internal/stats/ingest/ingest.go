// SPDX-License-Identifier: MIT

// Package ingest buffers telemetry events produced by request middleware
// and the save/rks/leaderboard handlers, and drains them into the stats
// database in batches rather than one row per event.
package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/phicloud/phi-backend/internal/log"
	"github.com/phicloud/phi-backend/internal/stats/storage"
)

// Queue is an unbounded in-memory buffer of pending events with a single
// draining worker. Track never blocks the caller; under sustained overload
// the buffer grows until the next drain, trading memory for never stalling
// a request on telemetry. A crash before the next drain loses the buffered
// events — acceptable per spec, since a graceful shutdown always drains
// first (see Run's ctx.Done branch).
type Queue struct {
	store         *storage.Storage
	batchSize     int
	flushInterval time.Duration

	mu     sync.Mutex
	buf    []storage.EventInsert
	closed bool

	wake chan struct{}
}

// New creates a Queue. batchSize and flushInterval come from
// config.StatsConfig (BatchSize, FlushIntervalMs); a drain happens on
// whichever triggers first.
func New(store *storage.Storage, batchSize int, flushInterval time.Duration) *Queue {
	if batchSize <= 0 {
		batchSize = 1
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	return &Queue{
		store:         store,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		wake:          make(chan struct{}, 1),
	}
}

// Name identifies this worker to the daemon manager.
func (q *Queue) Name() string { return "stats-ingest" }

// Track enqueues one event. Safe to call concurrently from many request
// goroutines. A no-op after the queue has been drained on shutdown.
func (q *Queue) Track(e storage.EventInsert) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.buf = append(q.buf, e)
	full := len(q.buf) >= q.batchSize
	q.mu.Unlock()

	if full {
		select {
		case q.wake <- struct{}{}:
		default:
		}
	}
}

// Run drains the queue on batch_size or flush_interval, whichever comes
// first, until ctx is cancelled, at which point it performs one final
// drain of everything still buffered before returning.
func (q *Queue) Run(ctx context.Context) error {
	ticker := time.NewTicker(q.flushInterval)
	defer ticker.Stop()

	logger := log.L().With().Str("worker", q.Name()).Logger()

	for {
		select {
		case <-ctx.Done():
			q.mu.Lock()
			q.closed = true
			q.mu.Unlock()
			if err := q.drain(context.Background()); err != nil {
				logger.Error().Err(err).Msg("final drain failed")
			}
			return nil
		case <-ticker.C:
			if err := q.drain(ctx); err != nil {
				logger.Error().Err(err).Msg("periodic drain failed")
			}
		case <-q.wake:
			if err := q.drain(ctx); err != nil {
				logger.Error().Err(err).Msg("batch-size drain failed")
			}
		}
	}
}

// drain repeatedly pops up to batchSize events and inserts them, looping
// until the buffer is empty (a single tick can exceed one batch if events
// accumulated faster than flush_interval).
func (q *Queue) drain(ctx context.Context) error {
	for {
		batch := q.takeBatch()
		if len(batch) == 0 {
			return nil
		}
		if err := q.store.InsertEvents(ctx, batch); err != nil {
			return err
		}
		if len(batch) < q.batchSize {
			return nil
		}
	}
}

func (q *Queue) takeBatch() []storage.EventInsert {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		return nil
	}
	n := q.batchSize
	if n > len(q.buf) {
		n = len(q.buf)
	}
	batch := make([]storage.EventInsert, n)
	copy(batch, q.buf[:n])
	q.buf = q.buf[n:]
	return batch
}
