// SPDX-License-Identifier: MIT

package ingest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/phicloud/phi-backend/internal/stats/storage"
)

func openTestStore(t *testing.T) *storage.Storage {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "stats.sqlite"))
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestQueue_DrainsOnBatchSize(t *testing.T) {
	store := openTestStore(t)
	q := New(store, 5, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = q.Run(ctx)
		close(done)
	}()

	for i := 0; i < 5; i++ {
		q.Track(storage.EventInsert{TsUTC: time.Now()})
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		var count int64
		_ = store.DB.QueryRow("SELECT COUNT(1) FROM events").Scan(&count)
		if count == 5 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("events not drained within deadline, count=%d", count)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	<-done
}

func TestQueue_DrainsOnShutdown(t *testing.T) {
	store := openTestStore(t)
	q := New(store, 1000, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = q.Run(ctx)
		close(done)
	}()

	q.Track(storage.EventInsert{TsUTC: time.Now()})
	q.Track(storage.EventInsert{TsUTC: time.Now()})

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after ctx cancellation")
	}

	var count int64
	if err := store.DB.QueryRow("SELECT COUNT(1) FROM events").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2 events drained on shutdown", count)
	}
}

func TestQueue_TrackAfterCloseIsNoop(t *testing.T) {
	store := openTestStore(t)
	q := New(store, 10, time.Hour)
	q.closed = true
	q.Track(storage.EventInsert{TsUTC: time.Now()})

	q.mu.Lock()
	n := len(q.buf)
	q.mu.Unlock()
	if n != 0 {
		t.Fatal("expected Track to be a no-op after close")
	}
}
