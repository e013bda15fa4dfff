package background

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"docforge/internal/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Format: "json", Output: io.Discard})
}

func TestSubmitRunsTask(t *testing.T) {
	r := NewRunner(4, time.Second, testLogger())

	done := make(chan struct{})
	if ok := r.Submit("t", func(ctx context.Context) { close(done) }); !ok {
		t.Fatal("submit rejected on an open runner")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Close(ctx); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}

func TestCloseDrainsPendingTasks(t *testing.T) {
	r := NewRunner(8, time.Second, testLogger())

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		if ok := r.Submit("t", func(ctx context.Context) { ran.Add(1) }); !ok {
			t.Fatal("submit rejected")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.Close(ctx); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if got := ran.Load(); got != 5 {
		t.Errorf("expected 5 tasks drained, got %d", got)
	}
}

func TestSubmitAfterCloseIsRejected(t *testing.T) {
	r := NewRunner(4, time.Second, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Close(ctx); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if ok := r.Submit("t", func(ctx context.Context) {}); ok {
		t.Error("submit must be rejected after close")
	}
}

func TestFullQueueDropsSubmission(t *testing.T) {
	r := NewRunner(1, time.Second, testLogger())

	release := make(chan struct{})
	// First task blocks the drain loop, second fills the buffer.
	r.Submit("blocker", func(ctx context.Context) { <-release })
	time.Sleep(20 * time.Millisecond)
	if ok := r.Submit("filler", func(ctx context.Context) {}); !ok {
		t.Fatal("buffer slot submit rejected")
	}

	if ok := r.Submit("overflow", func(ctx context.Context) {}); ok {
		t.Error("expected overflow submission to be dropped")
	}

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.Close(ctx); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}
