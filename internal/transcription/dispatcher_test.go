package transcription

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/skypro1111/whisper-transcribe-service/internal/engine"
)

// fakeGenerator serves canned token sequences per window index, with optional
// per-window delays and failures.
type fakeGenerator struct {
	mu        sync.Mutex
	delays    map[int]time.Duration
	failures  map[int]error
	outputs   map[int][]int
	cancelled map[int]bool
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{
		delays:    make(map[int]time.Duration),
		failures:  make(map[int]error),
		outputs:   make(map[int][]int),
		cancelled: make(map[int]bool),
	}
}

func (g *fakeGenerator) Generate(ctx context.Context, req *engine.GenerationRequest) (*engine.TokenSequence, error) {
	if err := g.failures[req.WindowIndex]; err != nil {
		return nil, err
	}

	select {
	case <-time.After(g.delays[req.WindowIndex]):
	case <-ctx.Done():
		g.mu.Lock()
		g.cancelled[req.WindowIndex] = true
		g.mu.Unlock()
		return nil, ctx.Err()
	}

	return &engine.TokenSequence{IDs: g.outputs[req.WindowIndex]}, nil
}

func makeRequests(n int) []*engine.GenerationRequest {
	requests := make([]*engine.GenerationRequest, n)
	for i := range requests {
		requests[i] = &engine.GenerationRequest{
			RequestID:   "test",
			WindowIndex: i,
		}
	}
	return requests
}

func TestDispatchRestoresWindowOrder(t *testing.T) {
	generator := newFakeGenerator()
	generator.outputs[0] = []int{10}
	generator.outputs[1] = []int{20}
	generator.outputs[2] = []int{30}

	// Make the windows complete in reverse order.
	generator.delays[0] = 30 * time.Millisecond
	generator.delays[1] = 15 * time.Millisecond
	generator.delays[2] = 0

	dispatcher := NewDispatcher(generator)
	results, err := dispatcher.Dispatch(context.Background(), makeRequests(3))
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	for i, want := range []int{10, 20, 30} {
		if len(results[i].IDs) != 1 || results[i].IDs[0] != want {
			t.Errorf("Result %d: expected [%d], got %v", i, want, results[i].IDs)
		}
	}
}

func TestDispatchFailureCancelsSiblings(t *testing.T) {
	generator := newFakeGenerator()
	generator.failures[1] = errors.New("engine exploded")
	generator.outputs[0] = []int{10}
	generator.outputs[2] = []int{30}

	// Window 2 would run long enough that only cancellation ends it early.
	generator.delays[2] = 5 * time.Second

	dispatcher := NewDispatcher(generator)
	start := time.Now()
	results, err := dispatcher.Dispatch(context.Background(), makeRequests(3))
	if err == nil {
		t.Fatal("Expected dispatch error")
	}
	if results != nil {
		t.Errorf("Expected no results on failure, got %v", results)
	}
	if !strings.Contains(err.Error(), "window 1") {
		t.Errorf("Expected error to name the failed window, got: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Dispatch did not cancel siblings promptly, took %v", elapsed)
	}

	generator.mu.Lock()
	cancelled := generator.cancelled[2]
	generator.mu.Unlock()
	if !cancelled {
		t.Error("Expected the slow sibling window to observe cancellation")
	}
}

func TestDispatchEmptyRequestList(t *testing.T) {
	dispatcher := NewDispatcher(newFakeGenerator())

	results, err := dispatcher.Dispatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected no results, got %d", len(results))
	}
}

func TestDispatchHonorsParentContext(t *testing.T) {
	generator := newFakeGenerator()
	generator.delays[0] = 5 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	dispatcher := NewDispatcher(generator)
	if _, err := dispatcher.Dispatch(ctx, makeRequests(1)); err == nil {
		t.Fatal("Expected error after parent context cancellation")
	}
}
