package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/readaloud/readaloud/tts"
	"github.com/readaloud/readaloud/tts/cache"
	"github.com/readaloud/readaloud/tts/engines/mock"
)

func newTestStore(t *testing.T) *cache.Store {
	t.Helper()
	s, err := cache.New(cache.Config{})
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sentence(index int, text string) tts.Sentence {
	return tts.Sentence{Index: index, Text: text, Duration: time.Second}
}

func TestSubmitAndAwait(t *testing.T) {
	engine := mock.New(tts.MockConfig{})
	store := newTestStore(t)
	s := New(engine, store, Config{})
	defer s.Close()

	ticket, _, err := s.Submit(sentence(0, "Hello world."), "random", "fast", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	unit, err := ticket.Await(context.Background())
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if len(unit.Data) == 0 {
		t.Error("Expected audio payload")
	}
	if unit.Duration <= 0 {
		t.Error("Expected positive duration")
	}
}

func TestResultIsCached(t *testing.T) {
	engine := mock.New(tts.MockConfig{})
	store := newTestStore(t)
	s := New(engine, store, Config{})
	defer s.Close()

	ticket, _, err := s.Submit(sentence(0, "Cache me."), "random", "fast", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := ticket.Await(context.Background()); err != nil {
		t.Fatalf("Await: %v", err)
	}

	key := cache.Key("Cache me.", "random", "fast")
	if _, ok := store.Lookup(key); !ok {
		t.Error("Expected unit in cache after completion")
	}
}

func TestCacheHitSkipsEngine(t *testing.T) {
	engine := mock.New(tts.MockConfig{})
	store := newTestStore(t)
	s := New(engine, store, Config{})
	defer s.Close()

	ticket, _, _ := s.Submit(sentence(0, "Warm the cache."), "random", "fast", nil)
	if _, err := ticket.Await(context.Background()); err != nil {
		t.Fatalf("Await: %v", err)
	}
	calls := engine.CallCount()

	ticket, depth, err := s.Submit(sentence(0, "Warm the cache."), "random", "fast", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if depth != 0 {
		t.Errorf("Cache hit should not enqueue, depth = %d", depth)
	}
	if _, err := ticket.Await(context.Background()); err != nil {
		t.Fatalf("Await: %v", err)
	}
	if engine.CallCount() != calls {
		t.Errorf("Cache hit should not call the engine: %d calls before, %d after",
			calls, engine.CallCount())
	}
}

func TestSingleFlightPerKey(t *testing.T) {
	engine := mock.New(tts.MockConfig{GenerationDelay: 50 * time.Millisecond})
	store := newTestStore(t)
	s := New(engine, store, Config{})
	defer s.Close()

	t1, _, err := s.Submit(sentence(0, "Same sentence."), "random", "fast", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	t2, _, err := s.Submit(sentence(0, "Same sentence."), "random", "fast", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	u1, err := t1.Await(context.Background())
	if err != nil {
		t.Fatalf("Await t1: %v", err)
	}
	u2, err := t2.Await(context.Background())
	if err != nil {
		t.Fatalf("Await t2: %v", err)
	}

	if u1 != u2 {
		t.Error("Both tickets should resolve to the same unit")
	}
	if got := engine.CallCount(); got != 1 {
		t.Errorf("Expected exactly one engine call, got %d", got)
	}
}

func TestFIFOCompletionOrder(t *testing.T) {
	engine := mock.New(tts.MockConfig{GenerationDelay: 5 * time.Millisecond})
	store := newTestStore(t)
	s := New(engine, store, Config{Workers: 1})
	defer s.Close()

	texts := []string{"First sentence.", "Second sentence.", "Third sentence."}
	tickets := make([]*Ticket, len(texts))
	for i, text := range texts {
		ticket, _, err := s.Submit(sentence(i, text), "random", "fast", nil)
		if err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
		tickets[i] = ticket
	}

	// With one worker, jobs settle in submission order: whenever a
	// later ticket is done, every earlier ticket must be done too.
	for i := len(tickets) - 1; i >= 0; i-- {
		if _, err := tickets[i].Await(context.Background()); err != nil {
			t.Fatalf("Await %d: %v", i, err)
		}
		for j := 0; j < i; j++ {
			select {
			case <-tickets[j].Done():
			default:
				t.Errorf("Ticket %d finished before earlier ticket %d", i, j)
			}
		}
	}
}

func TestCancelQueuedJob(t *testing.T) {
	engine := mock.New(tts.MockConfig{GenerationDelay: 100 * time.Millisecond})
	store := newTestStore(t)
	s := New(engine, store, Config{Workers: 1})
	defer s.Close()

	blocker, _, err := s.Submit(sentence(0, "Occupies the worker."), "random", "fast", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	queued, _, err := s.Submit(sentence(1, "Never runs."), "random", "fast", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	queued.Cancel()

	if _, err := queued.Await(context.Background()); !errors.Is(err, tts.ErrJobCancelled) {
		t.Errorf("Expected ErrJobCancelled, got %v", err)
	}

	if _, err := blocker.Await(context.Background()); err != nil {
		t.Fatalf("Await blocker: %v", err)
	}
	if got := engine.CallCount(); got != 1 {
		t.Errorf("Cancelled job should never reach the engine, got %d calls", got)
	}
}

func TestAwaitContextExpiry(t *testing.T) {
	engine := mock.New(tts.MockConfig{GenerationDelay: time.Second})
	store := newTestStore(t)
	s := New(engine, store, Config{})
	defer s.Close()

	ticket, _, err := s.Submit(sentence(0, "Slow sentence."), "random", "fast", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := ticket.Await(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded, got %v", err)
	}
}

func TestJobTimeout(t *testing.T) {
	engine := mock.New(tts.MockConfig{GenerationDelay: time.Second})
	store := newTestStore(t)
	s := New(engine, store, Config{JobTimeout: 20 * time.Millisecond})
	defer s.Close()

	ticket, _, err := s.Submit(sentence(0, "Takes too long."), "random", "fast", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	_, err = ticket.Await(context.Background())
	if !errors.Is(err, tts.ErrJobTimeout) {
		t.Errorf("Expected ErrJobTimeout, got %v", err)
	}
}

func TestEngineFailureWrapsSynthesisError(t *testing.T) {
	engine := mock.New(tts.MockConfig{})
	engine.SetFailure(errors.New("model exploded"))
	store := newTestStore(t)
	s := New(engine, store, Config{})
	defer s.Close()

	ticket, _, err := s.Submit(sentence(3, "Doomed."), "random", "fast", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	_, err = ticket.Await(context.Background())
	var synthErr *tts.SynthesisError
	if !errors.As(err, &synthErr) {
		t.Fatalf("Expected SynthesisError, got %v", err)
	}
	if synthErr.Index != 3 {
		t.Errorf("SynthesisError.Index = %d, want 3", synthErr.Index)
	}
}

func TestWorkerRechecksCacheBeforeSynthesis(t *testing.T) {
	engine := mock.New(tts.MockConfig{GenerationDelay: 50 * time.Millisecond})
	store := newTestStore(t)
	s := New(engine, store, Config{Workers: 1})
	defer s.Close()

	blocker, _, err := s.Submit(sentence(0, "Occupies the worker."), "random", "fast", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	queued, _, err := s.Submit(sentence(1, "Cached while queued."), "random", "fast", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// The unit lands in the cache while its job is still waiting for
	// the worker; the worker must use it instead of synthesizing again.
	key := cache.Key("Cached while queued.", "random", "fast")
	cached := store.Put(key, []byte("audio"), time.Second)

	unit, err := queued.Await(context.Background())
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if unit != cached {
		t.Error("Queued job should resolve to the already-cached unit")
	}
	if _, err := blocker.Await(context.Background()); err != nil {
		t.Fatalf("Await blocker: %v", err)
	}
	if got := engine.CallCount(); got != 1 {
		t.Errorf("Cached key should not be synthesized again, got %d engine calls", got)
	}
}

func TestGroupFailurePurgesQueuedSiblings(t *testing.T) {
	engine := mock.New(tts.MockConfig{GenerationDelay: 50 * time.Millisecond})
	engine.SetFailure(errors.New("model exploded"))
	store := newTestStore(t)
	s := New(engine, store, Config{Workers: 1})
	defer s.Close()

	group := NewGroup()
	tickets := make([]*Ticket, 3)
	for i, text := range []string{"One fails.", "Two is purged.", "Three is purged."} {
		ticket, _, err := s.Submit(sentence(i, text), "random", "fast", group)
		if err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
		tickets[i] = ticket
	}

	if _, err := tickets[0].Await(context.Background()); err == nil {
		t.Fatal("Expected failure for first sentence")
	}
	for i := 1; i < 3; i++ {
		if _, err := tickets[i].Await(context.Background()); !errors.Is(err, tts.ErrJobCancelled) {
			t.Errorf("Sibling %d: expected ErrJobCancelled, got %v", i, err)
		}
	}
	if got := engine.CallCount(); got != 1 {
		t.Errorf("Later sentences must never reach the engine, got %d calls", got)
	}
}

func TestGroupPurgeSparesSharedJobs(t *testing.T) {
	engine := mock.New(tts.MockConfig{GenerationDelay: 50 * time.Millisecond})
	engine.SetFailure(errors.New("model exploded"))
	store := newTestStore(t)
	s := New(engine, store, Config{Workers: 1})
	defer s.Close()

	group := NewGroup()
	doomed, _, err := s.Submit(sentence(0, "One fails."), "random", "fast", group)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	shared, _, err := s.Submit(sentence(1, "Shared sentence."), "random", "fast", group)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	// A second request attaches to the same sentence; the job now
	// outlives the first request's failure.
	other, _, err := s.Submit(sentence(0, "Shared sentence."), "random", "fast", NewGroup())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if _, err := doomed.Await(context.Background()); err == nil {
		t.Fatal("Expected failure for first sentence")
	}
	_, err = other.Await(context.Background())
	if errors.Is(err, tts.ErrJobCancelled) {
		t.Error("Shared job must not be purged with the failing group")
	}
	_, err = shared.Await(context.Background())
	if errors.Is(err, tts.ErrJobCancelled) {
		t.Error("Shared job must survive for the first request's ticket too")
	}
}

func TestSubmitAfterClose(t *testing.T) {
	engine := mock.New(tts.MockConfig{})
	store := newTestStore(t)
	s := New(engine, store, Config{})

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, _, err := s.Submit(sentence(0, "Too late."), "random", "fast", nil); !errors.Is(err, tts.ErrSchedulerClosed) {
		t.Errorf("Expected ErrSchedulerClosed, got %v", err)
	}
}

func TestCloseFailsQueuedJobs(t *testing.T) {
	engine := mock.New(tts.MockConfig{GenerationDelay: 50 * time.Millisecond})
	store := newTestStore(t)
	s := New(engine, store, Config{Workers: 1})

	first, _, _ := s.Submit(sentence(0, "Running."), "random", "fast", nil)
	queued, _, _ := s.Submit(sentence(1, "Still queued."), "random", "fast", nil)

	// Give the worker a moment to pick up the first job.
	time.Sleep(10 * time.Millisecond)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := first.Await(context.Background()); err != nil {
		t.Errorf("Running job should finish, got %v", err)
	}
	if _, err := queued.Await(context.Background()); !errors.Is(err, tts.ErrSchedulerClosed) {
		t.Errorf("Queued job should fail with ErrSchedulerClosed, got %v", err)
	}
}
