// Package scheduler turns sentences into cached audio units through a
// bounded worker pool. Synthesis is expensive and the engine family is
// effectively serial, so the pool defaults to a single worker; callers
// submit sentences and await tickets.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/readaloud/readaloud/tts"
	"github.com/readaloud/readaloud/tts/cache"
	"github.com/readaloud/readaloud/tts/engines"
)

// Config contains scheduler configuration.
type Config struct {
	Workers    int           // Concurrent engine calls; 0 means 1
	JobTimeout time.Duration // Per-job synthesis deadline; 0 means 60s
}

// Scheduler owns the synthesis queue. Jobs run in FIFO submission
// order, one engine call per distinct cache key regardless of how many
// callers await it.
type Scheduler struct {
	engine engines.Engine
	store  *cache.Store
	cfg    Config

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []*job
	inflight map[string]*job // Queued or running jobs by cache key
	running  int
	closed   bool

	wg sync.WaitGroup
}

// Group ties the jobs of one request together: when any job in the
// group fails, the group's still-queued jobs are purged before a
// worker can pick them up, so later sentences of a failed request
// never reach the engine.
type Group struct{ _ byte }

// NewGroup creates a request group token.
func NewGroup() *Group { return &Group{} }

// job is one synthesis attempt. doneCh closes exactly once, after
// unit/err and state are final.
type job struct {
	key      string
	sentence tts.Sentence
	voice    string
	preset   string
	group    *Group // nil once another request shares the job

	state   tts.JobState
	waiters int

	unit   *tts.AudioUnit
	err    error
	doneCh chan struct{}
}

// Ticket is a caller's handle on a submitted job. Each ticket holds
// one waiter reference; dropping the last reference of a queued job
// cancels it.
type Ticket struct {
	s        *Scheduler
	job      *job
	released bool
	mu       sync.Mutex
}

// New creates a scheduler and starts its workers.
func New(engine engines.Engine, store *cache.Store, cfg Config) *Scheduler {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 60 * time.Second
	}

	s := &Scheduler{
		engine:   engine,
		store:    store,
		cfg:      cfg,
		inflight: make(map[string]*job),
	}
	s.cond = sync.NewCond(&s.mu)

	s.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go s.worker(i)
	}
	return s
}

// Submit requests audio for one sentence. It returns a ticket and the
// queue depth at submission time; a cache hit or an already in-flight
// job for the same key never enqueues new work. group may be nil for
// standalone submissions.
func (s *Scheduler) Submit(sentence tts.Sentence, voice, preset string, group *Group) (*Ticket, int, error) {
	key := cache.Key(sentence.Text, voice, preset)

	if unit, ok := s.store.Lookup(key); ok {
		j := &job{
			key:    key,
			state:  tts.JobDone,
			unit:   unit,
			doneCh: make(chan struct{}),
		}
		close(j.doneCh)
		return &Ticket{s: s, job: j, released: true}, 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, 0, tts.ErrSchedulerClosed
	}

	if j, ok := s.inflight[key]; ok {
		j.waiters++
		if j.group != group {
			// Shared across requests; no group may purge it anymore.
			j.group = nil
		}
		return &Ticket{s: s, job: j}, len(s.queue), nil
	}

	j := &job{
		key:      key,
		sentence: sentence,
		voice:    voice,
		preset:   preset,
		group:    group,
		state:    tts.JobQueued,
		waiters:  1,
		doneCh:   make(chan struct{}),
	}
	s.queue = append(s.queue, j)
	s.inflight[key] = j
	s.cond.Signal()

	return &Ticket{s: s, job: j}, len(s.queue), nil
}

// Await blocks until the job finishes or ctx is done. A ctx expiry
// drops this ticket's interest in the job; when the last interested
// caller goes away a still-queued job is cancelled.
func (t *Ticket) Await(ctx context.Context) (*tts.AudioUnit, error) {
	select {
	case <-t.job.doneCh:
		return t.job.unit, t.job.err
	case <-ctx.Done():
		t.Cancel()
		return nil, ctx.Err()
	}
}

// Done returns a channel closed when the job finishes.
func (t *Ticket) Done() <-chan struct{} {
	return t.job.doneCh
}

// Cancel releases this ticket's waiter reference. Idempotent.
func (t *Ticket) Cancel() {
	t.mu.Lock()
	if t.released {
		t.mu.Unlock()
		return
	}
	t.released = true
	t.mu.Unlock()

	t.s.dropWaiter(t.job)
}

// dropWaiter removes one waiter from j. A queued job with no waiters
// left is cancelled in place; a running job is left to finish and its
// result is discarded.
func (s *Scheduler) dropWaiter(j *job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j.waiters > 0 {
		j.waiters--
	}
	if j.waiters > 0 || j.state != tts.JobQueued {
		return
	}

	for i, queued := range s.queue {
		if queued == j {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			break
		}
	}
	delete(s.inflight, j.key)
	j.state = tts.JobCancelled
	j.err = tts.ErrJobCancelled
	close(j.doneCh)
	log.Debug("scheduler: cancelled queued job", "key", j.key)
}

// purgeGroupLocked cancels every queued job belonging to the group.
// Called while settling a failed job, under s.mu, so a worker cannot
// pick up a doomed sibling in between. Jobs shared with another
// request have a nil group and are left alone. Caller holds s.mu.
func (s *Scheduler) purgeGroupLocked(g *Group) {
	if g == nil {
		return
	}
	kept := s.queue[:0]
	for _, queued := range s.queue {
		if queued.group != g {
			kept = append(kept, queued)
			continue
		}
		delete(s.inflight, queued.key)
		queued.state = tts.JobCancelled
		queued.err = tts.ErrJobCancelled
		close(queued.doneCh)
	}
	s.queue = kept
}

// Stats describes current scheduler load.
type Stats struct {
	Queued  int
	Running int
}

// Stats returns current load.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Queued: len(s.queue), Running: s.running}
}

// Close stops accepting work, fails every queued job and waits for
// running jobs to finish.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true

	for _, j := range s.queue {
		delete(s.inflight, j.key)
		j.state = tts.JobFailed
		j.err = tts.ErrSchedulerClosed
		close(j.doneCh)
	}
	s.queue = nil
	s.cond.Broadcast()
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		j := s.queue[0]
		s.queue = s.queue[1:]
		j.state = tts.JobRunning
		s.running++
		s.mu.Unlock()

		s.run(j)

		s.mu.Lock()
		s.running--
		s.mu.Unlock()
	}
}

// run performs one engine call and settles the job.
func (s *Scheduler) run(j *job) {
	// Another request may have synthesized this key between the
	// lock-free lookup in Submit and now; re-check before paying for
	// an engine call.
	if unit, ok := s.store.Lookup(j.key); ok {
		s.mu.Lock()
		delete(s.inflight, j.key)
		j.unit = unit
		j.state = tts.JobDone
		close(j.doneCh)
		s.mu.Unlock()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
	defer cancel()

	start := time.Now()
	data, err := s.engine.Synthesize(ctx, j.sentence.Text, j.voice, j.preset)

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.inflight, j.key)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = tts.ErrJobTimeout
		}
		j.state = tts.JobFailed
		j.err = &tts.SynthesisError{Index: j.sentence.Index, Voice: j.voice, Err: err}
		s.purgeGroupLocked(j.group)
		close(j.doneCh)
		log.Error("scheduler: synthesis failed",
			"index", j.sentence.Index, "voice", j.voice, "err", err)
		return
	}

	if j.waiters == 0 {
		// Every caller went away while the engine was running. The
		// bytes are dropped rather than cached so that a cancelled
		// request leaves no trace.
		j.state = tts.JobCancelled
		j.err = tts.ErrJobCancelled
		close(j.doneCh)
		return
	}

	duration := j.sentence.Duration
	if pcm, rate, channels, derr := tts.DecodeWAV(data); derr == nil {
		duration = tts.PCMDuration(len(pcm), rate, channels)
	}

	j.unit = s.store.Put(j.key, data, duration)
	j.state = tts.JobDone
	close(j.doneCh)
	log.Debug("scheduler: synthesized unit",
		"index", j.sentence.Index, "bytes", len(data), "took", time.Since(start))
}
