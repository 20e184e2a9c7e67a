package web

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tatianab/photo-game/internal/engine"
	"github.com/tatianab/photo-game/internal/models"
)

// finishedJobTTL is how long a finished job stays reachable at /jobs/{id}.
// The run itself stays reachable at /runs/{id}.
const finishedJobTTL = time.Hour

// Job is one generation started from the browser.
type Job struct {
	ID     string
	Source string

	mu       sync.Mutex
	update   engine.Update
	run      *models.Run
	err      error
	done     bool
	finished time.Time
	hub      *broadcaster
}

// JobSnapshot is a consistent copy of a job's state.
type JobSnapshot struct {
	ID     string
	Source string
	Update engine.Update
	Run    *models.Run
	Err    error
	Done   bool
}

func newJob(source string) *Job {
	return &Job{
		ID:     uuid.NewString(),
		Source: source,
		hub:    newBroadcaster(),
		update: engine.Update{Stage: engine.StageStarted},
	}
}

func (j *Job) report(u engine.Update) {
	j.mu.Lock()
	j.update = u
	j.mu.Unlock()
	j.hub.publish("update")
}

func (j *Job) finish(run *models.Run, err error, now time.Time) {
	j.mu.Lock()
	j.run = run
	j.err = err
	j.done = true
	j.finished = now
	j.mu.Unlock()
	j.hub.publish("done")
}

func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JobSnapshot{
		ID:     j.ID,
		Source: j.Source,
		Update: j.update,
		Run:    j.run,
		Err:    j.err,
		Done:   j.done,
	}
}

// jobStore holds in-flight and recently finished jobs.
type jobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

func newJobStore() *jobStore {
	return &jobStore{jobs: make(map[string]*Job)}
}

func (s *jobStore) add(j *Job, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, old := range s.jobs {
		old.mu.Lock()
		expired := old.done && now.Sub(old.finished) > finishedJobTTL
		old.mu.Unlock()
		if expired {
			delete(s.jobs, id)
		}
	}
	s.jobs[j.ID] = j
}

func (s *jobStore) get(id string) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	return j, ok
}

// broadcaster publishes lightweight events to SSE subscribers.
type broadcaster struct {
	mu   sync.Mutex
	subs map[chan string]struct{}
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[chan string]struct{})}
}

func (b *broadcaster) subscribe() chan string {
	ch := make(chan string, 10)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *broadcaster) unsubscribe(ch chan string) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

func (b *broadcaster) publish(event string) {
	b.mu.Lock()
	for ch := range b.subs {
		select {
		case ch <- event:
		default:
			// Lagging subscriber; the next event carries the latest snapshot.
		}
	}
	b.mu.Unlock()
}
