// Package registry implements the Session Registry (C9): the only
// structure shared across Calls, mapping call id to the running Bridge
// that owns it. Reads take their shard's read lock, so readers do not
// block each other but do wait for a writer on the same shard; writes
// take that shard's write lock. This generalizes the teacher's single
// coarse bridge.mu sync.RWMutex into a fixed set of striped locks.
// Reads are not lock-free.
package registry

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Entry is anything the registry can track the lifecycle of. pkg/bridge's
// Bridge satisfies this by exposing whether its Call has reached the
// closed state.
type Entry interface {
	Closed() bool
}

const shardCount = 32

type shard struct {
	mu    sync.RWMutex
	calls map[string]Entry
}

// Registry is a striped-lock map of active Calls, with a periodic sweep
// that evicts closed ones.
type Registry struct {
	shards    [shardCount]*shard
	log       *slog.Logger
	scheduler gocron.Scheduler
}

// New returns a Registry with all shards initialized. If log is nil,
// slog.Default() is used.
func New(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	r := &Registry{log: log}
	for i := range r.shards {
		r.shards[i] = &shard{calls: make(map[string]Entry)}
	}
	return r
}

func (r *Registry) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return r.shards[h.Sum32()%shardCount]
}

// Put registers or replaces the Entry for id.
func (r *Registry) Put(id string, e Entry) {
	s := r.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[id] = e
}

// Get returns the Entry registered for id, if any.
func (r *Registry) Get(id string) (Entry, bool) {
	s := r.shardFor(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.calls[id]
	return e, ok
}

// Delete removes id from the registry unconditionally.
func (r *Registry) Delete(id string) {
	s := r.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.calls, id)
}

// Len returns the number of tracked entries across all shards,
// including closed ones not yet swept.
func (r *Registry) Len() int {
	total := 0
	for _, s := range r.shards {
		s.mu.RLock()
		total += len(s.calls)
		s.mu.RUnlock()
	}
	return total
}

// sweepOnce evicts every Entry whose Closed() returns true.
func (r *Registry) sweepOnce() {
	evicted := 0
	for _, s := range r.shards {
		s.mu.Lock()
		for id, e := range s.calls {
			if e.Closed() {
				delete(s.calls, id)
				evicted++
			}
		}
		s.mu.Unlock()
	}
	if evicted > 0 {
		r.log.Debug("registry: swept closed calls", "count", evicted)
	}
}

// StartSweep schedules a periodic sweep of closed Calls using gocron,
// grounded on the same library's use for periodic maintenance jobs
// elsewhere in the pack. Returns a stop function; calling it shuts the
// scheduler down. interval defaults to one minute if zero.
func (r *Registry) StartSweep(ctx context.Context, interval time.Duration) (stop func(), err error) {
	if interval <= 0 {
		interval = time.Minute
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(r.sweepOnce),
	)
	if err != nil {
		return nil, err
	}
	r.scheduler = s
	s.Start()

	go func() {
		<-ctx.Done()
		_ = s.Shutdown()
	}()

	return func() { _ = s.Shutdown() }, nil
}
