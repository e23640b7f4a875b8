package callers

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/fasthash/fnv1a"
	"github.com/sirupsen/logrus"

	"github.com/samueltorres/r8views/pkg/limiter"
	"github.com/samueltorres/r8views/pkg/proxies"
)

const shardCount uint64 = 64

type shard struct {
	mux     sync.RWMutex
	callers map[string]*Caller
	busy    map[string]struct{}
}

// Registry owns every caller of the process. Reads go through sharded
// locks; mutations are serialized and saved to storage before they return.
type Registry struct {
	shards  []*shard
	saveMux sync.Mutex

	storage Storage
	window  time.Duration
	now     func() time.Time
	logger  *logrus.Logger
}

// NewRegistry creates an empty registry. window is the rate window used to
// seed the state of new callers.
func NewRegistry(storage Storage, window time.Duration, logger *logrus.Logger) *Registry {
	r := &Registry{
		shards:  make([]*shard, shardCount),
		storage: storage,
		window:  window,
		now:     time.Now,
		logger:  logger,
	}

	for i := uint64(0); i < shardCount; i++ {
		r.shards[i] = &shard{
			callers: make(map[string]*Caller),
			busy:    make(map[string]struct{}),
		}
	}

	return r
}

func (r *Registry) shardFor(id string) *shard {
	return r.shards[fnv1a.HashString64(id)%shardCount]
}

// Load replaces the in-memory callers with the stored ones.
func (r *Registry) Load(ctx context.Context) error {
	loaded, err := r.storage.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "error loading callers")
	}

	for _, s := range r.shards {
		s.mux.Lock()
		s.callers = make(map[string]*Caller)
		s.mux.Unlock()
	}

	for id, c := range loaded {
		if c.Proxies == nil {
			c.Proxies = proxies.NewPool()
		}
		c.ID = id

		s := r.shardFor(id)
		s.mux.Lock()
		s.callers[id] = c
		s.mux.Unlock()
	}

	r.logger.WithField("callers", len(loaded)).Info("callers loaded")
	return nil
}

// Get returns a copy of the caller, creating and persisting it on first use.
func (r *Registry) Get(ctx context.Context, id string) (*Caller, error) {
	s := r.shardFor(id)
	s.mux.RLock()
	c, ok := s.callers[id]
	if ok {
		c = c.Clone()
	}
	s.mux.RUnlock()

	if ok {
		return c, nil
	}

	var created *Caller
	err := r.Mutate(ctx, id, "caller creation", func(c *Caller) error {
		created = c.Clone()
		return nil
	})
	return created, err
}

// Mutate applies fn to the caller and saves every caller to storage. When fn
// fails or the save fails the caller is restored to its previous state.
func (r *Registry) Mutate(ctx context.Context, id, op string, fn func(c *Caller) error) error {
	r.saveMux.Lock()
	defer r.saveMux.Unlock()

	s := r.shardFor(id)
	s.mux.Lock()
	c, existed := s.callers[id]
	if !existed {
		c = r.newCaller(id)
		s.callers[id] = c
	}
	prev := c.Clone()

	if err := fn(c); err != nil {
		r.restoreLocked(s, id, prev, existed)
		s.mux.Unlock()
		return err
	}
	s.mux.Unlock()

	if err := r.storage.Save(ctx, r.snapshot()); err != nil {
		s.mux.Lock()
		r.restoreLocked(s, id, prev, existed)
		s.mux.Unlock()

		r.logger.WithError(err).WithFields(logrus.Fields{
			"caller": id,
			"op":     op,
		}).Error("could not save callers")
		return &PersistenceError{Op: op, Err: err}
	}

	return nil
}

func (r *Registry) restoreLocked(s *shard, id string, prev *Caller, existed bool) {
	if !existed {
		delete(s.callers, id)
		return
	}
	s.callers[id] = prev
}

// Flush saves the current state, used on shutdown.
func (r *Registry) Flush(ctx context.Context) error {
	r.saveMux.Lock()
	defer r.saveMux.Unlock()

	if err := r.storage.Save(ctx, r.snapshot()); err != nil {
		return &PersistenceError{Op: "flush", Err: err}
	}
	return nil
}

// TryBegin marks the caller as running a batch. It returns false when a
// batch is already in flight for the caller.
func (r *Registry) TryBegin(id string) bool {
	s := r.shardFor(id)
	s.mux.Lock()
	defer s.mux.Unlock()

	if _, running := s.busy[id]; running {
		return false
	}
	s.busy[id] = struct{}{}
	return true
}

func (r *Registry) End(id string) {
	s := r.shardFor(id)
	s.mux.Lock()
	delete(s.busy, id)
	s.mux.Unlock()
}

func (r *Registry) Busy(id string) bool {
	s := r.shardFor(id)
	s.mux.RLock()
	defer s.mux.RUnlock()

	_, running := s.busy[id]
	return running
}

func (r *Registry) snapshot() map[string]*Caller {
	out := make(map[string]*Caller)
	for _, s := range r.shards {
		s.mux.RLock()
		for id, c := range s.callers {
			out[id] = c.Clone()
		}
		s.mux.RUnlock()
	}
	return out
}

func (r *Registry) newCaller(id string) *Caller {
	return &Caller{
		ID:      id,
		Proxies: proxies.NewPool(),
		Rate:    limiter.NewRateState(r.now(), r.window),
	}
}
