package callers

import (
	"context"
	"fmt"

	"github.com/samueltorres/r8views/pkg/limiter"
	"github.com/samueltorres/r8views/pkg/proxies"
)

// Caller is the identity rate limits and proxies are tracked under.
type Caller struct {
	ID      string            `json:"id"`
	Proxies *proxies.Pool     `json:"proxies"`
	Rate    limiter.RateState `json:"rate"`
}

// Clone returns a deep copy, safe to hand to a running batch or a storage.
func (c *Caller) Clone() *Caller {
	pool := proxies.NewPool()
	if c.Proxies != nil {
		pool = c.Proxies.Clone()
	}
	return &Caller{
		ID:      c.ID,
		Proxies: pool,
		Rate:    c.Rate,
	}
}

// Storage loads and saves the whole caller map. Implementations live in
// pkg/file, pkg/redis and pkg/cassandra.
type Storage interface {
	Load(ctx context.Context) (map[string]*Caller, error)
	Save(ctx context.Context, callers map[string]*Caller) error
}

// PersistenceError is returned when a mutation could not be saved. The
// in-memory change is rolled back.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("could not persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
