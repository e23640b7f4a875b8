package browser

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Jitter is a goroutine safe random source for delays, scroll distances and
// proxy selection.
type Jitter struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewJitter(seed int64) *Jitter {
	return &Jitter{rnd: rand.New(rand.NewSource(seed))}
}

func (j *Jitter) Intn(n int) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.rnd.Intn(n)
}

// IntRange is uniform in [min, max].
func (j *Jitter) IntRange(min, max int) int {
	if max <= min {
		return min
	}
	return min + j.Intn(max-min+1)
}

// Duration is uniform in [min, max].
func (j *Jitter) Duration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return min + time.Duration(j.rnd.Int63n(int64(max-min)+1))
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
