package browser

import (
	"context"
	"time"
)

type ScrollConfig struct {
	MinScroll int
	MaxScroll int
	MinPause  time.Duration
	MaxPause  time.Duration
}

// RandomScroll scrolls a random distance then pauses a random duration.
type RandomScroll struct {
	cfg    ScrollConfig
	jitter *Jitter
	sleep  Sleeper
}

func NewRandomScroll(cfg ScrollConfig, jitter *Jitter, sleep Sleeper) *RandomScroll {
	if sleep == nil {
		sleep = Sleep
	}
	return &RandomScroll{cfg: cfg, jitter: jitter, sleep: sleep}
}

func (r *RandomScroll) Simulate(ctx context.Context, s Session) error {
	offset := r.jitter.IntRange(r.cfg.MinScroll, r.cfg.MaxScroll)
	if err := s.Scroll(ctx, float64(offset)); err != nil {
		return InteractionError(err)
	}

	if err := r.sleep(ctx, r.jitter.Duration(r.cfg.MinPause, r.cfg.MaxPause)); err != nil {
		return InteractionError(err)
	}
	return nil
}
