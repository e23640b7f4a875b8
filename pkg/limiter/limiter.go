package limiter

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// RateState is the per caller request window.
type RateState struct {
	Count       int       `json:"count"`
	WindowStart time.Time `json:"window_start"`
}

// NewRateState returns a state whose window has already expired, so the
// first request of a new caller always opens a fresh window.
func NewRateState(now time.Time, window time.Duration) RateState {
	return RateState{
		Count:       0,
		WindowStart: now.Add(-window),
	}
}

type Policy struct {
	Capacity int
	Window   time.Duration
}

type metrics struct {
	okResp      prometheus.Counter
	limitedResp prometheus.Counter
}

func newMetrics(r prometheus.Registerer) *metrics {
	var m metrics

	m.okResp = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "views_ratelimit_ok_total",
		Help: "Total batch requests admitted by the rate limiter",
	})

	m.limitedResp = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "views_ratelimit_limited_total",
		Help: "Total batch requests denied by the rate limiter",
	})

	r.MustRegister(m.okResp, m.limitedResp)
	return &m
}

type LimiterService struct {
	policy  Policy
	logger  *logrus.Logger
	metrics *metrics
}

func NewLimiterService(policy Policy, logger *logrus.Logger, registerer prometheus.Registerer) *LimiterService {
	return &LimiterService{
		policy:  policy,
		logger:  logger,
		metrics: newMetrics(registerer),
	}
}

func (l *LimiterService) Policy() Policy {
	return l.policy
}

// TryAcquire admits or denies one request against state. The window only
// resets once it has fully elapsed, and the reset uses the now of the call
// that triggers it.
func (l *LimiterService) TryAcquire(caller string, state *RateState, now time.Time) bool {
	allowed := tryAcquire(l.policy, state, now)

	if allowed {
		l.metrics.okResp.Inc()
	} else {
		l.metrics.limitedResp.Inc()
	}

	l.logger.WithFields(logrus.Fields{
		"caller":       caller,
		"allowed":      allowed,
		"count":        state.Count,
		"window_start": state.WindowStart,
	}).Debug("rate limit decision")

	return allowed
}

// Remaining reports how many admissions are left in the current window.
func (l *LimiterService) Remaining(state RateState, now time.Time) int {
	if now.Sub(state.WindowStart) >= l.policy.Window {
		return l.policy.Capacity
	}

	remaining := l.policy.Capacity - state.Count
	if remaining < 0 {
		return 0
	}
	return remaining
}

func tryAcquire(policy Policy, state *RateState, now time.Time) bool {
	if now.Sub(state.WindowStart) >= policy.Window {
		state.Count = 1
		state.WindowStart = now
		return true
	}

	if state.Count < policy.Capacity {
		state.Count++
		return true
	}

	return false
}
