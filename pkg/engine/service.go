// Package engine admits view batches and runs them in the background, one
// batch per caller at a time.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/samueltorres/r8views/pkg/callers"
	"github.com/samueltorres/r8views/pkg/limiter"
	"github.com/samueltorres/r8views/pkg/proxies"
	"github.com/samueltorres/r8views/pkg/views"
)

var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrBatchInProgress   = errors.New("a batch is already running for this caller")
	ErrShuttingDown      = errors.New("service is shutting down")
)

// BatchRunner executes an admitted batch. *views.Executor satisfies it.
type BatchRunner interface {
	Run(ctx context.Context, b views.Batch) views.BatchResult
}

type Status struct {
	Proxies           int  `json:"proxies"`
	RequestsUsed      int  `json:"requests_used"`
	RequestsRemaining int  `json:"requests_remaining"`
	RequestsPerWindow int  `json:"requests_per_window"`
	Running           bool `json:"running"`
}

type AddResult struct {
	Added int `json:"added"`
	Total int `json:"total"`
}

type Service struct {
	registry *callers.Registry
	limiter  *limiter.LimiterService
	runner   BatchRunner
	policy   views.RequestPolicy
	logger   *logrus.Logger
	now      func() time.Time

	batchCtx    context.Context
	cancelBatch context.CancelFunc
	mux         sync.Mutex
	closed      bool
	wg          sync.WaitGroup
}

func NewService(
	registry *callers.Registry,
	limiterService *limiter.LimiterService,
	runner BatchRunner,
	policy views.RequestPolicy,
	logger *logrus.Logger) *Service {

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		registry:    registry,
		limiter:     limiterService,
		runner:      runner,
		policy:      policy,
		logger:      logger,
		now:         time.Now,
		batchCtx:    ctx,
		cancelBatch: cancel,
	}
}

func (s *Service) Status(ctx context.Context, callerID string) (Status, error) {
	c, err := s.registry.Get(ctx, callerID)
	if err != nil {
		return Status{}, err
	}

	now := s.now()
	remaining := s.limiter.Remaining(c.Rate, now)
	capacity := s.limiter.Policy().Capacity

	return Status{
		Proxies:           c.Proxies.Len(),
		RequestsUsed:      capacity - remaining,
		RequestsRemaining: remaining,
		RequestsPerWindow: capacity,
		Running:           s.registry.Busy(callerID),
	}, nil
}

// AddProxies adds every valid proxy of raw. Text without a single valid
// proxy is a validation error; invalid tokens next to valid ones are dropped.
func (s *Service) AddProxies(ctx context.Context, callerID, raw string) (AddResult, error) {
	if len(proxies.Extract(raw)) == 0 {
		return AddResult{}, &views.ValidationError{Field: "proxies", Reason: "expected host:port entries separated by whitespace"}
	}

	var res AddResult
	err := s.registry.Mutate(ctx, callerID, "add proxies", func(c *callers.Caller) error {
		res.Added = c.Proxies.Add(raw)
		res.Total = c.Proxies.Len()
		return nil
	})
	if err != nil {
		return AddResult{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"caller": callerID,
		"added":  res.Added,
		"total":  res.Total,
	}).Info("proxies added")
	return res, nil
}

func (s *Service) ClearProxies(ctx context.Context, callerID string) error {
	err := s.registry.Mutate(ctx, callerID, "clear proxies", func(c *callers.Caller) error {
		c.Proxies.Clear()
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.WithField("caller", callerID).Info("proxies cleared")
	return nil
}

func (s *Service) ListProxies(ctx context.Context, callerID string) ([]proxies.Proxy, error) {
	c, err := s.registry.Get(ctx, callerID)
	if err != nil {
		return nil, err
	}
	return c.Proxies.List(), nil
}

// Run admits and executes a batch, blocking until it finishes.
func (s *Service) Run(ctx context.Context, callerID, rawURL string, count int) (views.BatchResult, error) {
	batch, err := s.admit(ctx, callerID, rawURL, count)
	if err != nil {
		return views.BatchResult{}, err
	}
	defer s.registry.End(callerID)

	return s.runner.Run(ctx, batch), nil
}

// Submit admits a batch and runs it in the background. done receives the
// result once the batch finishes or is cancelled by Shutdown.
func (s *Service) Submit(ctx context.Context, callerID, rawURL string, count int, done func(views.BatchResult)) (string, error) {
	// The slot is reserved before admission so a concurrent Shutdown either
	// rejects the call up front or waits for the batch it admitted.
	s.mux.Lock()
	if s.closed {
		s.mux.Unlock()
		return "", ErrShuttingDown
	}
	s.wg.Add(1)
	s.mux.Unlock()

	batch, err := s.admit(ctx, callerID, rawURL, count)
	if err != nil {
		s.wg.Done()
		return "", err
	}

	go func() {
		defer s.wg.Done()
		defer s.registry.End(callerID)

		result := s.runner.Run(s.batchCtx, batch)
		if done != nil {
			done(result)
		}
	}()

	return batch.ID, nil
}

// admit validates the request, claims the caller and consumes one rate
// limit slot. On success the caller stays claimed until End is called.
func (s *Service) admit(ctx context.Context, callerID, rawURL string, count int) (views.Batch, error) {
	req, err := views.NewViewRequest(s.policy, rawURL, count)
	if err != nil {
		return views.Batch{}, err
	}

	if !s.registry.TryBegin(callerID) {
		return views.Batch{}, ErrBatchInProgress
	}

	var pool *proxies.Pool
	err = s.registry.Mutate(ctx, callerID, "rate limit", func(c *callers.Caller) error {
		if !s.limiter.TryAcquire(callerID, &c.Rate, s.now()) {
			return ErrRateLimitExceeded
		}
		pool = c.Proxies.Clone()
		return nil
	})
	if err != nil {
		s.registry.End(callerID)
		return views.Batch{}, err
	}

	return views.NewBatch(callerID, pool, req), nil
}

// RunDispatcher blocks until cancel is closed, then stops running batches at
// their next checkpoint and waits for them to finish.
func (s *Service) RunDispatcher(cancel chan struct{}) error {
	<-cancel
	s.Shutdown()
	return nil
}

func (s *Service) Shutdown() {
	s.mux.Lock()
	s.closed = true
	s.mux.Unlock()

	s.cancelBatch()
	s.wg.Wait()
	s.logger.Info("batch dispatcher stopped")
}
