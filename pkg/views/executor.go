package views

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/samueltorres/r8views/pkg/browser"
	"github.com/samueltorres/r8views/pkg/proxies"
)

// IdentitySource hands out the identity string (user agent) of a session.
type IdentitySource interface {
	Random() string
}

type Config struct {
	NavigationTimeout time.Duration
	DelayMin          time.Duration
	DelayMax          time.Duration
}

// Batch is one admitted request bound to the proxy snapshot it reads from.
type Batch struct {
	ID      string
	Caller  string
	Proxies *proxies.Pool
	Request ViewRequest
}

func NewBatch(caller string, pool *proxies.Pool, req ViewRequest) Batch {
	if pool == nil {
		pool = proxies.NewPool()
	}
	return Batch{
		ID:      uuid.NewString(),
		Caller:  caller,
		Proxies: pool,
		Request: req,
	}
}

type AttemptOutcome struct {
	Index     int
	Succeeded bool
	Proxy     *proxies.Proxy
	ErrorKind browser.ErrorKind
	Err       error
}

type BatchResult struct {
	ID         string `json:"id"`
	Requested  int    `json:"requested"`
	Attempted  int    `json:"attempted"`
	Succeeded  int    `json:"succeeded"`
	DurationMs int64  `json:"duration_ms"`
	Cancelled  bool   `json:"cancelled"`
}

type executorMetrics struct {
	attempts      *prometheus.CounterVec
	batches       *prometheus.CounterVec
	batchDuration prometheus.Histogram
}

func newExecutorMetrics(r prometheus.Registerer) *executorMetrics {
	var m executorMetrics

	m.attempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "views_attempts_total",
		Help: "Total view attempts by outcome",
	}, []string{"outcome"})

	m.batches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "views_batches_total",
		Help: "Total finished batches by status",
	}, []string{"status"})

	m.batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "views_batch_duration_seconds",
		Help:    "Duration of view batches",
		Buckets: prometheus.ExponentialBuckets(1, 2, 16),
	})

	r.MustRegister(m.attempts, m.batches, m.batchDuration)
	return &m
}

// Executor runs the attempts of a batch one after the other. Attempt
// failures lower the success count and never stop the batch.
type Executor struct {
	cfg         Config
	launcher    browser.Launcher
	interaction browser.InteractionPolicy
	identities  IdentitySource
	jitter      *browser.Jitter
	sleep       browser.Sleeper
	now         func() time.Time
	logger      *logrus.Logger
	metrics     *executorMetrics
}

type ExecutorOption func(*Executor)

func WithSleeper(sleep browser.Sleeper) ExecutorOption {
	return func(e *Executor) {
		e.sleep = sleep
	}
}

func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		e.now = now
	}
}

func NewExecutor(
	cfg Config,
	launcher browser.Launcher,
	interaction browser.InteractionPolicy,
	identities IdentitySource,
	jitter *browser.Jitter,
	logger *logrus.Logger,
	registerer prometheus.Registerer,
	opts ...ExecutorOption) *Executor {

	e := &Executor{
		cfg:         cfg,
		launcher:    launcher,
		interaction: interaction,
		identities:  identities,
		jitter:      jitter,
		sleep:       browser.Sleep,
		now:         time.Now,
		logger:      logger,
		metrics:     newExecutorMetrics(registerer),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes every attempt of b in order. ctx is only checked between
// attempts; an attempt that already started runs to its Release step.
func (e *Executor) Run(ctx context.Context, b Batch) BatchResult {
	start := e.now()
	result := BatchResult{
		ID:        b.ID,
		Requested: b.Request.RequestedCount(),
	}

	logger := e.logger.WithFields(logrus.Fields{
		"caller": b.Caller,
		"batch":  b.ID,
	})
	logger.WithFields(logrus.Fields{
		"url":       b.Request.TargetURL(),
		"requested": result.Requested,
		"proxies":   b.Proxies.Len(),
	}).Info("batch started")

	for i := 0; i < result.Requested; i++ {
		if ctx.Err() != nil {
			result.Cancelled = true
			break
		}

		outcome := e.attempt(context.WithoutCancel(ctx), b, i, logger)
		result.Attempted++
		if outcome.Succeeded {
			result.Succeeded++
			e.metrics.attempts.WithLabelValues("success").Inc()
		} else {
			e.metrics.attempts.WithLabelValues(string(outcome.ErrorKind)).Inc()
		}

		// an interrupted delay is picked up by the checkpoint above
		_ = e.sleep(ctx, e.jitter.Duration(e.cfg.DelayMin, e.cfg.DelayMax))
	}

	elapsed := e.now().Sub(start)
	result.DurationMs = elapsed.Milliseconds()

	status := "completed"
	if result.Cancelled {
		status = "cancelled"
	}
	e.metrics.batches.WithLabelValues(status).Inc()
	e.metrics.batchDuration.Observe(elapsed.Seconds())

	logger.WithFields(logrus.Fields{
		"attempted":   result.Attempted,
		"succeeded":   result.Succeeded,
		"duration_ms": result.DurationMs,
		"cancelled":   result.Cancelled,
	}).Info("batch finished")

	return result
}

func (e *Executor) attempt(ctx context.Context, b Batch, index int, logger *logrus.Entry) AttemptOutcome {
	outcome := AttemptOutcome{Index: index}

	// SelectProxy
	if p, ok := b.Proxies.SelectOne(e.jitter); ok {
		outcome.Proxy = &p
	}

	logger = logger.WithField("attempt", index)
	if outcome.Proxy != nil {
		logger = logger.WithField("proxy", outcome.Proxy.String())
	}

	// Acquire
	session, err := e.launcher.Create(ctx, outcome.Proxy, e.identities.Random())
	if err != nil {
		return outcome.fail(logger, browser.KindOf(err, browser.KindSessionCreation), err)
	}
	defer e.release(session, logger)

	// Navigate
	if err := session.Navigate(ctx, b.Request.TargetURL(), e.cfg.NavigationTimeout); err != nil {
		return outcome.fail(logger, browser.KindOf(err, browser.KindNavigation), err)
	}

	// Simulate
	if err := e.interaction.Simulate(ctx, session); err != nil {
		return outcome.fail(logger, browser.KindOf(err, browser.KindInteraction), err)
	}

	outcome.Succeeded = true
	logger.Debug("attempt succeeded")
	return outcome
}

func (e *Executor) release(session browser.Session, logger *logrus.Entry) {
	if err := session.Close(); err != nil {
		logger.WithError(err).Warn("could not close session")
	}
}

func (o AttemptOutcome) fail(logger *logrus.Entry, kind browser.ErrorKind, err error) AttemptOutcome {
	o.Succeeded = false
	o.ErrorKind = kind
	o.Err = err
	logger.WithError(err).WithField("kind", kind).Info("attempt failed")
	return o
}
