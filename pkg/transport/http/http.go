package http

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/samueltorres/r8views/pkg/chat"
	"github.com/samueltorres/r8views/pkg/views"
)

// Conversation is the chat collaborator behind the messages endpoint.
type Conversation interface {
	Handle(ctx context.Context, callerID string, msg chat.Message) ([]string, error)
	NotifyCompletion(callerID string) func(views.BatchResult)
}

// Mailbox hands out the notifications queued for a caller.
type Mailbox interface {
	Drain(callerID string) []string
}

type Server struct {
	engine       chat.Engine
	conversation Conversation
	mailbox      Mailbox
	router       *httprouter.Router
	metrics      *routeMetrics
	logger       *logrus.Logger

	listen          string
	shutdownTimeout time.Duration
	server          *http.Server
}

type Option func(*Server)

func WithListen(addr string) Option {
	return func(s *Server) {
		s.listen = addr
	}
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.shutdownTimeout = d
	}
}

func New(
	engine chat.Engine,
	conversation Conversation,
	mailbox Mailbox,
	logger *logrus.Logger,
	registerer prometheus.Registerer,
	opts ...Option) *Server {

	s := &Server{
		engine:          engine,
		conversation:    conversation,
		mailbox:         mailbox,
		router:          httprouter.New(),
		metrics:         newRouteMetrics(registerer),
		logger:          logger,
		listen:          ":8082",
		shutdownTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerRoutes()
	s.server = &http.Server{
		Addr:    s.listen,
		Handler: s,
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	s.router.ServeHTTP(w, req)
}

func (s *Server) registerRoutes() {
	s.router.GET("/v1/callers/:id", s.metrics.instrument("status", s.handleStatus))
	s.router.POST("/v1/callers/:id/messages", s.metrics.instrument("messages", s.handleMessage))
	s.router.GET("/v1/callers/:id/outbox", s.metrics.instrument("outbox", s.handleOutbox))
	s.router.GET("/v1/callers/:id/proxies", s.metrics.instrument("list_proxies", s.handleListProxies))
	s.router.POST("/v1/callers/:id/proxies", s.metrics.instrument("add_proxies", s.handleAddProxies))
	s.router.DELETE("/v1/callers/:id/proxies", s.metrics.instrument("clear_proxies", s.handleClearProxies))
	s.router.POST("/v1/callers/:id/batches", s.metrics.instrument("batches", s.handleSubmitBatch))
}

// Start blocks serving requests until Stop is called.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.listen).Info("http server listening")
	return s.server.ListenAndServe()
}

func (s *Server) Stop(err error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if shutdownErr := s.server.Shutdown(ctx); shutdownErr != nil {
		s.logger.WithError(shutdownErr).Warn("http server did not shut down cleanly")
	}
	s.logger.WithError(err).Info("http server stopped")
}
