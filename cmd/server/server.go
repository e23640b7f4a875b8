package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	rediscli "github.com/go-redis/redis/v7"
	"github.com/gocql/gocql"
	"github.com/oklog/run"
	"github.com/peterbourgon/ff"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/version"
	"github.com/sirupsen/logrus"

	"github.com/samueltorres/r8views/pkg/browser"
	"github.com/samueltorres/r8views/pkg/callers"
	"github.com/samueltorres/r8views/pkg/cassandra"
	"github.com/samueltorres/r8views/pkg/chat"
	"github.com/samueltorres/r8views/pkg/configs"
	"github.com/samueltorres/r8views/pkg/engine"
	"github.com/samueltorres/r8views/pkg/file"
	"github.com/samueltorres/r8views/pkg/limiter"
	"github.com/samueltorres/r8views/pkg/redis"
	httptransport "github.com/samueltorres/r8views/pkg/transport/http"
	"github.com/samueltorres/r8views/pkg/views"
)

func main() {
	config := parseConfig()
	logger := createLogger(config)

	// metrics
	metrics := prometheus.NewRegistry()
	metrics.MustRegister(
		version.NewCollector("r8views"),
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	// caller state
	callerStorage, err := createCallerStorage(config, logger)
	if err != nil {
		logger.Fatalf("could not create caller storage: %v", err)
	}

	registry := callers.NewRegistry(callerStorage, config.Views.RateWindow, logger)
	if err := registry.Load(context.Background()); err != nil {
		logger.Fatalf("could not load callers: %v", err)
	}

	// view executor
	jitter := browser.NewJitter(time.Now().UnixNano())

	identityService, err := file.NewIdentityService(config.IdentitiesFile, jitter, logger)
	if err != nil {
		logger.Fatalf("error creating identity service: %v", err)
	}

	launcher := browser.NewRodLauncher(browser.RodConfig{
		Bin:         config.Browser.Bin,
		Headless:    config.Browser.Headless,
		ScrollSteps: config.Browser.ScrollSteps,
	}, logger)

	interaction := browser.NewRandomScroll(browser.ScrollConfig{
		MinScroll: config.Browser.MinScroll,
		MaxScroll: config.Browser.MaxScroll,
		MinPause:  config.Browser.MinPause,
		MaxPause:  config.Browser.MaxPause,
	}, jitter, browser.Sleep)

	executor := views.NewExecutor(views.Config{
		NavigationTimeout: config.Views.NavigationTimeout,
		DelayMin:          config.Views.DelayMin,
		DelayMax:          config.Views.DelayMax,
	}, launcher, interaction, identityService, jitter, logger, metrics)

	// admission
	limiterService := limiter.NewLimiterService(limiter.Policy{
		Capacity: config.Views.MaxRequestsPerHour,
		Window:   config.Views.RateWindow,
	}, logger, metrics)

	service := engine.NewService(registry, limiterService, executor, views.RequestPolicy{
		MaxViews:     config.Views.MaxViewsPerRequest,
		TargetDomain: config.Views.TargetDomain,
	}, logger)

	outbox := chat.NewOutbox(config.Views.OutboxLimit)
	bot := chat.NewBot(service, outbox, logger)

	cancel := make(chan struct{})

	var g run.Group
	{
		g.Add(func() error {
			return service.RunDispatcher(cancel)
		}, func(error) {})
	}
	{
		g.Add(func() error {
			identityService.Watch()
			<-cancel
			return nil
		}, func(error) {})
	}
	{
		viewsHTTPServer := httptransport.New(
			service,
			bot,
			outbox,
			logger,
			metrics,
			httptransport.WithListen(config.HttpAddr),
			httptransport.WithShutdownTimeout(config.ShutdownTimeout))

		g.Add(func() error {
			return viewsHTTPServer.Start()
		}, func(err error) {
			viewsHTTPServer.Stop(err)
		})
	}
	{
		debugServer := createDebugServer(config, metrics)

		g.Add(func() error {
			logger.WithField("addr", config.DebugAddr).Info("debug server listening")
			return debugServer.ListenAndServe()
		}, func(error) {
			ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
			defer cancel()
			debugServer.Shutdown(ctx)
		})
	}
	{
		g.Add(func() error {
			c := make(chan os.Signal, 1)
			signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
			select {
			case sig := <-c:
				return fmt.Errorf("received signal %s", sig)
			case <-cancel:
				return nil
			}
		}, func(error) {
			close(cancel)
		})
	}

	logger.Info("exit ", g.Run())

	ctx, cancelFlush := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelFlush()
	if err := registry.Flush(ctx); err != nil {
		logger.WithError(err).Error("could not persist callers on shutdown")
	}
}

func parseConfig() configs.Config {
	fs := flag.NewFlagSet("r8views", flag.ExitOnError)
	var (
		httpAddress        = fs.String("http-addr", ":8082", "http address")
		debugAddress       = fs.String("debug-addr", ":8083", "debug address for metrics and healthcheck")
		shutdownTimeout    = fs.Duration("shutdown-timeout", 5*time.Second, "grace period of the http servers on shutdown")
		datastore          = fs.String("datastore", "file", "datastore type (file/redis/cassandra/memory)")
		stateFile          = fs.String("state-file", "./data/callers.json", "caller state file for the file datastore")
		cassandraHost      = fs.String("cassandra-host", "", "cassandra hosts, comma separated")
		cassandraKeyspace  = fs.String("cassandra-keyspace", "svc_views", "cassandra keyspace")
		redisAddress       = fs.String("redis-address", "", "redis address")
		redisDatabase      = fs.Int("redis-database", 0, "redis database")
		redisPassword      = fs.String("redis-password", "", "redis password")
		redisPrefix        = fs.String("redis-prefix", "r8v:", "redis key prefix")
		identitiesFile     = fs.String("identities-file", "", "yaml file with browser identities, built-in list when empty")
		logLevel           = fs.String("log-level", "info", "log level (panic, fatal, error, warn, info, debug, trace)")
		maxViews           = fs.Int("max-views-per-request", 5000, "max views of a single request")
		maxRequests        = fs.Int("max-requests-per-hour", 5, "admitted requests per caller and rate window")
		rateWindow         = fs.Duration("rate-window", time.Hour, "rate limit window")
		delayMin           = fs.Duration("delay-min", time.Second, "min delay between attempts")
		delayMax           = fs.Duration("delay-max", 3*time.Second, "max delay between attempts")
		navigationTimeout  = fs.Duration("navigation-timeout", 30*time.Second, "page load timeout")
		targetDomain       = fs.String("target-domain", "tiktok.com", "domain the target url must belong to")
		outboxLimit        = fs.Int("outbox-limit", 100, "notifications kept per caller, 0 keeps all")
		browserBin         = fs.String("browser-bin", "", "browser binary, downloaded when empty")
		browserHeadless    = fs.Bool("browser-headless", true, "run the browser headless")
		browserScrollSteps = fs.Int("browser-scroll-steps", 8, "mouse wheel steps per scroll")
		minScroll          = fs.Int("min-scroll", 300, "min scroll distance in pixels")
		maxScroll          = fs.Int("max-scroll", 1200, "max scroll distance in pixels")
		minPause           = fs.Duration("min-pause", 2*time.Second, "min pause after scrolling")
		maxPause           = fs.Duration("max-pause", 5*time.Second, "max pause after scrolling")
	)
	ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("R8V"))

	var config configs.Config
	{
		config.HttpAddr = *httpAddress
		config.DebugAddr = *debugAddress
		config.ShutdownTimeout = *shutdownTimeout
		config.Datastore = *datastore
		config.StateFile = *stateFile
		config.Cassandra.Hosts = *cassandraHost
		config.Cassandra.Keyspace = *cassandraKeyspace
		config.Redis.Address = *redisAddress
		config.Redis.Database = *redisDatabase
		config.Redis.Password = *redisPassword
		config.Redis.Prefix = *redisPrefix
		config.IdentitiesFile = *identitiesFile
		config.LogLevel = *logLevel
		config.Views.MaxViewsPerRequest = *maxViews
		config.Views.MaxRequestsPerHour = *maxRequests
		config.Views.RateWindow = *rateWindow
		config.Views.DelayMin = *delayMin
		config.Views.DelayMax = *delayMax
		config.Views.NavigationTimeout = *navigationTimeout
		config.Views.TargetDomain = *targetDomain
		config.Views.OutboxLimit = *outboxLimit
		config.Browser.Bin = *browserBin
		config.Browser.Headless = *browserHeadless
		config.Browser.ScrollSteps = *browserScrollSteps
		config.Browser.MinScroll = *minScroll
		config.Browser.MaxScroll = *maxScroll
		config.Browser.MinPause = *minPause
		config.Browser.MaxPause = *maxPause
	}

	return config
}

func createLogger(config configs.Config) *logrus.Logger {
	logger := logrus.StandardLogger()
	level, err := logrus.ParseLevel(config.LogLevel)
	if err != nil {
		level = logrus.ErrorLevel
	}

	logger.Infof("setting log level to %v", level)
	logger.SetLevel(level)

	return logger
}

func createCallerStorage(config configs.Config, logger *logrus.Logger) (callers.Storage, error) {
	switch config.Datastore {
	case "file":
		return file.NewStateStorage(config.StateFile), nil

	case "memory":
		return callers.NewMemoryStorage(), nil

	case "redis":
		redisClient := rediscli.NewClient(&rediscli.Options{
			Addr:     config.Redis.Address,
			Password: config.Redis.Password,
			DB:       config.Redis.Database,
		})

		_, err := redisClient.Ping().Result()
		if err != nil {
			return nil, fmt.Errorf("could not connect to redis : %w", err)
		}

		return redis.NewRemoteStorage(redisClient, config.Redis.Prefix, logger), nil

	case "cassandra":
		cluster := gocql.NewCluster(strings.Split(config.Cassandra.Hosts, ",")...)
		cluster.Keyspace = config.Cassandra.Keyspace
		cluster.Consistency = gocql.LocalQuorum
		session, err := cluster.CreateSession()

		if err != nil {
			return nil, fmt.Errorf("could not create cassandra session : %w", err)
		}

		return cassandra.NewRemoteStorage(logger, session), nil
	default:
		return nil, fmt.Errorf("invalid datastore %s", config.Datastore)
	}
}

func createDebugServer(config configs.Config, metrics *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return &http.Server{
		Addr:    config.DebugAddr,
		Handler: mux,
	}
}
