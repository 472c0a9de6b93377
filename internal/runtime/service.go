package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	cachepkg "github.com/drblury/resourceflow/internal/runtime/cache"
	configpkg "github.com/drblury/resourceflow/internal/runtime/config"
	errspkg "github.com/drblury/resourceflow/internal/runtime/errors"
	"github.com/drblury/resourceflow/internal/runtime/events"
	"github.com/drblury/resourceflow/internal/runtime/httpapi"
	loggingpkg "github.com/drblury/resourceflow/internal/runtime/logging"
	"github.com/drblury/resourceflow/internal/runtime/outbound"
	"github.com/drblury/resourceflow/internal/runtime/resource"
	"github.com/drblury/resourceflow/internal/runtime/store/memory"
	"github.com/drblury/resourceflow/internal/runtime/store/postgres"
	transportpkg "github.com/drblury/resourceflow/internal/runtime/transport"
	"github.com/drblury/resourceflow/transport"
)

// ServiceDependencies holds optional collaborators. Nil fields fall back to
// what the configuration selects.
type ServiceDependencies struct {
	// Store replaces the configured resource store.
	Store resource.Store
	// ProcessedSet replaces the configured processed-event set.
	ProcessedSet events.ProcessedSet
	// Processor handles consumed events. The default logs them.
	Processor        events.Processor
	TransportFactory transportpkg.Factory
	// Registerer and Gatherer default to the prometheus globals.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	// HTTPDoer replaces the HTTP client used for outbound calls.
	HTTPDoer outbound.Doer
	// Hooks run around every consumer and dead-letter delivery, after the
	// built-in logging hooks.
	Hooks DeliveryHooks
}

// Service wires the resource API, the event producer, the consumer and the
// dead-letter drain onto one transport and one Watermill router.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	Resources *resource.Service
	Producer  *events.Producer
	DLQ       *DLQMetrics

	transport transport.Transport
	router    *message.Router
	db        *gorm.DB
	store     resource.Store
	handler   http.Handler
	hooks     DeliveryHooks

	handlersMu sync.RWMutex
	handlers   []*HandlerInfo

	closeOnce sync.Once
	closeErr  error
}

// NewService builds every component from conf. Call Run to start serving.
func NewService(ctx context.Context, conf *configpkg.Config, log loggingpkg.ServiceLogger, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, errors.New("resourceflow: config is required")
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	wmLogger := loggingpkg.NewWatermillAdapter(log)
	log.Info("Creating resource service", loggingpkg.LogFields{
		"pubsub_system": conf.PubSubSystem,
		"store_backend": conf.StoreBackend,
		"config":        conf.String(),
	})

	registerer, gatherer := deps.Registerer, deps.Gatherer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Service{
		Conf:   conf,
		Logger: log,
		DLQ:    NewDLQMetrics(registerer),
		hooks:  LoggingHooks(log).Merge(deps.Hooks),
	}
	if conf.MetricsEnabled {
		if err := s.DLQ.Register(); err != nil {
			return nil, fmt.Errorf("register dlq metrics: %w", err)
		}
	}

	processed, err := s.openStore(ctx, deps)
	if err != nil {
		return nil, err
	}

	factory := deps.TransportFactory
	if factory == nil {
		factory = transportpkg.DefaultFactory()
	}
	s.transport, err = factory.Build(ctx, conf, wmLogger)
	if err != nil {
		return nil, s.abort(err)
	}

	s.Producer, err = events.NewProducer(s.transport.Publisher, conf.EventsTopic, conf.DeadLetterTopic,
		events.WithProducerLogger(log),
		events.WithDeadLetterRecorder(s.DLQ),
	)
	if err != nil {
		return nil, s.abort(err)
	}

	s.Resources, err = resource.NewService(s.store,
		resource.WithCache(cachepkg.New[int64, resource.Entity](conf.CacheSize, conf.CacheTTL)),
		resource.WithNotifier(&eventNotifier{producer: s.Producer, log: log}),
		resource.WithLogger(log),
	)
	if err != nil {
		return nil, s.abort(err)
	}

	s.router, err = message.NewRouter(message.RouterConfig{CloseTimeout: conf.ShutdownTimeout}, wmLogger)
	if err != nil {
		return nil, s.abort(err)
	}
	if conf.MetricsEnabled {
		metrics.NewPrometheusMetricsBuilder(registerer, metricsNamespace, conf.PubSubSystem).AddPrometheusRouterMetrics(s.router)
	}

	processor := deps.Processor
	if processor == nil {
		processor = logProcessor{log: log}
	}
	if err := s.registerConsumer(processor, processed, wmLogger); err != nil {
		return nil, s.abort(err)
	}
	if err := s.registerDLQHandler(); err != nil {
		return nil, s.abort(err)
	}

	s.handler, err = s.newHTTPHandler(registerer, gatherer, deps.HTTPDoer)
	if err != nil {
		return nil, s.abort(err)
	}
	return s, nil
}

func (s *Service) openStore(ctx context.Context, deps ServiceDependencies) (events.ProcessedSet, error) {
	processed := deps.ProcessedSet
	if deps.Store != nil {
		s.store = deps.Store
		return processed, nil
	}

	switch strings.ToLower(s.Conf.StoreBackend) {
	case "postgres":
		db, err := postgres.Open(ctx, s.Conf.PostgresURL)
		if err != nil {
			return nil, err
		}
		s.db = db
		if s.Conf.PostgresAutoMigrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				return nil, s.abort(err)
			}
		}
		s.store = postgres.NewStore(db)
		if processed == nil {
			processed = postgres.NewProcessedEvents(db)
		}
	default:
		s.store = memory.New()
	}

	if processed == nil {
		processed = events.NewMemoryProcessedSet(s.Conf.DedupSize, s.Conf.DedupTTL)
	}
	return processed, nil
}

func (s *Service) registerConsumer(processor events.Processor, processed events.ProcessedSet, wmLogger watermill.LoggerAdapter) error {
	consumer, err := events.NewConsumer(processor, processed, s.Logger)
	if err != nil {
		return err
	}
	sub, err := s.transport.Subscriber(s.Conf.ConsumerGroup)
	if err != nil {
		return err
	}
	deadLetter, err := DeadLetterMiddleware(s.transport.Publisher, s.Conf.DeadLetterTopic,
		DeadLetterFilter(s.Conf.DeadLetterAfterRetries), s.DLQ)
	if err != nil {
		return err
	}

	stats := newHandlerStats()
	name := s.Conf.ServiceName + "-consumer"
	s.router.AddNoPublisherHandler(name, s.Conf.EventsTopic, sub, consumer.Handle).AddMiddleware(
		CorrelationIDMiddleware,
		TracerMiddleware,
		LogMessagesMiddleware(s.Logger),
		s.hooks.Middleware,
		stats.Middleware,
		deadLetter,
		RetryMiddleware(RetryMiddlewareConfig{
			MaxRetries:      s.Conf.RetryMaxRetries,
			InitialInterval: s.Conf.RetryInitialInterval,
			MaxInterval:     s.Conf.RetryMaxInterval,
		}, wmLogger),
		countAttempts,
		middleware.Recoverer,
	)
	s.addHandlerInfo(&HandlerInfo{Name: name, Topic: s.Conf.EventsTopic, ConsumerGroup: s.Conf.ConsumerGroup, Stats: stats})
	return nil
}

func (s *Service) registerDLQHandler() error {
	group := s.Conf.GetDLQConsumerGroup()
	sub, err := s.transport.Subscriber(group)
	if err != nil {
		return err
	}

	stats := newHandlerStats()
	name := s.Conf.ServiceName + "-dlq"
	drain := events.NewDLQHandler(s.Logger, s.DLQ)
	s.router.AddNoPublisherHandler(name, s.Conf.DeadLetterTopic, sub, drain.Handle).AddMiddleware(
		CorrelationIDMiddleware,
		TracerMiddleware,
		s.hooks.Middleware,
		stats.Middleware,
		middleware.Recoverer,
	)
	s.addHandlerInfo(&HandlerInfo{Name: name, Topic: s.Conf.DeadLetterTopic, ConsumerGroup: group, Stats: stats})
	return nil
}

func (s *Service) newHTTPHandler(registerer prometheus.Registerer, gatherer prometheus.Gatherer, doer outbound.Doer) (http.Handler, error) {
	deps := httpapi.Deps{
		ServiceName: s.Conf.ServiceName,
		Resources:   s.Resources,
		Events:      s.Producer,
		Readiness: []httpapi.ReadinessCheck{
			{Name: "store", Check: s.store.Ping},
			{Name: "router", Check: s.routerReady},
		},
		DLQStats:     func() any { return s.DLQ.GetSnapshot() },
		HandlerStats: func() any { return s.HandlersSnapshot() },
		Logger:       s.Logger,
	}

	if s.Conf.ExternalBaseURL != "" {
		opts := []outbound.Option{outbound.WithBaseURL(s.Conf.ExternalBaseURL)}
		if doer != nil {
			opts = append(opts, outbound.WithDoer(doer))
		}
		deps.External = outbound.NewClient(opts...)
	}

	if s.Conf.MetricsEnabled {
		m, err := httpapi.NewMetrics(registerer)
		if err != nil {
			return nil, fmt.Errorf("register http metrics: %w", err)
		}
		deps.Metrics = m
		deps.MetricsHandler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	return httpapi.NewRouter(deps), nil
}

func (s *Service) routerReady(context.Context) error {
	if !s.router.IsRunning() {
		return errors.New("message router is not running")
	}
	return nil
}

func (s *Service) addHandlerInfo(info *HandlerInfo) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.handlers = append(s.handlers, info)
}

// HandlersSnapshot reports the registered message handlers with their stats.
func (s *Service) HandlersSnapshot() HandlersSnapshot {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()

	snapshot := HandlersSnapshot{
		Handlers:    make([]HandlerSnapshot, 0, len(s.handlers)),
		Process:     processUsage(),
		CollectedAt: time.Now().UTC(),
	}
	for _, h := range s.handlers {
		snapshot.Handlers = append(snapshot.Handlers, HandlerSnapshot{
			Name:          h.Name,
			Topic:         h.Topic,
			ConsumerGroup: h.ConsumerGroup,
			Stats:         h.Stats.Values(),
		})
	}
	return snapshot
}

// Handler returns the HTTP API.
func (s *Service) Handler() http.Handler {
	return s.handler
}

// Router exposes the Watermill router, mainly for tests waiting on Running.
func (s *Service) Router() *message.Router {
	return s.router
}

// Run starts the message router and, once it is running, the HTTP server.
// It returns when ctx is cancelled or either fails, after closing the service.
func (s *Service) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.router.Run(gctx)
	})
	g.Go(func() error {
		select {
		case <-s.router.Running():
		case <-gctx.Done():
			return nil
		}
		return httpapi.Serve(gctx, httpapi.ServerConfig{
			Addr:            s.Conf.HTTPAddress,
			ShutdownTimeout: s.Conf.ShutdownTimeout,
		}, s.handler, s.Logger)
	})
	runErr := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), s.Conf.ShutdownTimeout)
	defer cancel()
	return errors.Join(runErr, s.Close(closeCtx))
}

// Close drains in-flight publishes and releases the router, the transport
// and the database. Safe to call more than once.
func (s *Service) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.Producer != nil {
			if err := s.Producer.Close(ctx); err != nil {
				errs = append(errs, fmt.Errorf("drain producer: %w", err))
			}
		}
		if s.router != nil {
			if err := s.router.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close router: %w", err))
			}
		}
		if err := s.transport.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close transport: %w", err))
		}
		if s.db != nil {
			if err := postgres.Close(s.db); err != nil {
				errs = append(errs, err)
			}
		}
		s.closeErr = errors.Join(errs...)
		if s.closeErr != nil {
			s.Logger.Error("Service closed with errors", s.closeErr, nil)
		} else {
			s.Logger.Info("Service closed", nil)
		}
	})
	return s.closeErr
}

// abort releases whatever NewService opened before failing with err.
func (s *Service) abort(err error) error {
	if s.db != nil {
		_ = postgres.Close(s.db)
	}
	_ = s.transport.Close()
	return err
}
