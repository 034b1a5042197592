package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	domrepo "ShrimpCast/internal/domain/repository"
	"ShrimpCast/internal/handler/api"
	"ShrimpCast/internal/handler/ws"
	"ShrimpCast/pkg/cache"
	"ShrimpCast/pkg/config"
	xhttp "ShrimpCast/pkg/http"
	pkgkafka "ShrimpCast/pkg/kafka"
	applogger "ShrimpCast/pkg/logger"
	"ShrimpCast/pkg/queue"
)

// Deps are the long-lived components App starts and stops.
type Deps struct {
	Store    domrepo.Store
	Cache    cache.Service
	Producer *pkgkafka.Producer
	Consumer *pkgkafka.Consumer
	Handlers []pkgkafka.MessageHandler
	Queue    queue.Queue
	Jobs     []queue.Job
	API      *api.ForecastEchoHandler
	Hub      *ws.Hub
	Events   domrepo.EventPublisher
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	deps       Deps
	httpServer *xhttp.Server
	cancel     context.CancelFunc
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, deps Deps) *App {
	return &App{cfg: cfg, logger: l, deps: deps}
}

// Start launches every component and returns once they are running.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)
	l := a.logger

	if a.deps.Producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval: a.cfg.Log.CollectorInterval,
			Topic:        a.cfg.Kafka.Topics.Logs,
			Publisher:    a.deps.Producer,
		})
	}

	if a.deps.Hub != nil {
		go a.deps.Hub.Run(ctx)
	}

	if a.deps.Queue != nil {
		for _, job := range a.deps.Jobs {
			a.deps.Queue.RegisterJob(job)
		}
		if err := a.deps.Queue.Start(); err != nil {
			return err
		}
	}

	if a.deps.Consumer != nil && len(a.deps.Handlers) > 0 {
		a.deps.Consumer.WithConsumerHook(pkgkafka.NewLoggingHook(l.Named("kafka")))
		topics := make([]string, 0, len(a.deps.Handlers))
		for _, h := range a.deps.Handlers {
			a.deps.Consumer.RegisterHandler(h)
			topics = append(topics, h.Topic())
		}
		if err := a.deps.Consumer.Start(); err != nil {
			return err
		}
		l.Info("kafka consumer started", applogger.Strings("topics", topics))
	}

	var handlers []xhttp.Handler
	if a.deps.API != nil {
		handlers = append(handlers, a.deps.API)
		go a.deps.API.PruneRateLimits(ctx, a.cfg.Server.RateLimit.Prune)
	}
	if a.deps.Hub != nil {
		handlers = append(handlers, a.deps.Hub)
	}
	metricsPath := ""
	if a.cfg.Metrics.Enabled {
		metricsPath = a.cfg.Metrics.Path
	}
	a.httpServer = xhttp.NewServer(handlers,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithRequestTimeout(a.cfg.Server.RequestTimeout),
		xhttp.WithCORS(a.cfg.Server.CORSOrigins),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithLogger(l.Named("http")),
	)
	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}

	l.Info("shrimpcast started",
		applogger.String("env", a.cfg.Environment),
		applogger.String("store", a.cfg.Store.Backend),
		applogger.Int("port", a.cfg.Server.Port))
	return nil
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx := context.Background()
	if err := a.Start(ctx); err != nil {
		_ = a.Shutdown(ctx)
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.logger.Info("shutdown signal received")
	return a.Shutdown(ctx)
}

// Shutdown stops components in reverse start order. Errors are logged so
// that every component gets its chance to close.
func (a *App) Shutdown(ctx context.Context) error {
	l := a.logger
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			l.Error("http shutdown error", applogger.Error(err))
		}
	}

	if a.deps.Consumer != nil {
		if err := a.deps.Consumer.Stop(ctx); err != nil {
			l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.deps.Queue != nil {
		if err := a.deps.Queue.Stop(ctx); err != nil {
			l.Warn("queue stop error", applogger.Error(err))
		}
	}

	if a.cancel != nil {
		a.cancel()
	}

	// flushes buffered log batches while the producer is still open
	l.RemoveCollector()

	if a.deps.Events != nil {
		if err := a.deps.Events.Close(); err != nil {
			l.Warn("event publisher close error", applogger.Error(err))
		}
	}

	if a.deps.Cache != nil {
		if err := a.deps.Cache.Close(); err != nil {
			l.Warn("cache close error", applogger.Error(err))
		}
	}

	if a.deps.Store != nil {
		if err := a.deps.Store.Close(); err != nil {
			l.Warn("store close error", applogger.Error(err))
		}
	}

	l.Info("shutdown complete")
	return nil
}
