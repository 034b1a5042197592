package usecase

import (
	"time"

	domrepo "ShrimpCast/internal/domain/repository"
	"ShrimpCast/pkg/cache"
	"ShrimpCast/pkg/logger"
	"ShrimpCast/pkg/metrics"
)

// Option configures the services in this package.
type Option func(*deps)

type deps struct {
	cache        cache.Service
	cacheTTL     time.Duration
	events       domrepo.EventPublisher
	broadcaster  domrepo.Broadcaster
	metrics      domrepo.Metrics
	logger       *logger.Logger
	clock        func() time.Time
	lookbackDays int
	batchWorkers int
	reportDays   int
}

func defaultDeps() deps {
	return deps{
		cacheTTL:     10 * time.Minute,
		metrics:      metrics.Nop{},
		logger:       logger.Nop(),
		clock:        time.Now,
		lookbackDays: 90,
		batchWorkers: 4,
		reportDays:   30,
	}
}

func applyOptions(opts []Option) deps {
	d := defaultDeps()
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// WithCache enables forecast caching. A nil cache disables it.
func WithCache(c cache.Service, ttl time.Duration) Option {
	return func(d *deps) {
		d.cache = c
		if ttl > 0 {
			d.cacheTTL = ttl
		}
	}
}

func WithEvents(p domrepo.EventPublisher) Option {
	return func(d *deps) { d.events = p }
}

func WithBroadcaster(b domrepo.Broadcaster) Option {
	return func(d *deps) { d.broadcaster = b }
}

func WithMetrics(m domrepo.Metrics) Option {
	return func(d *deps) {
		if m != nil {
			d.metrics = m
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(d *deps) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithClock overrides time.Now; "today" is the UTC date of the clock.
func WithClock(fn func() time.Time) Option {
	return func(d *deps) { d.clock = fn }
}

// WithLookbackDays sets the window used when a caller passes 0.
func WithLookbackDays(n int) Option {
	return func(d *deps) {
		if n > 0 {
			d.lookbackDays = n
		}
	}
}

// WithBatchWorkers bounds the parallelism of ForecastBatch.
func WithBatchWorkers(n int) Option {
	return func(d *deps) {
		if n > 0 {
			d.batchWorkers = n
		}
	}
}
