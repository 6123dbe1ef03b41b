package server

import (
	"context"
	"errors"
	"time"

	"AltPull/internal/scheduler"
	xhttp "AltPull/pkg/http"
	pkgkafka "AltPull/pkg/kafka"
	applogger "AltPull/pkg/logger"
)

// Closer releases one infrastructure client at shutdown.
type Closer struct {
	Name  string
	Close func() error
}

// App encapsulates the serve lifecycle: HTTP API, run request consumer and scheduler.
type App struct {
	logger          *applogger.Logger
	httpServer      *xhttp.Server
	consumer        *pkgkafka.Consumer
	handlers        []pkgkafka.MessageHandler
	scheduler       *scheduler.Scheduler
	tick            scheduler.TickFunc
	closers         []Closer
	shutdownTimeout time.Duration
}

// Option configures App.
type Option func(*App)

// WithConsumer starts consumer with handlers registered.
func WithConsumer(c *pkgkafka.Consumer, handlers ...pkgkafka.MessageHandler) Option {
	return func(a *App) {
		a.consumer = c
		a.handlers = handlers
	}
}

// WithScheduler runs tick on every scheduler bucket.
func WithScheduler(s *scheduler.Scheduler, tick scheduler.TickFunc) Option {
	return func(a *App) {
		a.scheduler = s
		a.tick = tick
	}
}

// WithClosers registers clients closed in reverse order at shutdown.
func WithClosers(closers ...Closer) Option {
	return func(a *App) { a.closers = append(a.closers, closers...) }
}

// WithShutdownTimeout bounds graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(a *App) { a.shutdownTimeout = d }
}

// New creates a new App instance.
func New(logger *applogger.Logger, httpServer *xhttp.Server, opts ...Option) *App {
	a := &App{logger: logger, httpServer: httpServer, shutdownTimeout: 15 * time.Second}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = applogger.Nop()
	}
	return a
}

// Run starts every configured component and blocks until ctx is cancelled or the HTTP
// listener fails, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var httpErr <-chan error
	if a.httpServer != nil {
		httpErr = a.httpServer.Start()
	}

	if a.consumer != nil && len(a.handlers) > 0 {
		for _, h := range a.handlers {
			a.consumer.RegisterHandler(h)
			a.logger.Info("kafka consumer handler registered", applogger.String("topic", h.Topic()))
		}
		if err := a.consumer.Start(); err != nil {
			a.logger.Error("kafka consumer start error", applogger.Error(err))
			return errors.Join(err, a.shutdown())
		}
	}

	schedDone := make(chan struct{})
	if a.scheduler != nil && a.tick != nil {
		go func() {
			defer close(schedDone)
			if err := a.scheduler.Run(ctx, a.tick); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("scheduler stopped", applogger.Error(err))
			}
		}()
		a.logger.Info("scheduler started")
	} else {
		close(schedDone)
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err, ok := <-httpErr:
		if ok && err != nil {
			runErr = err
		}
	}

	cancel()
	<-schedDone
	return errors.Join(runErr, a.shutdown())
}

// shutdown stops consumers first so no new runs start, then the HTTP server, then clients.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()
	a.logger.Info("shutting down")

	var errList []error
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.logger.Warn("kafka consumer stop error", applogger.Error(err))
			errList = append(errList, err)
		}
	}
	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.logger.Error("http shutdown error", applogger.Error(err))
			errList = append(errList, err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.Close(); err != nil {
			a.logger.Warn("close error", applogger.String("client", c.Name), applogger.Error(err))
			errList = append(errList, err)
		}
	}

	a.logger.Info("shutdown complete")
	return errors.Join(errList...)
}
