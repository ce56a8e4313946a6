// Package app wires the daemon connection, the supervisor and the engine
// into one runnable unit for a given tray host.
package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mulltray/mulltray/internal/buildinfo"
	"github.com/mulltray/mulltray/internal/engine"
	"github.com/mulltray/mulltray/internal/metrics"
	"github.com/mulltray/mulltray/internal/mgmt"
	"github.com/mulltray/mulltray/internal/models"
	"github.com/mulltray/mulltray/internal/state"
	"github.com/mulltray/mulltray/internal/supervisor"
	"github.com/mulltray/mulltray/internal/tray"
	"github.com/mulltray/mulltray/internal/watcher"
)

// Options configures an App.
type Options struct {
	SocketPath string
	Settings   *models.Settings
	Host       tray.Host
	Logger     *zap.Logger

	// Metrics is optional. The HTTP listener starts only when
	// Settings.MetricsAddr is set.
	Metrics *metrics.Metrics

	// OnQuit runs when the user picks Quit.
	OnQuit func()
}

// App is one tray client session.
type App struct {
	socketPath  string
	metricsAddr string
	logger      *zap.Logger
	metrics     *metrics.Metrics

	client     *mgmt.Client
	engine     *engine.Engine
	supervisor *supervisor.Supervisor
}

// New builds the component graph. Nothing runs until Run.
func New(opts Options) *App {
	settings := opts.Settings
	if settings == nil {
		settings = models.NewSettings()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := mgmt.NewTransport(opts.SocketPath,
		mgmt.WithTimeout(settings.RequestTimeout),
		mgmt.WithLogger(logger.Named("transport")),
	)
	client := mgmt.NewClient(transport, logger.Named("client"), opts.Metrics)

	eng := engine.New(client, opts.Host, engine.Options{
		Logger:  logger.Named("engine"),
		Metrics: opts.Metrics,
		OnQuit:  opts.OnQuit,
	})
	sup := supervisor.New(supervisor.ForClient(client), eng, supervisor.Options{
		InitialBackoff: settings.Backoff.Initial,
		MaxBackoff:     settings.Backoff.Max,
		Logger:         logger.Named("supervisor"),
		Metrics:        opts.Metrics,
	})

	return &App{
		socketPath:  opts.SocketPath,
		metricsAddr: settings.MetricsAddr,
		logger:      logger,
		metrics:     opts.Metrics,
		client:      client,
		engine:      eng,
		supervisor:  sup,
	}
}

// Dispatch forwards a menu command to the engine. Safe from any goroutine.
func (a *App) Dispatch(cmd models.Command) {
	a.engine.Dispatch(cmd)
}

// Snapshot returns the engine's latest accepted snapshot.
func (a *App) Snapshot() state.Snapshot {
	return a.engine.Snapshot()
}

// Phase returns the supervisor's phase.
func (a *App) Phase() supervisor.Phase {
	return a.supervisor.Phase()
}

// Run runs until ctx is cancelled and everything has shut down. A missing
// daemon is not an error; the supervisor keeps retrying.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting",
		zap.String("version", buildinfo.UserAgent()),
		zap.String("socket", a.socketPath),
	)

	w, err := watcher.New(a.socketPath, a.supervisor.Wake, a.logger.Named("watcher"))
	if err == nil {
		err = w.Start()
	}
	if err != nil {
		a.logger.Warn("socket watcher disabled", zap.Error(err))
	}
	if w != nil {
		defer w.Stop()
	}

	var wg sync.WaitGroup
	if a.metricsAddr != "" && a.metrics != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.metrics.Serve(ctx, a.metricsAddr, a.logger.Named("metrics")); err != nil {
				a.logger.Warn("metrics listener failed", zap.Error(err))
			}
		}()
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = a.engine.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		_ = a.supervisor.Run(ctx)
	}()

	<-ctx.Done()
	wg.Wait()
	a.logger.Info("stopped")
	return nil
}

// Once connects to the daemon, runs fn with a connected client and
// disconnects. It backs the one-shot CLI commands.
func Once(ctx context.Context, socketPath string, timeout time.Duration, logger *zap.Logger, fn func(context.Context, *mgmt.Client) error) error {
	transport := mgmt.NewTransport(socketPath, mgmt.WithTimeout(timeout), mgmt.WithLogger(logger))
	defer transport.Close()

	if err := transport.Connect(ctx); err != nil {
		return err
	}
	return fn(ctx, mgmt.NewClient(transport, logger, nil))
}
