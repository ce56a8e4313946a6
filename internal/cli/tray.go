package cli

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mulltray/mulltray/internal/app"
	"github.com/mulltray/mulltray/internal/models"
	"github.com/mulltray/mulltray/internal/tray/systray"
)

// runTray runs the system tray on the main goroutine until Quit or a
// signal.
func runTray(cmd *cobra.Command, args []string) error {
	env, err := loadEnv(false)
	if err != nil {
		return err
	}
	defer func() { _ = env.logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The tray needs a dispatch target before the app exists.
	var a *app.App
	t := systray.New(func(c models.Command) { a.Dispatch(c) }, env.logger.Named("tray"))
	a = app.New(app.Options{
		SocketPath: env.socketPath,
		Settings:   env.settings,
		Host:       t,
		Logger:     env.logger,
		Metrics:    env.newMetrics(),
		OnQuit:     systray.Quit,
	})

	done := make(chan struct{})
	var started atomic.Bool
	onStart := func() {
		started.Store(true)
		go func() {
			defer close(done)
			_ = a.Run(ctx)
		}()
		go func() {
			<-ctx.Done()
			env.logger.Info("shutting down", zap.Error(context.Cause(ctx)))
			systray.Quit()
		}()
	}
	onExit := func() {
		cancel()
	}

	// This blocks the main goroutine until the tray exits.
	t.Run(onStart, onExit)

	cancel()
	if started.Load() {
		<-done
	}
	return nil
}
