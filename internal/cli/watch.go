package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/mulltray/mulltray/internal/app"
	"github.com/mulltray/mulltray/internal/models"
	"github.com/mulltray/mulltray/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show the tunnel state in the terminal",
	Long: `Show the same state and menu as the tray, in the terminal.

Keys: c connect, d disconnect, q quit.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	env, err := loadEnv(true)
	if err != nil {
		return err
	}
	defer func() { _ = env.logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var a *app.App
	ui := tui.New(env.socketPath, func(c models.Command) { a.Dispatch(c) }, tea.WithAltScreen())
	a = app.New(app.Options{
		SocketPath: env.socketPath,
		Settings:   env.settings,
		Host:       ui,
		Logger:     env.logger,
		Metrics:    env.newMetrics(),
		OnQuit:     ui.Quit,
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.Run(ctx)
	}()
	go func() {
		<-ctx.Done()
		ui.Quit()
	}()

	err = ui.Run()
	cancel()
	<-done
	return err
}
