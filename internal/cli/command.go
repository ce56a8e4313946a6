package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mulltray/mulltray/internal/app"
	"github.com/mulltray/mulltray/internal/mgmt"
	"github.com/mulltray/mulltray/internal/models"
)

var flagWait time.Duration

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Ask the daemon to connect the tunnel",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCommand(cmd, models.CommandConnect)
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Ask the daemon to disconnect the tunnel",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCommand(cmd, models.CommandDisconnect)
	},
}

func init() {
	for _, c := range []*cobra.Command{connectCmd, disconnectCmd} {
		c.Flags().DurationVar(&flagWait, "wait", 0, "wait up to this long for the tunnel to settle")
	}
}

func runCommand(cmd *cobra.Command, command models.Command) error {
	env, err := loadEnv(false)
	if err != nil {
		return err
	}
	defer func() { _ = env.logger.Sync() }()

	return app.Once(cmd.Context(), env.socketPath, env.settings.RequestTimeout, env.logger, func(ctx context.Context, c *mgmt.Client) error {
		// Subscribe first so the settling event cannot slip past.
		var sub *mgmt.Subscription
		if flagWait > 0 {
			waitCtx, cancel := context.WithTimeout(ctx, flagWait)
			defer cancel()
			s, err := c.Subscribe(waitCtx)
			if err != nil {
				return err
			}
			sub = s
			defer sub.Close()
		}

		changed, err := send(ctx, c, command)
		if err != nil {
			return err
		}
		if !changed {
			fmt.Println(styled(styleHint, "Nothing to do."))
			return nil
		}
		if sub == nil {
			fmt.Println(styled(styleSuccess, "Requested "+command.String()+"."))
			return nil
		}

		st, err := waitSettled(sub, command)
		if err != nil {
			return fmt.Errorf("tunnel did not settle within %v: %w", flagWait, err)
		}
		fmt.Println(formatState(st))
		if st.Phase == models.PhaseError {
			return fmt.Errorf("tunnel error: %s", st.Reason)
		}
		return nil
	})
}

func send(ctx context.Context, c *mgmt.Client, command models.Command) (bool, error) {
	if command == models.CommandDisconnect {
		return c.DisconnectTunnel(ctx)
	}
	return c.ConnectTunnel(ctx)
}

// waitSettled reads events until the tunnel reaches the command's target
// phase or an error.
func waitSettled(sub *mgmt.Subscription, command models.Command) (models.TunnelState, error) {
	target := models.PhaseConnected
	if command == models.CommandDisconnect {
		target = models.PhaseDisconnected
	}
	for {
		st, err := sub.Next()
		if err != nil {
			return models.TunnelState{}, err
		}
		if st.Phase == target || st.Phase == models.PhaseError {
			return st, nil
		}
	}
}
