package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mulltray/mulltray/internal/app"
	"github.com/mulltray/mulltray/internal/mgmt"
	"github.com/mulltray/mulltray/internal/models"
	"github.com/mulltray/mulltray/internal/state"
	"github.com/mulltray/mulltray/internal/tray"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current tunnel state",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	env, err := loadEnv(false)
	if err != nil {
		return err
	}
	defer func() { _ = env.logger.Sync() }()

	var st models.TunnelState
	err = app.Once(cmd.Context(), env.socketPath, env.settings.RequestTimeout, env.logger, func(ctx context.Context, c *mgmt.Client) error {
		var err error
		st, err = c.GetTunnelState(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to get tunnel state: %w", err)
	}

	fmt.Println(formatState(st))
	return nil
}

// formatState renders st the way the tray title shows it, followed by
// the details the title leaves out.
func formatState(st models.TunnelState) string {
	model := tray.Present(state.Snapshot{State: st, Known: true})
	style, ok := badgeStyles[model.Icon]
	if !ok {
		style = styleValue
	}

	out := styled(style, model.Title)
	row := func(label, value string) {
		if value == "" {
			return
		}
		out += "\n  " + styled(styleLabel, fmt.Sprintf("%-9s", label)) + " " + styled(styleValue, value)
	}
	row("Relay:", st.Endpoint)
	row("Location:", st.Location)
	if !st.Since.IsZero() {
		row("Since:", st.Since.Local().Format(time.DateTime))
	}
	row("Reason:", st.Reason)
	return out
}
