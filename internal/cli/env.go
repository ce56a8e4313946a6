package cli

import (
	"os"

	"go.uber.org/zap"

	"github.com/mulltray/mulltray/internal/config"
	"github.com/mulltray/mulltray/internal/metrics"
	"github.com/mulltray/mulltray/internal/models"
)

// runtimeEnv is what every command needs before talking to the daemon.
type runtimeEnv struct {
	settings   *models.Settings
	socketPath string
	logger     *zap.Logger
}

// loadEnv resolves settings, flags and the environment. Errors here are
// configuration errors and end the process with a nonzero status.
// When the terminal is in use by a full-screen view, logging to stderr is
// redirected to the log file.
func loadEnv(terminalBusy bool) (*runtimeEnv, error) {
	settings, err := config.LoadSettings("")
	if err != nil {
		return nil, err
	}
	if flagLogLevel != "" {
		settings.Log.Level = flagLogLevel
	}
	if flagMetricsAddr != "" {
		settings.MetricsAddr = flagMetricsAddr
	}
	if terminalBusy && settings.Log.File == config.LogToStderr {
		settings.Log.File = ""
	}

	socketPath, err := config.ResolveSocketPath(flagSocket, os.Getenv(config.EnvSocket), settings)
	if err != nil {
		return nil, err
	}

	logger, err := config.NewLogger(settings.Log)
	if err != nil {
		return nil, err
	}

	return &runtimeEnv{
		settings:   settings,
		socketPath: socketPath,
		logger:     logger,
	}, nil
}

// newMetrics returns collectors when a metrics listener is configured.
func (e *runtimeEnv) newMetrics() *metrics.Metrics {
	if e.settings.MetricsAddr == "" {
		return nil
	}
	return metrics.New()
}
