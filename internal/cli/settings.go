package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mulltray/mulltray/internal/config"
	"github.com/mulltray/mulltray/internal/models"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show the effective settings",
	Long: `Show the settings after applying defaults, the settings file, the
environment and flags.`,
	Args: cobra.NoArgs,
	RunE: runSettings,
}

var settingsInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a settings file with the default values",
	Args:  cobra.NoArgs,
	RunE:  runSettingsInit,
}

func init() {
	settingsCmd.AddCommand(settingsInitCmd)
}

func runSettings(cmd *cobra.Command, args []string) error {
	env, err := loadEnv(false)
	if err != nil {
		return err
	}
	defer func() { _ = env.logger.Sync() }()

	effective := *env.settings
	effective.SocketPath = env.socketPath
	data, err := yaml.Marshal(&effective)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	fmt.Print(string(data))
	return nil
}

func runSettingsInit(cmd *cobra.Command, args []string) error {
	path, err := config.GlobalSettingsFile()
	if err != nil {
		return err
	}
	exists, err := config.SettingsExist(path)
	if err != nil {
		return err
	}
	if exists {
		fmt.Println(styled(styleHint, "Settings file already exists: ") + path)
		return nil
	}
	if err := config.SaveSettings(path, models.NewSettings()); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	fmt.Println(styled(styleSuccess, "Wrote ") + path)
	return nil
}
