package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/autowebp/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "autowebp",
	Short: "Convert new WebP images in a watched directory to PNG or JPG",
	Long: `autowebp watches a directory for newly created WebP images, converts each
one to PNG or JPG next to the original and deletes the WebP file once the
converted image is safely on disk.

Settings come from, highest precedence first: AUTOWEBP_* environment
variables, command-line flags, the settings file (./appsettings.json unless
--config is given), built-in defaults.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "settings file (default ./appsettings.json)")
	config.BindFlags(rootCmd.PersistentFlags())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadSettings merges and validates settings for cmd.
func loadSettings(cmd *cobra.Command) (config.Settings, error) {
	settings, err := config.Load(cmd.Flags(), configPath, configPath != "")
	if err != nil {
		return config.Settings{}, err
	}
	if err := settings.Validate(); err != nil {
		return config.Settings{}, err
	}
	return settings, nil
}

func exitOnError(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
