package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/steveyegge/autowebp/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect effective settings",
}

var showFormat string

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the merged settings",
	Long: `Print the settings after merging defaults, the settings file, flags and
AUTOWEBP_* environment variables.

The JSON output uses the settings file layout and can be saved as
appsettings.json.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		settings, err := config.Load(cmd.Flags(), configPath, configPath != "")
		exitOnError(err)
		exitOnError(showSettings(settings, showFormat, os.Stdout))
	},
}

func showSettings(settings config.Settings, format string, out io.Writer) error {
	if err := settings.Document().Encode(out, format); err != nil {
		return fmt.Errorf("render settings: %w", err)
	}
	return nil
}

func init() {
	configShowCmd.Flags().StringVar(&showFormat, "format", "json", "output format ("+strings.Join(config.Formats, ", ")+")")
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
