package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bryanchriswhite/waycap/internal/config"
	"github.com/bryanchriswhite/waycap/internal/logger"
)

var (
	cfgFile   string
	logPretty bool

	// Set by loadSettings before any command runs.
	configMgr *config.Manager
	settings  *config.Config

	rootCmd = &cobra.Command{
		Use:   "waycap",
		Short: "waycap - screenshots for wlroots compositors",
		Long: `waycap takes screenshots on Wayland compositors that implement the
wlr-screencopy protocol (sway, Hyprland, river, ...).

Without a subcommand it captures an output, a region or the focused
window and writes it to the screenshot directory.`,
		Example: `  # Capture the first output as PNG
  waycap

  # Capture a region selected with slurp
  waycap -r "$(slurp)"

  # Capture the focused window as JPEG, with the cursor
  waycap -w -c -e jpg

  # Write to stdout
  waycap -f - | wl-copy`,
		Args:              cobra.NoArgs,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: loadSettings,
		RunE:              runCapture,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/waycap/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logPretty, "log-pretty", false, "human-readable log output")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	viper.SetEnvPrefix("WAYCAP")
	viper.AutomaticEnv()
}

// loadSettings reads the config file and applies flag and environment
// overrides on top of it.
func loadSettings(cmd *cobra.Command, args []string) error {
	mgr, err := config.NewManager(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg, err := mgr.Resolve(viper.GetViper())
	if err != nil {
		return err
	}

	logger.Init(cfg.LogLevel, logPretty)
	logger.WithComponent("cli").Debug().
		Str("config", mgr.Path()).
		Str("command", cmd.Name()).
		Msg("Configuration resolved")

	configMgr = mgr
	settings = cfg
	return nil
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
