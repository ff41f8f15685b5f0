package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"venuecal/internal/config"
	appLog "venuecal/internal/log"
)

const version = "0.3.0"

// rootFlags holds persistent CLI flag values shared by all subcommands.
type rootFlags struct {
	configPath string
	envFile    string
	listen     string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		appLog.Error("venuecal failed", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags rootFlags

	root := &cobra.Command{
		Use:           "venuecal",
		Short:         "Recurring venue events with editable occurrences",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "config.yaml", "Path to config file")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "Optional dotenv file with VENUECAL_* overrides")
	root.PersistentFlags().StringVar(&flags.listen, "listen", "", "HTTP listen address (overrides config if set)")

	root.AddCommand(newServeCmd(&flags), newPreviewCmd(&flags))
	return root
}

// loadConfig resolves the effective configuration: file, then dotenv,
// then process environment, then CLI flags.
func loadConfig(flags *rootFlags) (*config.Config, error) {
	if flags.envFile != "" {
		if err := godotenv.Load(flags.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			appLog.Warn("failed to load env file", "path", flags.envFile, "err", err)
		}
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		return nil, err
	}
	if err := conf.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	return conf, nil
}
