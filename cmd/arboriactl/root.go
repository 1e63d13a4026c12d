package main

import (
	"arboria/internal/app"
	"arboria/internal/config"
	"arboria/internal/core"
	"arboria/internal/logging"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile string
	envFile    string
	trace      bool
	// open replaces app.Open in tests.
	open func(cmd *cobra.Command, opts *rootOptions) (*app.App, error)
}

func newRootCmd() *cobra.Command {
	return buildRootCmd(openApp)
}

func buildRootCmd(open func(*cobra.Command, *rootOptions) (*app.App, error)) *cobra.Command {
	opts := &rootOptions{open: open}
	root := &cobra.Command{
		Use:           "arboriactl",
		Short:         "Maintain an ArborIA orchard inventory",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "JSON config file (overrides ARBORIA_CONFIG_FILE)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	root.PersistentFlags().BoolVar(&opts.trace, "trace", false, "write one JSON trace line per service operation to stderr")

	root.AddCommand(
		newFarmsCmd(opts),
		newStatsCmd(opts),
		newExportCmd(opts),
		newImportCmd(opts),
		newValidateCmd(),
		newArchiveCmd(opts),
		newArchivesCmd(opts),
		newRestoreCmd(opts),
	)
	return root
}

func loadConfig(opts *rootOptions) (config.Config, error) {
	if opts.envFile != "" {
		if err := godotenv.Load(opts.envFile); err != nil && !os.IsNotExist(err) {
			return config.Config{}, fmt.Errorf("load %s: %w", opts.envFile, err)
		}
	}
	path := opts.configFile
	if path == "" {
		path = os.Getenv("ARBORIA_CONFIG_FILE")
	}
	return config.LoadFile(path)
}

func openApp(cmd *cobra.Command, opts *rootOptions) (*app.App, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log.Level, "console")
	if err != nil {
		return nil, err
	}
	var svcOpts []core.Option
	if opts.trace {
		svcOpts = append(svcOpts, core.WithTracer(core.NewJSONTracer(cmd.ErrOrStderr())))
	}
	return app.Open(cmd.Context(), cfg, logger, svcOpts...)
}

// withApp opens the backends for the duration of fn.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(a *app.App) error) error {
	a, err := opts.open(cmd, opts)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	return fn(a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
