package cmd

import (
	"github.com/spf13/cobra"

	"github.com/anprfile/lpr-ingest/cmd/configcmd"
	"github.com/anprfile/lpr-ingest/cmd/scan"
	"github.com/anprfile/lpr-ingest/cmd/version"
	"github.com/anprfile/lpr-ingest/cmd/watch"
	"github.com/anprfile/lpr-ingest/internal/app"
)

// RootCommand creates and returns the root command
func RootCommand(ctx *app.Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "lpr-ingest",
		Short:         "Ingest ANPR camera .lpr logs into a database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	if err := setupFlags(rootCmd, ctx); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		watch.Command(ctx),
		scan.Command(ctx),
		configcmd.Command(ctx),
		version.Command(ctx),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if app.SkipsBootstrap(cmd) {
			return nil
		}
		a, err := app.Bootstrap(ctx.ConfigFile, ctx.Build)
		if err != nil {
			return err
		}
		ctx.App = a
		return nil
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, ctx *app.Context) error {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&ctx.ConfigFile, "config", "c", "", "Path to config file (default searches ., ~/.config/lpr-ingest, /etc/lpr-ingest)")
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.String("log-level", "info", "Console log level: debug, info, warn, error")

	return app.BindFlags(flags, map[string]string{
		"debug":                 "debug",
		"logging.console.level": "log-level",
	})
}
