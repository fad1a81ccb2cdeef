// Package configcmd implements configuration file helpers.
package configcmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/anprfile/lpr-ingest/internal/app"
	"github.com/anprfile/lpr-ingest/internal/conf"
)

// Command creates the config command and its subcommands.
func Command(ctx *app.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(initCommand(ctx))
	return cmd
}

func initCommand(ctx *app.Context) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the effective configuration to a YAML file",
		Long: `Write the configuration currently in effect (defaults, the config file
given with --config and LPR_* environment variables) to path,
which defaults to ./config.yaml.`,
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{app.AnnotationSkipBootstrap: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := conf.ConfigFileName
			if len(args) == 1 {
				path = args[0]
			}
			if err := Init(ctx.ConfigFile, path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}

// Init loads the effective settings and saves them to path. An existing file
// is only replaced when force is set.
func Init(configFile, path string, force bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if _, err := os.Stat(abs); err == nil && !force {
		return fmt.Errorf("%s already exists, use --force to overwrite", path)
	}

	settings, err := conf.Load(configFile)
	if err != nil {
		return err
	}
	return conf.SaveYAMLConfig(abs, settings)
}
