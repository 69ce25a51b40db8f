package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	Schema   string
	Driver   string
	Database string
	URL      string
	EnvFile  string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the caminte CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "caminte",
		Short: "caminte - one entity API over many backends",
		Long: `Query and modify models described by a schema file against any
registered backend (memory, sqlite, postgres, mongo).

Connection settings come from flags, falling back to CAMINTE_DRIVER,
CAMINTE_DATABASE and CAMINTE_URL, which may be set in an env file.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.loadEnv()
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Schema, "schema", "s", "", "model schema file (.yaml, .json or .cue)")
	cmd.PersistentFlags().StringVar(&opts.Driver, "driver", "", "backend name (env CAMINTE_DRIVER, default memory)")
	cmd.PersistentFlags().StringVar(&opts.Database, "database", "", "database name or file (env CAMINTE_DATABASE)")
	cmd.PersistentFlags().StringVar(&opts.URL, "url", "", "connection URL (env CAMINTE_URL)")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "env file read before resolving settings")

	cmd.AddCommand(NewFindCommand(opts))
	cmd.AddCommand(NewCountCommand(opts))
	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewRemoveCommand(opts))
	cmd.AddCommand(NewSchemaCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))

	return cmd
}
