package cli

import (
	"fmt"
	"os"

	"github.com/reglet-dev/hostbridge/config"
	"github.com/spf13/cobra"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [config-file]",
		Short: "Validate a configuration file",
		Long: `Validate a YAML configuration file.

The file is decoded over the defaults, checked against field constraints and
used to build the descriptor table. With no argument the --config file is
validated.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootOpts.Config
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(path, cmd)
		},
	}
}

func runValidate(path string, cmd *cobra.Command) error {
	if path == "" {
		return &ExitError{Code: ExitCommandError, Message: "no configuration file given"}
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: path is chosen by the operator
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read configuration", err)
	}

	cfg, err := config.Parse(data)
	if err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "✗ %s\n", path)
		return WrapExitError(ExitFailure, "invalid configuration", err)
	}

	table, _ := cfg.DescriptorTable()
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s is valid (%d descriptors, module %s)\n",
		path, len(table.Names()), cfg.Host.ModuleName)
	return nil
}
