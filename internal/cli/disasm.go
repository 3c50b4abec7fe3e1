package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/bkovari/relinq/internal/bytecode"
)

// NewDisasmCommand creates the disasm subcommand: print a fixture
// program's instruction listing.
func NewDisasmCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "disasm <fixture.yaml>",
		Short:        "Disassemble a query fixture's instruction program",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{
				Format:  rootOpts.Format,
				Writer:  cmd.OutOrStdout(),
				Verbose: rootOpts.Verbose,
			}

			fixture, err := LoadFixture(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "load fixture", err)
			}

			var listing strings.Builder
			if err := bytecode.Disassemble(&listing, fixture.Program); err != nil {
				return WrapExitError(ExitFailure, "disassemble program", err)
			}

			if rootOpts.Format == "json" {
				return formatter.Success(map[string]string{
					"listing": listing.String(),
				})
			}
			return formatter.Success(strings.TrimRight(listing.String(), "\n"))
		},
	}
	return cmd
}
