package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bkovari/relinq/internal/decompile"
	"github.com/bkovari/relinq/internal/qexpr"
)

// NewExplainCommand creates the explain subcommand: show the
// structured expressions recovered from a fixture program, without
// compiling them to SQL.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "explain <fixture.yaml>",
		Short:        "Show the structured predicate and projection of a fixture",
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

			ce, err := decompile.Analyze(fixture.Program)
			if err != nil {
				formatter.Error(compileErrorCode(err), err.Error())
				return WrapExitError(ExitFailure, "analysis failed", err)
			}

			render := func(e qexpr.Expression) string {
				if e == nil {
					return ""
				}
				return qexpr.String(e)
			}
			if rootOpts.Format == "json" {
				return formatter.Success(map[string]any{
					"aliases":    ce.LocalVars,
					"predicate":  render(ce.Predicate),
					"projection": render(ce.Projection),
					"return":     render(ce.Return),
				})
			}

			var b strings.Builder
			fmt.Fprintf(&b, "aliases:    %s\n", strings.Join(ce.LocalVars, ", "))
			if ce.Predicate != nil {
				fmt.Fprintf(&b, "predicate:  %s\n", qexpr.String(ce.Predicate))
			}
			if ce.Projection != nil {
				fmt.Fprintf(&b, "projection: %s\n", qexpr.String(ce.Projection))
			}
			if ce.Return != nil {
				fmt.Fprintf(&b, "return:     %s\n", qexpr.String(ce.Return))
			}
			return formatter.Success(strings.TrimRight(b.String(), "\n"))
		},
	}
	return cmd
}
