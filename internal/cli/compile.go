package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/bkovari/relinq"
	"github.com/bkovari/relinq/internal/decompile"
	"github.com/bkovari/relinq/internal/querysql"
)

// NewCompileCommand creates the compile subcommand: fixture in, SQL
// out.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "compile <fixture.yaml>",
		Short:        "Compile a query fixture to SQL",
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

			opts := &relinq.Options{
				Bindings: fixture.Bindings,
				Shape:    fixture.Shape,
				Logger:   rootOpts.Logger(),
			}
			var query *relinq.Query
			if fixture.Record != nil {
				query, err = relinq.InsertOrSelect(fixture.Record, fixture.Program, fixture.Entities, opts)
			} else {
				query, err = relinq.Select(fixture.Program, fixture.Entities, opts)
			}
			if err != nil {
				formatter.Error(compileErrorCode(err), err.Error())
				return WrapExitError(ExitFailure, "compilation failed", err)
			}

			if rootOpts.Format == "json" {
				return formatter.Success(map[string]string{
					"sql":   query.SQL,
					"shape": query.Shape,
				})
			}
			return formatter.Success(query.SQL)
		},
	}
	return cmd
}

// compileErrorCode maps a compilation error to its stable code.
func compileErrorCode(err error) string {
	var qe *querysql.QueryError
	if errors.As(err, &qe) {
		return string(qe.Code)
	}
	var se *decompile.StructureError
	if errors.As(err, &se) {
		return string(se.Code)
	}
	return "ERROR"
}
