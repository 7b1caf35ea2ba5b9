package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/i474232898/skycalc/internal/params"
)

// ParamsResult is the JSON payload of the params command.
type ParamsResult struct {
	Params params.Snapshot    `json:"params"`
	Report params.MergeReport `json:"report"`
}

// NewParamsCommand creates the params command.
func NewParamsCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		sets   []string
		strict bool
	)

	cmd := &cobra.Command{
		Use:   "params",
		Short: "Show the parameter values that would be sent to the sky model",
		Long: `Start from the catalog defaults, apply every --set key=value and print the
resulting parameters. Rejected values are skipped with a warning unless
--strict is given, in which case nothing is applied and the command fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			sess, report, cleanup, err := openSession(rootOpts, f, sets, strict)
			if err != nil {
				return err
			}
			defer cleanup()

			snap := sess.Snapshot()
			return f.Success(ParamsResult{Params: snap, Report: report}, func(w io.Writer) {
				writeSnapshot(w, snap)
			})
		},
	}

	cmd.Flags().StringArrayVar(&sets, "set", nil, "parameter override as key=value (repeatable)")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail if any override is rejected")
	return cmd
}

// NewDescribeCommand creates the describe command.
func NewDescribeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "describe [names...]",
		Short: "Describe parameters and their allowed values",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			schema, err := loadSchema(rootOpts.ParamsFile)
			if err != nil {
				return f.Error(ExitCommandError, "failed to load parameter catalog", err, nil)
			}

			names := args
			if len(names) == 0 {
				names = schema.Names()
			}

			var (
				defs    []params.Definition
				missing []string
			)
			for _, name := range names {
				def, err := schema.DefinitionFor(name)
				if err != nil {
					missing = append(missing, name)
					continue
				}
				defs = append(defs, *def)
			}

			err = f.Success(defs, func(w io.Writer) {
				for _, line := range params.NewStore(schema).Describe(args...) {
					fmt.Fprintln(w, line)
				}
			})
			if err != nil {
				return err
			}
			if len(missing) > 0 {
				return WrapExitError(ExitFailure, "unknown parameters", fmt.Errorf("%v", missing))
			}
			return nil
		},
	}
}
