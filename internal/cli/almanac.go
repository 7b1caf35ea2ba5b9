package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/i474232898/skycalc/internal/params"
	"github.com/i474232898/skycalc/internal/skycalc"
)

// AlmanacResult is the JSON payload of the almanac command.
type AlmanacResult struct {
	Almanac skycalc.AlmanacResult `json:"almanac"`
	Report  *params.MergeReport   `json:"report,omitempty"`
	Params  *params.Snapshot      `json:"params,omitempty"`
}

// NewAlmanacCommand creates the almanac command.
func NewAlmanacCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		q      skycalc.AlmanacQuery
		mjd    float64
		update bool
		sets   []string
	)

	cmd := &cobra.Command{
		Use:   "almanac",
		Short: "Look up almanac values for a pointing and date",
		Long: `Query the almanac for airmass, moon geometry, solar flux and ecliptic
coordinates at the given pointing. Either --date (YYYY-MM-DDThh:mm:ss, UT)
or --mjd is required; --date wins when both are set.

With --update the values are merged into the parameters (after any --set)
and the merged set is printed as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			if cmd.Flags().Changed("mjd") {
				q.MJD = &mjd
			}
			if q.Date == "" && q.MJD == nil {
				return f.Error(ExitCommandError, "invalid arguments", skycalc.ErrNoEpoch, nil)
			}

			sess, _, cleanup, err := openSession(rootOpts, f, sets, false)
			if err != nil {
				return err
			}
			defer cleanup()

			f.VerboseLog("querying almanac at ra=%g dec=%g", q.RA, q.Dec)
			result, report, err := sess.GetAlmanacData(cmd.Context(), q, update)
			if err != nil {
				return f.Error(ExitCommandError, "almanac query failed", err, nil)
			}

			out := AlmanacResult{Almanac: result}
			var snap params.Snapshot
			if update {
				snap = sess.Snapshot()
				out.Report = &report
				out.Params = &snap
			}

			return f.Success(out, func(w io.Writer) {
				for _, k := range result.Keys() {
					fmt.Fprintf(w, "%-16s %v\n", k, result[k])
				}
				if !update {
					return
				}
				for _, fail := range report.Failures {
					fmt.Fprintf(w, "rejected %s: %v\n", fail.Name, fail.Err)
				}
				fmt.Fprintln(w)
				writeSnapshot(w, snap)
			})
		},
	}

	cmd.Flags().Float64Var(&q.RA, "ra", 0, "right ascension [deg]")
	cmd.Flags().Float64Var(&q.Dec, "dec", 0, "declination [deg]")
	cmd.Flags().StringVar(&q.Date, "date", "", "UT date as YYYY-MM-DDThh:mm:ss")
	cmd.Flags().Float64Var(&mjd, "mjd", 0, "modified Julian date")
	cmd.Flags().StringVar(&q.Observatory, "observatory", "", "observatory site (default: current parameter value)")
	cmd.Flags().BoolVar(&update, "update", false, "merge the almanac values into the parameters")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "parameter override as key=value (repeatable)")
	_ = cmd.MarkFlagRequired("ra")
	_ = cmd.MarkFlagRequired("dec")
	return cmd
}
