package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/i474232898/skycalc/internal/skycalc"
)

// NewSpectrumCommand creates the spectrum command.
func NewSpectrumCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		returnType string
		out        string
		sets       []string
		strict     bool
	)

	cmd := &cobra.Command{
		Use:   "spectrum",
		Short: "Retrieve the sky transmission and emission spectrum",
		Long: `Submit the parameters (defaults plus any --set overrides) to the sky model
and print or save the result.

Return types:
  table      wavelength, transmission and radiance with metadata
  table-ext  every column returned by the sky model
  array      wavelength, transmission and radiance arrays
  fits       the raw FITS payload (written to --out or stdout)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			rt, err := skycalc.ParseReturnType(returnType)
			if err != nil {
				return f.Error(ExitCommandError, "invalid --return", err, nil)
			}

			sess, _, cleanup, err := openSession(rootOpts, f, sets, strict)
			if err != nil {
				return err
			}
			defer cleanup()

			spec, err := sess.GetSkySpectrum(cmd.Context(), rt)
			if err != nil {
				return f.Error(ExitCommandError, "sky model request failed", err, nil)
			}

			if out != "" {
				n, err := writeSpectrumFile(out, spec)
				if err != nil {
					return f.Error(ExitCommandError, "failed to write output", err, nil)
				}
				return f.Success(map[string]any{"file": out, "bytes": n}, func(w io.Writer) {
					fmt.Fprintf(w, "wrote %d bytes to %s\n", n, out)
				})
			}

			if rt == skycalc.ReturnFITS {
				_, err := cmd.OutOrStdout().Write(spec.FITS)
				return err
			}
			return f.Success(spec, func(w io.Writer) {
				writeSpectrumText(w, spec)
			})
		},
	}

	cmd.Flags().StringVarP(&returnType, "return", "r", "table", "return type (table|table-ext|array|fits)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the result to this file")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "parameter override as key=value (repeatable)")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail if any override is rejected")
	return cmd
}

func writeSpectrumFile(path string, spec *skycalc.Spectrum) (int, error) {
	data := spec.FITS
	if spec.Type != skycalc.ReturnFITS {
		var err error
		if data, err = json.MarshalIndent(spec, "", "  "); err != nil {
			return 0, err
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, err
	}
	return len(data), nil
}

// writeSpectrumText prints metadata as "# key = value / comment" lines
// followed by whitespace-separated columns.
func writeSpectrumText(w io.Writer, spec *skycalc.Spectrum) {
	var (
		names []string
		cols  [][]float64
	)
	switch {
	case spec.Table != nil:
		for _, m := range spec.Table.Meta {
			if m.Comment != "" {
				fmt.Fprintf(w, "# %s = %v / %s\n", m.Key, m.Value, m.Comment)
			} else {
				fmt.Fprintf(w, "# %s = %v\n", m.Key, m.Value)
			}
		}
		for _, c := range spec.Table.Columns {
			name := c.Name
			if c.Unit != "" {
				name += "[" + c.Unit + "]"
			}
			names = append(names, name)
			cols = append(cols, c.Data)
		}
	case spec.Arrays != nil:
		a := spec.Arrays
		names = []string{"wave[" + a.WaveUnit + "]", "trans", "flux[" + a.FluxUnit + "]"}
		cols = [][]float64{a.Wave, a.Trans, a.Flux}
	default:
		return
	}

	fmt.Fprintln(w, strings.Join(names, "\t"))
	if len(cols) == 0 {
		return
	}
	row := make([]string, len(cols))
	for i := range cols[0] {
		for j, c := range cols {
			if i < len(c) {
				row[j] = fmt.Sprintf("%g", c[i])
			} else {
				row[j] = ""
			}
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
}
