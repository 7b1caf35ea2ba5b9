package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/i474232898/skycalc/internal/config"
	"github.com/i474232898/skycalc/internal/skycalc"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ParamsFile string
	Server     string
	CacheDB    string
	Timeout    time.Duration

	CacheMaxAge time.Duration

	// build constructs the service used by a command and returns a cleanup
	// function. Tests replace it with offline providers.
	build func(opts *RootOptions) (*skycalc.Service, func(), error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the skycalc CLI. Flag defaults
// come from cfg.
func NewRootCommand(cfg *config.AppConfig) *cobra.Command {
	return newRootCommand(cfg, &RootOptions{build: buildService})
}

func newRootCommand(cfg *config.AppConfig, opts *RootOptions) *cobra.Command {
	opts.CacheMaxAge = cfg.CacheMaxAge

	cmd := &cobra.Command{
		Use:   "skycalc",
		Short: "Query the ESO SkyCalc sky model and almanac",
		Long: `Build a validated set of SkyCalc parameters, look up almanac values for a
pointing and date, and retrieve sky transmission and emission spectra.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ParamsFile, "params-file", cfg.ParamsFile, "parameter catalog YAML (default: embedded)")
	cmd.PersistentFlags().StringVar(&opts.Server, "server", cfg.Server, "SkyCalc server base URL")
	cmd.PersistentFlags().StringVar(&opts.CacheDB, "cache-db", cfg.CacheDB, "SQLite response cache (empty disables caching)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", cfg.HTTPTimeout, "HTTP timeout for remote calls")

	cmd.AddCommand(NewParamsCommand(opts))
	cmd.AddCommand(NewDescribeCommand(opts))
	cmd.AddCommand(NewAlmanacCommand(opts))
	cmd.AddCommand(NewSpectrumCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
