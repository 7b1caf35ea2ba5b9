package cli

import (
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/i474232898/skycalc/internal/common"
	"github.com/i474232898/skycalc/internal/logging"
	"github.com/i474232898/skycalc/internal/params"
	"github.com/i474232898/skycalc/internal/skycalc"
	"github.com/i474232898/skycalc/internal/skycalc/providers"
	"github.com/i474232898/skycalc/internal/store"
)

// buildService wires the ESO clients, the optional SQLite cache and the
// parameter catalog selected by the global flags.
func buildService(opts *RootOptions) (*skycalc.Service, func(), error) {
	log, err := logging.NewConsole(opts.Verbose)
	if err != nil {
		return nil, nil, err
	}

	schema, err := loadSchema(opts.ParamsFile)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() { _ = log.Sync() }

	var cache skycalc.Cache
	if opts.CacheDB != "" {
		db, err := store.OpenSQLite(opts.CacheDB, opts.CacheMaxAge)
		if err != nil {
			return nil, nil, err
		}
		cache = db
		cleanup = func() {
			if err := db.Close(); err != nil {
				log.Warn("failed to close cache database", zap.Error(err))
			}
			_ = log.Sync()
		}
	}

	client := &http.Client{Timeout: opts.Timeout}
	svc := skycalc.NewService(
		schema,
		cache,
		providers.NewAlmanacClient(client, opts.Server, log),
		providers.NewSkyModelClient(client, opts.Server, log),
		log,
	)
	return svc, cleanup, nil
}

func loadSchema(path string) (*params.Schema, error) {
	if path == "" {
		return params.Default()
	}
	return params.LoadFile(path)
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// openSession builds the service and a fresh session with sets applied.
func openSession(opts *RootOptions, f *OutputFormatter, sets []string, strict bool) (*skycalc.Session, params.MergeReport, func(), error) {
	svc, cleanup, err := opts.build(opts)
	if err != nil {
		return nil, params.MergeReport{}, nil, f.Error(ExitCommandError, "failed to initialise", err, nil)
	}

	updates, err := parseSets(sets)
	if err != nil {
		cleanup()
		return nil, params.MergeReport{}, nil, f.Error(ExitCommandError, "invalid --set", err, nil)
	}

	mode := params.BestEffort
	if strict {
		mode = params.Strict
	}

	sess := svc.NewSession("cli")
	var report params.MergeReport
	err = sess.Update(func(st *params.Store) error {
		report, err = st.Merge(updates, mode)
		return err
	})
	if err != nil {
		cleanup()
		return nil, report, nil, f.Error(ExitFailure, "parameters rejected", err, report.Failures)
	}
	for _, fail := range report.Failures {
		f.VerboseLog("skipped %s: %v", fail.Name, fail.Err)
		if f.Format != "json" && !f.Verbose {
			fmt.Fprintf(f.ErrWriter, "warning: skipped %s: %v\n", fail.Name, fail.Err)
		}
	}
	return sess, report, cleanup, nil
}

// parseSets turns repeated key=value flags into an update map. Values stay
// strings; the store coerces them to each parameter's type.
func parseSets(sets []string) (map[string]any, error) {
	updates := make(map[string]any, len(sets))
	for _, s := range sets {
		k, v, err := common.ParseKeyValue(s)
		if err != nil {
			return nil, err
		}
		updates[k] = v
	}
	return updates, nil
}

func writeSnapshot(w io.Writer, snap params.Snapshot) {
	for _, name := range snap.Names() {
		v, _ := snap.Get(name)
		if v == nil {
			v = "-"
		}
		fmt.Fprintf(w, "%-16s %v\n", name, v)
	}
}
