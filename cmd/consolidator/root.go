package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/JonMunkholm/consolidator/internal/config"
	"github.com/JonMunkholm/consolidator/internal/core"
	"github.com/JonMunkholm/consolidator/internal/logging"
	"github.com/JonMunkholm/consolidator/internal/pipeline"
	"github.com/JonMunkholm/consolidator/internal/store"
	"github.com/JonMunkholm/consolidator/internal/web"
)

// overrides holds the flags that take precedence over the environment.
type overrides struct {
	input    string
	store    string
	workers  int
	interval time.Duration
}

func (o *overrides) register(flags *pflag.FlagSet) {
	flags.StringVar(&o.input, "input", "", "input root (overrides INPUT_ROOT)")
	flags.StringVar(&o.store, "store", "", "store root (overrides STORE_ROOT)")
	flags.IntVar(&o.workers, "workers", 0, "partitions processed in parallel (overrides WORKERS)")
}

// load reads the config and applies only the flags that were set.
func (o *overrides) load(flags *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(func(c *config.Config) {
		if flags.Changed("input") {
			c.Input.Root = o.input
		}
		if flags.Changed("store") {
			c.Store.Root = o.store
		}
		if flags.Changed("workers") {
			c.Pipeline.Workers = o.workers
		}
		if flags.Changed("interval") {
			c.Pipeline.WatchInterval = o.interval
		}
	})
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Debug("configuration loaded", "config", cfg.String())
	return cfg, nil
}

// NewRootCommand builds the consolidator command tree.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	rc := &cobra.Command{
		Use:   "consolidator",
		Short: "Consolidate scraped listing exports into deduplicated partitions.",
		Long: `
Scans a tree of tabular export files, normalizes every row into one canonical
listing shape, drops duplicates and appends the new records to one store
partition per source. Runs are incremental: unchanged files are skipped.
`,
		SilenceUsage: true,
	}

	rc.AddCommand(newRunCommand(stdout))
	rc.AddCommand(newWatchCommand())
	rc.AddCommand(newResetCommand(stdout))
	rc.AddCommand(newSummaryCommand(stdout))

	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}

func newRunCommand(stdout io.Writer) *cobra.Command {
	var (
		o      overrides
		dryRun bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one consolidation pass",
		Long: `
Runs one pass over the input tree. With --dry-run the files are scanned,
normalized and deduplicated but nothing is written, not even the state file.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.load(cmd.Flags())
			if err != nil {
				return err
			}
			mode := modeFull
			if dryRun {
				mode = modeReadOnly
			}
			a, err := openApp(cmd.Context(), cfg, mode)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.pipeline.RunOnce(cmd.Context(), pipeline.RunOptions{DryRun: dryRun})
			if err != nil && pipeline.IsHard(err) {
				return err
			}
			if asJSON {
				if err := writeJSON(stdout, report); err != nil {
					return err
				}
			} else if err := writeReport(stdout, report); err != nil {
				return err
			}
			return err
		},
	}

	flags := cmd.Flags()
	o.register(flags)
	flags.BoolVar(&dryRun, "dry-run", false, "scan, normalize and dedupe without writing anything")
	flags.BoolVar(&asJSON, "json", false, "print the run report as JSON")
	return cmd
}

func newWatchCommand() *cobra.Command {
	var o overrides
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll the input tree until interrupted",
		Long: `
Runs a pass immediately and then every --interval until SIGINT or SIGTERM.
A file being processed when the signal arrives is finished first. With
MONITOR_ENABLED=true the monitoring endpoints are served while watching.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.load(cmd.Flags())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := openApp(ctx, cfg, modeFull)
			if err != nil {
				return err
			}
			defer a.Close()

			if summary, err := a.store.Summary(); err == nil {
				for _, ps := range summary.Partitions {
					a.metrics.SetPartitionRecords(ps.Key, ps.Records)
				}
			}

			var server *web.Server
			if cfg.Monitor.Enabled {
				server = web.NewServer(a.store, a.pipeline, a.metrics.Handler())
				go func() {
					if err := server.Start(cfg.Monitor.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
						slog.Error("monitor stopped", "error", err)
					}
				}()
			}

			watchErr := a.pipeline.Watch(ctx, cfg.Pipeline.WatchInterval)

			if server != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Monitor.ShutdownTimeout)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("monitor shutdown error", "error", err)
				}
			}
			return watchErr
		},
	}

	flags := cmd.Flags()
	o.register(flags)
	flags.DurationVar(&o.interval, "interval", 0, "polling interval (overrides WATCH_INTERVAL)")
	return cmd
}

func newResetCommand(stdout io.Writer) *cobra.Command {
	var (
		o   overrides
		yes bool
	)
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Discard the file state so every file is reprocessed",
		Long: `
Discards the persisted file state. Partition records and their fingerprint
indexes are kept, so reprocessing adds nothing that is already stored.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("reset discards all file state; pass --yes to confirm")
			}
			cfg, err := o.load(cmd.Flags())
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), cfg, modeLocal)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.states.Reset()
			if err != nil {
				return fmt.Errorf("reset: %w", err)
			}
			slog.Info("file state reset", "entries", n)
			_, err = fmt.Fprintf(stdout, "discarded %d file state entries\n", n)
			return err
		},
	}

	flags := cmd.Flags()
	o.register(flags)
	flags.BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}

func newSummaryCommand(stdout io.Writer) *cobra.Command {
	var o overrides
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print partition summaries as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.load(cmd.Flags())
			if err != nil {
				return err
			}
			mgr := store.New(cfg.Store.Root, store.Options{LockTimeout: cfg.Store.LockTimeout, ReadOnly: true})
			summary, err := mgr.Summary()
			if err != nil {
				return err
			}
			return writeJSON(stdout, summary)
		},
	}
	o.register(cmd.Flags())
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeReport prints one line per file and a totals line.
func writeReport(w io.Writer, r core.RunReport) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	merged := "MERGED"
	if r.DryRun {
		merged = "WOULD MERGE"
	}
	fmt.Fprintf(tw, "PATH\tPARTITION\tOUTCOME\tROWS\tREJECTED\tDUPLICATES\t%s\tCODE\n", merged)
	for _, f := range r.Files {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			f.Path, f.Partition, f.Outcome, f.RowsIn, f.Rejected, f.Duplicates, f.Merged, f.Code)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	accepted, skipped, failed, total := r.Counts()
	_, err := fmt.Fprintf(w, "\nrun %s: %d accepted, %d skipped, %d failed, %d merged in %s\n",
		r.RunID, accepted, skipped, failed, total, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	return err
}
