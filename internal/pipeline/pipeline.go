// Package pipeline runs scan, normalize, dedupe and merge passes over an
// export tree.
//
// A Pipeline holds the FileState table and the store Manager for its whole
// lifetime; RunOnce threads them through each stage. Files are grouped by
// partition so that a partition has at most one writer at a time, even when
// several partitions are processed in parallel.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/consolidator/internal/core"
	"github.com/JonMunkholm/consolidator/internal/dedupe"
	"github.com/JonMunkholm/consolidator/internal/logging"
	"github.com/JonMunkholm/consolidator/internal/metrics"
	"github.com/JonMunkholm/consolidator/internal/normalize"
	"github.com/JonMunkholm/consolidator/internal/publish"
	"github.com/JonMunkholm/consolidator/internal/scanner"
	"github.com/JonMunkholm/consolidator/internal/state"
	"github.com/JonMunkholm/consolidator/internal/store"
	"github.com/JonMunkholm/consolidator/internal/tabular"
)

// RunLogFile is appended under the store root after every non-dry run.
const RunLogFile = "runs.jsonl"

// DefaultSinkTimeout bounds one mirror sync or merge event.
const DefaultSinkTimeout = 15 * time.Second

// Mirror copies merged records to a downstream database.
type Mirror interface {
	Sync(ctx context.Context, partition string, source publish.RecordSource) (int, error)
}

// Notifier announces non-empty merges.
type Notifier interface {
	Notify(ctx context.Context, ev publish.MergeEvent) error
}

// Options configures a Pipeline. Scanner and Normalizer default to their
// zero-option constructors; Mirror, Notifier and Metrics are optional.
type Options struct {
	InputRoot  string
	Workers    int
	Scanner    *scanner.Scanner
	Normalizer *normalize.Normalizer
	Mirror     Mirror
	Notifier   Notifier
	Metrics    *metrics.Metrics
	Now        func() time.Time

	// SinkTimeout bounds each downstream call. Files run detached from
	// cancellation, so this is what keeps a hung sink from blocking shutdown.
	SinkTimeout time.Duration
}

// RunOptions controls one pass.
type RunOptions struct {
	// DryRun scans, normalizes and dedupes but writes nothing.
	DryRun bool
}

// Pipeline is safe for one RunOnce at a time; LastRun may be called
// concurrently.
type Pipeline struct {
	states *state.Table
	store  *store.Manager
	opts   Options

	mu   sync.Mutex
	last *core.RunReport
}

// New creates a Pipeline over an open FileState table and store.
func New(states *state.Table, st *store.Manager, opts Options) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Scanner == nil {
		opts.Scanner = scanner.New(scanner.Options{})
	}
	if opts.Normalizer == nil {
		opts.Normalizer = normalize.New(normalize.Options{})
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SinkTimeout <= 0 {
		opts.SinkTimeout = DefaultSinkTimeout
	}
	return &Pipeline{states: states, store: st, opts: opts}
}

// HeaderScore ranks candidate header rows: canonical field matches first,
// then the generic text-cell heuristic as a tie breaker.
func HeaderScore(cells []string) int {
	return normalize.HeaderScore(cells)*1000 + tabular.DefaultHeaderScore(cells)
}

// IsHard reports whether err must stop a run rather than be recorded
// against a single file.
func IsHard(err error) bool {
	return errors.Is(err, state.ErrCorrupt) ||
		errors.Is(err, state.ErrLocked) ||
		errors.Is(err, store.ErrCorrupt) ||
		errors.Is(err, store.ErrLocked)
}

// LastRun returns the most recent completed run.
func (p *Pipeline) LastRun() (core.RunReport, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return core.RunReport{}, false
	}
	return *p.last, true
}

// job is one scanned file together with its position in scan order.
type job struct {
	idx   int
	entry scanner.Entry
}

// group is the ordered work for one partition.
type group struct {
	key  string
	jobs []job
}

// RunOnce performs one pass over the input tree. Per-file failures are
// recorded in the report; the returned error is reserved for failures that
// make the whole run meaningless, such as a corrupt FileState table, a held
// lock or an unreadable input root. Cancellation is honoured between files.
func (p *Pipeline) RunOnce(ctx context.Context, ro RunOptions) (core.RunReport, error) {
	runID := uuid.NewString()
	ctx = core.ContextWithRunID(ctx, runID)
	logger := logging.FromContext(ctx)

	report := core.RunReport{RunID: runID, StartedAt: p.opts.Now().UTC(), DryRun: ro.DryRun}
	logger.Info("run started", "input_root", p.opts.InputRoot, "dry_run", ro.DryRun, "workers", p.opts.Workers)

	groups, results, err := p.collect(ctx, runID, ro)
	if err != nil {
		report.FinishedAt = p.opts.Now().UTC()
		logger.Error("run aborted", "error", err)
		return report, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for _, grp := range groups {
		g.Go(func() error {
			return p.processPartition(gctx, grp, results, ro)
		})
	}
	runErr := g.Wait()
	if runErr == nil {
		runErr = ctx.Err()
	}

	report.Files = compact(results)
	report.FinishedAt = p.opts.Now().UTC()

	if runErr != nil && IsHard(runErr) {
		logger.Error("run aborted", "error", runErr)
		return report, runErr
	}

	if !ro.DryRun {
		if err := p.appendRunLog(report); err != nil {
			logger.Warn("run log not written", "error", err)
		}
	}
	p.opts.Metrics.ObserveRun(report)
	p.mu.Lock()
	p.last = &report
	p.mu.Unlock()

	accepted, skipped, failed, merged := report.Counts()
	logger.Info("run finished",
		"accepted", accepted,
		"skipped", skipped,
		"failed", failed,
		"merged", merged,
		"duration_ms", report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
	)
	return report, runErr
}

// collect drains the scanner. Unchanged files and scan failures are
// reported immediately; new and changed files are grouped by partition in
// first-seen order. A non-file scan error aborts the run.
func (p *Pipeline) collect(ctx context.Context, runID string, ro RunOptions) ([]*group, []*core.FileReport, error) {
	var (
		groups  []*group
		byKey   = make(map[string]*group)
		results []*core.FileReport
	)

	for entry, err := range p.opts.Scanner.Scan(ctx, p.opts.InputRoot, p.states) {
		idx := len(results)
		results = append(results, nil)

		if err != nil {
			var fe *scanner.FileError
			if !errors.As(err, &fe) {
				return nil, nil, err
			}
			fr := p.failed(ctx, core.FileReport{RunID: runID, Path: fe.Path, Partition: fe.Partition, DryRun: ro.DryRun}, fe.Err, 0)
			results[idx] = &fr
			continue
		}

		if entry.Status == core.StatusUnchanged {
			fr := core.FileReport{
				RunID:     runID,
				Path:      entry.File.Path,
				Partition: entry.File.Partition,
				Status:    entry.Status,
				Outcome:   core.OutcomeSkipped,
				DryRun:    ro.DryRun,
			}
			logging.WithFields(ctx, "path", fr.Path, "partition", fr.Partition).Debug("file unchanged")
			p.opts.Metrics.ObserveFile(fr)
			results[idx] = &fr
			continue
		}

		key := entry.File.Partition
		grp, ok := byKey[key]
		if !ok {
			grp = &group{key: key}
			byKey[key] = grp
			groups = append(groups, grp)
		}
		grp.jobs = append(grp.jobs, job{idx: idx, entry: entry})
	}
	return groups, results, nil
}

// processPartition handles one partition's files strictly in order. The
// index overlay is loaded once and extended after every merge, so repeated
// rows across files of the same run are counted once in dry runs too.
func (p *Pipeline) processPartition(ctx context.Context, grp *group, results []*core.FileReport, ro RunOptions) error {
	ctx = core.ContextWithPartition(ctx, grp.key)

	idx, err := p.store.Index(grp.key)
	if err != nil {
		err = fmt.Errorf("%w: load index for partition %s: %w", core.ErrMergeFailed, grp.key, err)
		if IsHard(err) {
			return err
		}
		// The partition is skipped; its files are retried next run.
		for _, j := range grp.jobs {
			fr := p.failed(ctx, core.FileReport{
				RunID:     core.RunIDFromContext(ctx),
				Path:      j.entry.File.Path,
				Partition: grp.key,
				Status:    j.entry.Status,
				DryRun:    ro.DryRun,
			}, err, 0)
			results[j.idx] = &fr
		}
		return nil
	}
	overlay := dedupe.NewOverlay(idx)

	for _, j := range grp.jobs {
		if err := ctx.Err(); err != nil {
			return err
		}
		// An in-flight file always finishes.
		fr, err := p.processFile(context.WithoutCancel(ctx), j.entry, overlay, ro)
		results[j.idx] = &fr
		if err != nil {
			return err
		}
	}
	return nil
}

// processFile runs one new or changed file through the core path. Only a
// hard error is returned; everything else ends up in the FileReport.
func (p *Pipeline) processFile(ctx context.Context, entry scanner.Entry, overlay *dedupe.Overlay, ro RunOptions) (core.FileReport, error) {
	start := time.Now()
	raw := entry.File
	logger := logging.WithFields(ctx, "path", raw.Path, "status", entry.Status)

	fr := core.FileReport{
		RunID:     core.RunIDFromContext(ctx),
		Path:      raw.Path,
		Partition: raw.Partition,
		Status:    entry.Status,
		DryRun:    ro.DryRun,
	}

	records, quality := p.opts.Normalizer.NormalizeFile(raw)
	kept, stats := dedupe.Dedupe(records, overlay)
	quality.DuplicatesInBatch = stats.InBatch
	quality.DuplicatesInStore = stats.InStore

	fr.Quality = quality
	fr.RowsIn = quality.RowsIn
	fr.Normalized = quality.RowsNormalized
	fr.Rejected = quality.RowsRejected
	fr.Duplicates = quality.Duplicates()

	if ro.DryRun {
		overlay.Add(kept)
		fr.Merged = len(kept)
		fr.Outcome = core.OutcomeAccepted
		fr.Duration = time.Since(start)
		logger.Info("file would merge",
			"rows_in", fr.RowsIn,
			"rejected", fr.Rejected,
			"duplicates", fr.Duplicates,
			"would_add", fr.Merged,
		)
		p.opts.Metrics.ObserveFile(fr)
		return fr, nil
	}

	res, err := p.store.Merge(ctx, raw.Partition, kept)
	if err != nil {
		fr = p.failed(ctx, fr, err, time.Since(start))
		if IsHard(err) {
			return fr, err
		}
		return fr, nil
	}
	overlay.Add(kept)
	fr.Merged = res.Added
	fr.Total = res.Total

	p.sync(ctx, raw, res)

	st := core.FileState{
		Path:        raw.Path,
		Fingerprint: raw.Fingerprint,
		Partition:   raw.Partition,
		ProcessedAt: p.opts.Now().UTC(),
		RecordCount: quality.RowsNormalized,
	}
	if err := p.states.Put(st); err != nil {
		fr = p.failed(ctx, fr, fmt.Errorf("%w: %w", core.ErrCommitFailed, err), time.Since(start))
		if IsHard(err) {
			return fr, err
		}
		return fr, nil
	}

	fr.Outcome = core.OutcomeAccepted
	fr.Duration = time.Since(start)
	logger.Info("file merged",
		"rows_in", fr.RowsIn,
		"normalized", fr.Normalized,
		"rejected", fr.Rejected,
		"duplicates", fr.Duplicates,
		"added", fr.Merged,
		"total", fr.Total,
		"duration_ms", fr.Duration.Milliseconds(),
	)
	p.opts.Metrics.ObserveFile(fr)
	return fr, nil
}

// sync feeds the downstream sinks. Their failures never fail the file.
func (p *Pipeline) sync(ctx context.Context, raw *core.RawFile, res store.MergeResult) {
	logger := logging.WithFields(ctx, "path", raw.Path)

	if p.opts.Mirror != nil {
		source := publish.RecordSource(func(after uint64) iter.Seq2[core.CanonicalRecord, error] {
			return p.store.Records(raw.Partition, after)
		})
		sctx, cancel := context.WithTimeout(ctx, p.opts.SinkTimeout)
		n, err := p.opts.Mirror.Sync(sctx, raw.Partition, source)
		cancel()
		if err != nil {
			p.opts.Metrics.MirrorError()
			logger.Warn("mirror sync failed", "error", err)
		} else if n > 0 {
			logger.Debug("mirror synced", "rows", n)
		}
	}

	if p.opts.Notifier != nil && res.Added > 0 {
		sctx, cancel := context.WithTimeout(ctx, p.opts.SinkTimeout)
		defer cancel()
		err := p.opts.Notifier.Notify(sctx, publish.MergeEvent{
			RunID:     core.RunIDFromContext(ctx),
			Partition: raw.Partition,
			File:      raw.Path,
			Added:     res.Added,
			Total:     res.Total,
			At:        p.opts.Now().UTC(),
		})
		if err != nil {
			p.opts.Metrics.PublishError()
			logger.Warn("merge event not published", "error", err)
		}
	}
}

// failed completes fr as an error outcome and logs it.
func (p *Pipeline) failed(ctx context.Context, fr core.FileReport, err error, d time.Duration) core.FileReport {
	info := core.Describe(err)
	fr.Outcome = core.OutcomeError
	fr.Code = info.Code
	fr.Error = err.Error()
	fr.Duration = d

	logger := logging.WithFields(ctx, "path", fr.Path)
	if core.PartitionFromContext(ctx) == "" && fr.Partition != "" {
		logger = logger.With("partition", fr.Partition)
	}
	logger.Error("file failed",
		"code", info.Code,
		"error", err,
		"action", info.Action,
	)
	p.opts.Metrics.ObserveFile(fr)
	return fr
}

// appendRunLog writes one JSON line per file report.
func (p *Pipeline) appendRunLog(report core.RunReport) error {
	if len(report.Files) == 0 {
		return nil
	}
	root := p.store.Root()
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create store root: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(root, RunLogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open run log: %w", err)
	}
	enc := json.NewEncoder(f)
	for _, fr := range report.Files {
		if err := enc.Encode(fr); err != nil {
			f.Close()
			return fmt.Errorf("write run log: %w", err)
		}
	}
	return f.Close()
}

// compact drops the slots of files never reached because the run stopped.
func compact(results []*core.FileReport) []core.FileReport {
	out := make([]core.FileReport, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}
