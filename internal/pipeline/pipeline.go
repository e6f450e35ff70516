// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline runs one batch through the three processing stages:
// format the input into references, resolve each reference to a canonical
// record, and produce a summary per paper. Stage progress, per-item state,
// and the audit log are persisted through the store after every meaningful
// change, so a crash leaves an accurate picture of how far the batch got.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/paper-agent/internal/analyze"
	"github.com/pdiddy/paper-agent/internal/cache"
	"github.com/pdiddy/paper-agent/internal/format"
	"github.com/pdiddy/paper-agent/internal/resolve"
	"github.com/pdiddy/paper-agent/internal/store"
	"github.com/pdiddy/paper-agent/pkg/types"
)

// Stage tags used in the batch audit log.
const (
	stageInit    = "INIT"
	stageFormat  = "FORMAT_INPUT"
	stageSearch  = "SEARCH_PAPERS"
	stageAnalyze = "ANALYZE_PAPERS"
	stageDone    = "COMPLETE"
	stageError   = "ERROR"
)

// Resolver turns one reference into a canonical paper record.
type Resolver interface {
	Resolve(ctx context.Context, ref types.PaperRef) (*types.PaperDetails, error)
}

// Summarizer produces the summary text for a resolved paper.
type Summarizer interface {
	Summarize(ctx context.Context, details *types.PaperDetails) (string, error)
}

// Pipeline processes batches. All collaborators must be set.
type Pipeline struct {
	Store      *store.Store
	Cache      *cache.Cache
	Formatter  format.Backend
	Resolver   Resolver
	Summarizer Summarizer
	StorageDir string
	Logger     zerolog.Logger

	// SearchConcurrency and AnalyzeConcurrency bound the per-stage worker
	// pools. Values below 1 mean serial execution.
	SearchConcurrency  int
	AnalyzeConcurrency int

	// MaxItemRetries is how many times a transiently failed item is
	// retried within its stage before being marked failed.
	MaxItemRetries int
}

// run carries the mutable state for one batch execution. The mutex guards
// the batch; worker goroutines touch items only through it.
type run struct {
	*Pipeline
	mu    sync.Mutex
	batch *types.Batch
}

// Run executes the full pipeline for the batch. Batch-level failures
// (unparsable input, no references) are recorded on the batch and do not
// return an error; only infrastructure failures (store writes, context
// cancellation) do.
func (p *Pipeline) Run(ctx context.Context, batchID string) error {
	batch, err := p.Store.Get(batchID)
	if err != nil {
		return fmt.Errorf("loading batch %s: %w", batchID, err)
	}

	r := &run{Pipeline: p, batch: batch}
	logger := p.Logger.With().Str("batch_id", batchID).Logger()

	r.log(stageInit, types.LogInfo, "processing started", nil)
	if err := r.persist(); err != nil {
		return err
	}

	if err := r.formatStage(ctx); err != nil {
		return r.finishError(ctx, err)
	}
	if r.batch.Status.Terminal() {
		return r.persist()
	}

	if err := r.searchStage(ctx); err != nil {
		return r.finishError(ctx, err)
	}
	if err := r.analyzeStage(ctx); err != nil {
		return r.finishError(ctx, err)
	}

	r.finish()
	logger.Info().
		Str("status", string(r.batch.Status)).
		Int("completed", r.batch.Progress().Completed).
		Int("failed", r.batch.Progress().Failed).
		Msg("batch finished")
	return r.persist()
}

// formatStage turns the input text into work items.
func (r *run) formatStage(ctx context.Context) error {
	r.setBatchStatus(types.BatchFormatting)
	r.log(stageFormat, types.LogInfo, "formatting input", nil)
	if err := r.persist(); err != nil {
		return err
	}

	refs, err := r.Formatter.FormatInput(ctx, r.batch.InputText)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.failBatch(stageFormat, fmt.Sprintf("formatting input failed: %v", err))
		return nil
	}
	refs = format.CleanRefs(refs)
	if len(refs) == 0 {
		r.failBatch(stageFormat, "no paper references found in input")
		return nil
	}

	for _, ref := range refs {
		r.batch.Items = append(r.batch.Items, types.NewWorkItem(ref.Title, ref.URL))
	}
	r.log(stageFormat, types.LogInfo, fmt.Sprintf("found %d paper references", len(refs)),
		map[string]any{"count": len(refs)})
	return r.persist()
}

// searchStage resolves every item to a canonical record, honoring the
// cache and the configured concurrency bound.
func (r *run) searchStage(ctx context.Context) error {
	r.setBatchStatus(types.BatchSearching)
	r.log(stageSearch, types.LogInfo, "resolving paper references", nil)
	if err := r.persist(); err != nil {
		return err
	}

	r.forEachItem(ctx, r.SearchConcurrency, func(ctx context.Context, idx int) {
		r.searchItem(ctx, idx)
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return r.persist()
}

func (r *run) searchItem(ctx context.Context, idx int) {
	title, sourceURL := r.itemRef(idx)

	r.updateItem(idx, func(item *types.WorkItem) {
		item.SetStatus(types.ItemSearching)
	})

	// Cached metadata satisfies the item unless the user supplied a fresh
	// URL, which takes precedence over the cached record.
	if sourceURL == "" {
		entry, err := r.Cache.Lookup(title)
		if err != nil {
			r.Logger.Warn().Err(err).Msg("cache lookup failed")
		} else if entry != nil && entry.PDFURL != "" {
			details := entry.PaperDetails
			r.updateItem(idx, func(item *types.WorkItem) {
				item.Progress.Search = &details
				item.SetStatus(types.ItemSearchCompleted)
			})
			r.log(stageSearch, types.LogInfo, fmt.Sprintf("cache hit for %q", title),
				map[string]any{"paper_title": title})
			r.persistLogged()
			return
		}
	}

	details, err := withItemRetries(r, ctx, idx, func(ctx context.Context) (*types.PaperDetails, error) {
		return r.Resolver.Resolve(ctx, types.PaperRef{Title: title, URL: sourceURL})
	}, func(err error) bool {
		return !errors.Is(err, resolve.ErrNotFound)
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		reason := fmt.Sprintf("resolving %q: %v", title, err)
		if errors.Is(err, resolve.ErrNotFound) {
			reason = fmt.Sprintf("no match found for %q", title)
		}
		r.updateItem(idx, func(item *types.WorkItem) {
			item.Fail(reason)
		})
		r.log(stageSearch, types.LogWarning, reason, map[string]any{"paper_title": title})
		r.persistLogged()
		return
	}

	if err := r.Cache.PublishDetails(title, details); err != nil {
		r.Logger.Warn().Err(err).Str("paper_title", title).Msg("publishing details to cache failed")
	}
	r.updateItem(idx, func(item *types.WorkItem) {
		item.Progress.Search = details
		item.SetStatus(types.ItemSearchCompleted)
	})
	r.log(stageSearch, types.LogInfo, fmt.Sprintf("resolved %q via %s", title, details.SearchEngine),
		map[string]any{"paper_title": title, "search_engine": details.SearchEngine})
	r.persistLogged()
}

// analyzeStage summarizes every resolved item.
func (r *run) analyzeStage(ctx context.Context) error {
	r.setBatchStatus(types.BatchAnalyzing)
	r.log(stageAnalyze, types.LogInfo, "analyzing papers", nil)
	if err := r.persist(); err != nil {
		return err
	}

	r.forEachItem(ctx, r.AnalyzeConcurrency, func(ctx context.Context, idx int) {
		r.analyzeItem(ctx, idx)
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return r.persist()
}

func (r *run) analyzeItem(ctx context.Context, idx int) {
	title, _ := r.itemRef(idx)

	r.mu.Lock()
	item := &r.batch.Items[idx]
	if item.Status != types.ItemSearchCompleted || item.Progress.Search == nil {
		r.mu.Unlock()
		return
	}
	details := *item.Progress.Search
	r.mu.Unlock()

	// An existing summary for this title means the work is already done.
	if entry, err := r.Cache.Lookup(title); err == nil && r.Cache.HasSummary(entry) {
		r.updateItem(idx, func(item *types.WorkItem) {
			item.Progress.Analysis = &types.AnalysisRecord{SummaryPath: entry.SummaryPath}
			item.SetStatus(types.ItemCompleted)
		})
		r.log(stageAnalyze, types.LogInfo, fmt.Sprintf("summary already collected for %q", title),
			map[string]any{"paper_title": title, "summary_path": entry.SummaryPath})
		r.persistLogged()
		return
	}

	r.updateItem(idx, func(item *types.WorkItem) {
		item.SetStatus(types.ItemAnalyzing)
	})
	r.persistLogged()

	summary, err := withItemRetries(r, ctx, idx, func(ctx context.Context) (string, error) {
		return r.Summarizer.Summarize(ctx, &details)
	}, func(err error) bool {
		return !analyze.IsPermanent(err)
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		reason := fmt.Sprintf("analyzing %q: %v", title, err)
		r.updateItem(idx, func(item *types.WorkItem) {
			item.Fail(reason)
		})
		r.log(stageAnalyze, types.LogWarning, reason, map[string]any{"paper_title": title})
		r.persistLogged()
		return
	}

	relPath, err := r.writeSummary(&details, summary)
	if err != nil {
		reason := fmt.Sprintf("persisting summary for %q: %v", title, err)
		r.updateItem(idx, func(item *types.WorkItem) {
			item.Fail(reason)
		})
		r.log(stageAnalyze, types.LogError, reason, map[string]any{"paper_title": title})
		r.persistLogged()
		return
	}

	if err := r.Cache.PublishSummary(title, &details, relPath); err != nil {
		r.Logger.Warn().Err(err).Str("paper_title", title).Msg("publishing summary to cache failed")
	}
	r.updateItem(idx, func(item *types.WorkItem) {
		item.Progress.Analysis = &types.AnalysisRecord{SummaryPath: relPath}
		item.SetStatus(types.ItemCompleted)
	})
	r.log(stageAnalyze, types.LogInfo, fmt.Sprintf("summarized %q", title),
		map[string]any{"paper_title": title, "summary_path": relPath})
	r.persistLogged()
}

// writeSummary persists the summary under <storage>/<date>/<paper-id>/ and
// returns the storage-relative path.
func (r *run) writeSummary(details *types.PaperDetails, summary string) (string, error) {
	relDir := filepath.Join(time.Now().UTC().Format("2006-01-02"), paperID(details))
	dir := filepath.Join(r.StorageDir, relDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating summary directory: %w", err)
	}

	relPath := filepath.Join(relDir, "summary.md")
	if err := os.WriteFile(filepath.Join(r.StorageDir, relPath), []byte(summary), 0o644); err != nil {
		return "", fmt.Errorf("writing summary: %w", err)
	}
	return relPath, nil
}

// paperID names the summary directory: the arXiv ID when known, otherwise
// a slug derived from the title.
func paperID(details *types.PaperDetails) string {
	if details.ArxivID != "" {
		return details.ArxivID
	}
	var b strings.Builder
	for _, r := range strings.ToLower(details.Title) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) > 80 {
		slug = slug[:80]
	}
	if slug == "" {
		slug = "untitled"
	}
	return slug
}

// withItemRetries runs work, retrying transient failures up to the
// configured ceiling. Each retry increments the item's RetryCount so the
// attempts are visible in the persisted state.
func withItemRetries[T any](r *run, ctx context.Context, idx int, work func(context.Context) (T, error), retryable func(error) bool) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		result, err := work(ctx)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if !retryable(err) || attempt >= r.MaxItemRetries {
			return zero, err
		}
		r.updateItem(idx, func(item *types.WorkItem) {
			item.RetryCount++
		})
	}
}

// forEachItem runs fn for every item index through a bounded worker pool.
func (r *run) forEachItem(ctx context.Context, concurrency int, fn func(context.Context, int)) {
	if concurrency < 1 {
		concurrency = 1
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for idx := range r.batch.Items {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			fn(ctx, idx)
		}(idx)
	}
	wg.Wait()
}

// finish settles the batch's terminal status from the item outcomes.
func (r *run) finish() {
	progress := r.batch.Progress()
	switch {
	case progress.Pending > 0:
		r.failBatch(stageError, fmt.Sprintf("%d items never finished processing", progress.Pending))
	case progress.Completed == 0:
		r.failBatch(stageError, "all items failed")
	default:
		r.setBatchStatus(types.BatchCompleted)
		msg := fmt.Sprintf("completed %d of %d papers", progress.Completed, progress.Total)
		r.log(stageDone, types.LogInfo, msg, map[string]any{
			"completed": progress.Completed,
			"failed":    progress.Failed,
			"total":     progress.Total,
		})
	}
}

// finishError records an infrastructure failure on the batch on a
// best-effort basis and returns it.
func (r *run) finishError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// Shutdown mid-run: leave the batch where it was; it will surface
		// as stuck on the next startup sweep.
		return err
	}
	r.failBatch(stageError, err.Error())
	if perr := r.persist(); perr != nil {
		r.Logger.Error().Err(perr).Msg("persisting failed batch state")
	}
	return err
}

func (r *run) failBatch(stage, reason string) {
	r.mu.Lock()
	r.batch.Error = reason
	r.batch.SetStatus(types.BatchFailed)
	r.batch.AppendLog(stage, types.LogError, reason, nil)
	r.mu.Unlock()
}

func (r *run) setBatchStatus(status types.BatchStatus) {
	r.mu.Lock()
	r.batch.SetStatus(status)
	r.mu.Unlock()
}

func (r *run) log(stage string, level types.LogLevel, msg string, data map[string]any) {
	r.mu.Lock()
	r.batch.AppendLog(stage, level, msg, data)
	r.mu.Unlock()
}

func (r *run) itemRef(idx int) (title, sourceURL string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batch.Items[idx].Title, r.batch.Items[idx].SourceURL
}

func (r *run) updateItem(idx int, fn func(*types.WorkItem)) {
	r.mu.Lock()
	fn(&r.batch.Items[idx])
	r.mu.Unlock()
}

// persist writes the current batch state through the store.
func (r *run) persist() error {
	r.mu.Lock()
	snapshot := r.batch.Clone()
	r.mu.Unlock()
	if err := r.Store.Update(snapshot); err != nil {
		return fmt.Errorf("persisting batch %s: %w", snapshot.ID, err)
	}
	return nil
}

// persistLogged is persist for mid-stage checkpoints where a write failure
// should not abort the run.
func (r *run) persistLogged() {
	if err := r.persist(); err != nil {
		r.Logger.Error().Err(err).Msg("checkpoint write failed")
	}
}
