// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-agent/pkg/types"
)

func init() {
	writeRetryBase = time.Millisecond
}

func openTestStore(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := Open(dir, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestCreateAndGet(t *testing.T) {
	s := openTestStore(t, t.TempDir())

	b, err := s.Create("Transformers", "Attention Is All You Need", "seminal papers")
	require.NoError(t, err)
	require.NotEmpty(t, b.ID)
	assert.Equal(t, types.BatchPending, b.Status)

	got, err := s.Get(b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Transformers", got.Title)
	assert.Equal(t, "Attention Is All You Need", got.InputText)
	assert.Equal(t, "seminal papers", got.Description)
}

func TestGetNotFound(t *testing.T) {
	s := openTestStore(t, t.TempDir())

	_, err := s.Get("no-such-id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetReturnsSnapshot(t *testing.T) {
	s := openTestStore(t, t.TempDir())

	b, err := s.Create("batch", "input", "")
	require.NoError(t, err)

	first, err := s.Get(b.ID)
	require.NoError(t, err)
	first.Title = "mutated locally"
	first.Items = append(first.Items, types.NewWorkItem("Paper", ""))

	second, err := s.Get(b.ID)
	require.NoError(t, err)
	assert.Equal(t, "batch", second.Title)
	assert.Empty(t, second.Items)
}

func TestUpdatePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir)

	b, err := s.Create("batch", "input", "")
	require.NoError(t, err)

	item := types.NewWorkItem("BERT", "https://arxiv.org/abs/1810.04805")
	item.Progress.Search = &types.PaperDetails{
		Title:           "BERT",
		Authors:         []string{"Jacob Devlin"},
		PublicationYear: 2018,
		ArxivID:         "1810.04805",
		PDFURL:          "https://arxiv.org/pdf/1810.04805.pdf",
		SearchEngine:    "arxiv",
	}
	item.Progress.Analysis = &types.AnalysisRecord{SummaryPath: "2026-08-30/1810.04805/summary.md"}
	item.RetryCount = 1
	item.SetStatus(types.ItemCompleted)
	b.Items = []types.WorkItem{
		types.NewWorkItem("Attention Is All You Need", ""),
		item,
	}
	b.SetStatus(types.BatchSearching)
	b.AppendLog("SEARCH_PAPERS", types.LogInfo, "resolved BERT",
		map[string]any{"paper_title": "BERT", "search_engine": "arxiv"})
	require.NoError(t, s.Update(b))

	// The store stamps UpdatedAt on Update, so the authoritative snapshot
	// is what Get returns, not the local copy.
	want, err := s.Get(b.ID)
	require.NoError(t, err)
	s.Close()

	reopened := openTestStore(t, dir)
	got, err := reopened.Get(b.ID)
	require.NoError(t, err)
	// Full round-trip fidelity: every field including nested items, log
	// entries, and timestamps survives the reload unchanged.
	assert.Equal(t, want, got)
}

func TestLoadDropsCorruptEntries(t *testing.T) {
	dir := t.TempDir()

	doc := map[string]any{
		"good": map[string]any{
			"id":         "good",
			"title":      "kept",
			"status":     "pending",
			"created_at": time.Now().UTC().Format(time.RFC3339),
			"updated_at": time.Now().UTC().Format(time.RFC3339),
		},
		"bad": map[string]any{
			"id":         "bad",
			"created_at": "not-a-timestamp",
		},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, tasksFile), data, 0o644))

	s := openTestStore(t, dir)

	got, err := s.Get("good")
	require.NoError(t, err)
	assert.Equal(t, "kept", got.Title)

	_, err = s.Get("bad")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadRejectsCorruptDocument(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, tasksFile), []byte("{not json"), 0o644))

	_, err := Open(dir, zerolog.Nop())
	assert.Error(t, err)
}

func TestDocumentStaysValidJSONAfterEveryWrite(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir)

	for i := 0; i < 5; i++ {
		_, err := s.Create("batch", "input", "")
		require.NoError(t, err)

		data, err := os.ReadFile(filepath.Join(dir, tasksFile))
		require.NoError(t, err)
		var doc map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(data, &doc))
		assert.Len(t, doc, i+1)
	}
}

func TestDelete(t *testing.T) {
	s := openTestStore(t, t.TempDir())

	b, err := s.Create("batch", "input", "")
	require.NoError(t, err)

	deleted, err := s.Delete(b.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.Delete(b.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = s.Get(b.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListOrderedByCreation(t *testing.T) {
	s := openTestStore(t, t.TempDir())

	first, err := s.Create("first", "a", "")
	require.NoError(t, err)
	second, err := s.Create("second", "b", "")
	require.NoError(t, err)

	// Force distinct creation times.
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	require.NoError(t, s.Update(second))

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
}

func TestNextPendingPicksOldest(t *testing.T) {
	s := openTestStore(t, t.TempDir())

	older, err := s.Create("older", "a", "")
	require.NoError(t, err)
	newer, err := s.Create("newer", "b", "")
	require.NoError(t, err)

	older.CreatedAt = newer.CreatedAt.Add(-time.Minute)
	require.NoError(t, s.Update(older))

	next, err := s.NextPending()
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, older.ID, next.ID)

	older.SetStatus(types.BatchSearching)
	require.NoError(t, s.Update(older))

	next, err = s.NextPending()
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, newer.ID, next.ID)
}

func TestNextPendingEmpty(t *testing.T) {
	s := openTestStore(t, t.TempDir())

	next, err := s.NextPending()
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestStuck(t *testing.T) {
	s := openTestStore(t, t.TempDir())

	pending, err := s.Create("pending", "a", "")
	require.NoError(t, err)

	stuck, err := s.Create("interrupted", "b", "")
	require.NoError(t, err)
	stuck.SetStatus(types.BatchAnalyzing)
	require.NoError(t, s.Update(stuck))

	finished, err := s.Create("finished", "c", "")
	require.NoError(t, err)
	finished.SetStatus(types.BatchCompleted)
	require.NoError(t, s.Update(finished))

	got, err := s.Stuck()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, stuck.ID, got[0].ID)

	count, err := s.PendingCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	_ = pending
}

func TestConcurrentUpdates(t *testing.T) {
	s := openTestStore(t, t.TempDir())

	b, err := s.Create("batch", "input", "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := s.Get(b.ID)
			if err != nil {
				t.Error(err)
				return
			}
			if err := s.Update(snap); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	got, err := s.Get(b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
}

func TestOperationsAfterClose(t *testing.T) {
	s, err := Open(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	s.Close()

	_, err = s.Get("any")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCloseIdempotent(t *testing.T) {
	s, err := Open(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	s.Close()
	// A second Close must be a no-op, not a panic; callers commonly pair a
	// deferred Close with an explicit one before reopening.
	s.Close()
}
