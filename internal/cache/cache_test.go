// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cache

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-agent/pkg/types"
)

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Attention Is All You Need", "attentionisallyouneed"},
		{"attention is all you need", "attentionisallyouneed"},
		{"BERT: Pre-training of Deep Bidirectional Transformers", "bertpretrainingofdeepbidirectionaltransformers"},
		{"  Spaces  and---dashes  ", "spacesanddashes"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeTitle(tt.in))
	}
}

func TestLookupMiss(t *testing.T) {
	c := New(t.TempDir())
	entry, err := c.Lookup("Unknown Paper")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestPublishDetailsAndLookup(t *testing.T) {
	c := New(t.TempDir())
	details := &types.PaperDetails{
		Title:        "Attention Is All You Need",
		ArxivID:      "1706.03762",
		PDFURL:       "https://arxiv.org/pdf/1706.03762.pdf",
		SearchEngine: "arxiv",
	}
	require.NoError(t, c.PublishDetails("Attention Is All You Need", details))

	// Lookup is keyed by normalized title.
	entry, err := c.Lookup("ATTENTION is all you NEED!")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "1706.03762", entry.ArxivID)
	assert.False(t, entry.CollectedAt.IsZero())
}

func TestPublishDetailsPreservesSummary(t *testing.T) {
	dir := t.TempDir()
	c := New(dir)

	summaryRel := filepath.Join("2026-08-30", "1706.03762", "summary.md")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, filepath.Dir(summaryRel)), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, summaryRel), []byte("summary"), 0o644))

	details := &types.PaperDetails{Title: "Attention Is All You Need", ArxivID: "1706.03762"}
	require.NoError(t, c.PublishSummary("Attention Is All You Need", details, summaryRel))

	// A later metadata refresh must not clobber the summary pointer.
	require.NoError(t, c.PublishDetails("Attention Is All You Need", details))

	entry, err := c.Lookup("Attention Is All You Need")
	require.NoError(t, err)
	assert.Equal(t, summaryRel, entry.SummaryPath)
}

func TestPublishSummaryExistingWins(t *testing.T) {
	dir := t.TempDir()
	c := New(dir)

	first := filepath.Join("2026-08-29", "1706.03762", "summary.md")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, filepath.Dir(first)), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, first), []byte("first"), 0o644))

	details := &types.PaperDetails{Title: "Attention Is All You Need"}
	require.NoError(t, c.PublishSummary("Attention Is All You Need", details, first))
	require.NoError(t, c.PublishSummary("Attention Is All You Need", details, "somewhere/else/summary.md"))

	entry, err := c.Lookup("Attention Is All You Need")
	require.NoError(t, err)
	assert.Equal(t, first, entry.SummaryPath)
}

func TestPublishSummaryReplacesDanglingPath(t *testing.T) {
	dir := t.TempDir()
	c := New(dir)

	details := &types.PaperDetails{Title: "Attention Is All You Need"}
	require.NoError(t, c.PublishSummary("Attention Is All You Need", details, "gone/summary.md"))

	replacement := filepath.Join("2026-08-30", "1706.03762", "summary.md")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, filepath.Dir(replacement)), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, replacement), []byte("fresh"), 0o644))
	require.NoError(t, c.PublishSummary("Attention Is All You Need", details, replacement))

	entry, err := c.Lookup("Attention Is All You Need")
	require.NoError(t, err)
	assert.Equal(t, replacement, entry.SummaryPath)
}

func TestHasSummary(t *testing.T) {
	dir := t.TempDir()
	c := New(dir)

	assert.False(t, c.HasSummary(nil))
	assert.False(t, c.HasSummary(&types.CacheEntry{}))
	assert.False(t, c.HasSummary(&types.CacheEntry{SummaryPath: "missing/summary.md"}))

	rel := filepath.Join("d", "summary.md")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "d"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, rel), []byte("x"), 0o644))
	assert.True(t, c.HasSummary(&types.CacheEntry{SummaryPath: rel}))
}

func TestSaveOrdersNewestFirst(t *testing.T) {
	dir := t.TempDir()
	c := New(dir)

	require.NoError(t, c.PublishDetails("Older Paper", &types.PaperDetails{Title: "Older Paper"}))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, c.PublishDetails("Newer Paper", &types.PaperDetails{Title: "Newer Paper"}))

	data, err := os.ReadFile(filepath.Join(dir, cacheFile))
	require.NoError(t, err)

	// Walk the document tokens to recover key order.
	dec := json.NewDecoder(bytes.NewReader(data))
	_, err = dec.Token() // opening brace
	require.NoError(t, err)

	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		require.NoError(t, err)
		keys = append(keys, tok.(string))
		var entry types.CacheEntry
		require.NoError(t, dec.Decode(&entry))
	}

	require.Equal(t, []string{"newerpaper", "olderpaper"}, keys)
}

func TestAll(t *testing.T) {
	c := New(t.TempDir())
	require.NoError(t, c.PublishDetails("Paper A", &types.PaperDetails{Title: "Paper A"}))
	require.NoError(t, c.PublishDetails("Paper B", &types.PaperDetails{Title: "Paper B"}))

	all, err := c.All()
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Contains(t, all, "papera")
	assert.Contains(t, all, "paperb")
}

func TestDocumentSurvivesReload(t *testing.T) {
	dir := t.TempDir()

	first := New(dir)
	require.NoError(t, first.PublishDetails("Paper", &types.PaperDetails{Title: "Paper", DOI: "10.1/x"}))

	second := New(dir)
	entry, err := second.Lookup("Paper")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "10.1/x", entry.DOI)
}
