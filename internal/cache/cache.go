// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cache maintains the cross-batch result cache: a single JSON
// document mapping normalized paper titles to resolved metadata and summary
// locations. The cache is the system's long-term memory: it survives batch
// deletion and lets repeated runs skip search and analysis for papers that
// were already collected.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/pdiddy/paper-agent/internal/retry"
	"github.com/pdiddy/paper-agent/pkg/types"
)

const cacheFile = "cache.json"

// Cache reads and writes the result cache document. Every operation
// reloads the document from disk before acting on it, so the in-memory
// view is never stale for longer than one read-modify-write cycle.
type Cache struct {
	mu         sync.Mutex
	storageDir string
	path       string
	writeRetry retry.Policy
}

// New returns a Cache rooted at storageDir. The document lives at
// storageDir/cache.json; summary paths inside entries are relative to
// storageDir.
func New(storageDir string) *Cache {
	return &Cache{
		storageDir: storageDir,
		path:       filepath.Join(storageDir, cacheFile),
		writeRetry: retry.Policy{
			MaxAttempts: 3,
			Backoff:     retry.Linear(100 * time.Millisecond),
		},
	}
}

// NormalizeTitle reduces a title to its identity key: lowercased with all
// non-alphanumeric characters removed.
func NormalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Lookup returns the cache entry for the title, or nil when absent.
func (c *Cache) Lookup(title string) (*types.CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.load()
	if err != nil {
		return nil, err
	}
	entry, ok := entries[NormalizeTitle(title)]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// HasSummary reports whether the entry carries a summary path that still
// exists on disk. A dangling path counts as no summary, so analysis re-runs
// instead of publishing a pointer to nothing.
func (c *Cache) HasSummary(entry *types.CacheEntry) bool {
	if entry == nil || entry.SummaryPath == "" {
		return false
	}
	_, err := os.Stat(filepath.Join(c.storageDir, entry.SummaryPath))
	return err == nil
}

// PublishDetails records resolved metadata for a title, preserving any
// summary already present. Called by the search stage after resolution.
func (c *Cache) PublishDetails(title string, details *types.PaperDetails) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := NormalizeTitle(title)
	entries, err := c.load()
	if err != nil {
		return err
	}

	entry := entries[key]
	entry.PaperDetails = *details
	entry.CollectedAt = time.Now().UTC()
	entries[key] = entry

	return c.save(entries)
}

// PublishSummary records the summary path for a title. If another writer
// already published a summary for the same key and its file still exists,
// the existing entry wins and this call is a no-op.
func (c *Cache) PublishSummary(title string, details *types.PaperDetails, summaryPath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := NormalizeTitle(title)
	entries, err := c.load()
	if err != nil {
		return err
	}

	if existing, ok := entries[key]; ok && c.HasSummary(&existing) {
		return nil
	}

	entry := entries[key]
	if details != nil {
		entry.PaperDetails = *details
	}
	entry.SummaryPath = summaryPath
	entry.CollectedAt = time.Now().UTC()
	entries[key] = entry

	return c.save(entries)
}

// All returns every cache entry keyed by normalized title.
func (c *Cache) All() (map[string]types.CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load()
}

// load reads the document from disk. A missing file is an empty cache.
func (c *Cache) load() (map[string]types.CacheEntry, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]types.CacheEntry{}, nil
		}
		return nil, fmt.Errorf("reading cache %s: %w", c.path, err)
	}

	entries := map[string]types.CacheEntry{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing cache %s: %w", c.path, err)
	}
	return entries, nil
}

// save atomically rewrites the document. Entries are serialized sorted by
// collection time, newest first, so readers see recent papers at the top.
func (c *Cache) save(entries map[string]types.CacheEntry) error {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ti, tj := entries[keys[i]].CollectedAt, entries[keys[j]].CollectedAt
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return keys[i] < keys[j]
	})

	var buf strings.Builder
	buf.WriteString("{\n")
	for i, k := range keys {
		entryJSON, err := json.MarshalIndent(entries[k], "  ", "  ")
		if err != nil {
			return fmt.Errorf("marshaling cache entry %q: %w", k, err)
		}
		keyJSON, _ := json.Marshal(k)
		buf.WriteString("  ")
		buf.Write(keyJSON)
		buf.WriteString(": ")
		buf.WriteString(string(entryJSON))
		if i < len(keys)-1 {
			buf.WriteString(",")
		}
		buf.WriteString("\n")
	}
	buf.WriteString("}\n")

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("creating storage directory: %w", err)
	}

	return c.writeRetry.Do(context.Background(), func() error {
		return atomicWrite(c.path, []byte(buf.String()))
	})
}

// atomicWrite replaces path via a temp file and rename so the document is
// valid JSON at every instant.
func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".cache-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing cache: %w", writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing cache: %w", err)
	}
	return nil
}
