// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists batches durably in a single JSON document.
//
// A single goroutine owns the authoritative batch map; all access flows
// through its request channel, which gives single-writer semantics without
// OS-level advisory locks. Every mutation serializes the full collection
// and atomically replaces tasks.json, so the document is valid JSON after
// every write and a crash can never leave a half-written file behind.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pdiddy/paper-agent/internal/retry"
	"github.com/pdiddy/paper-agent/pkg/types"
)

const tasksFile = "tasks.json"

// ErrNotFound is returned when no batch exists for the requested id.
var ErrNotFound = errors.New("batch not found")

// ErrClosed is returned for operations on a closed store.
var ErrClosed = errors.New("store is closed")

// writeRetryBase is the backoff unit for failed document writes: attempts
// wait 100ms, 200ms. Tests override this to avoid real sleeps.
var writeRetryBase = 100 * time.Millisecond

// Store is the durable batch store. All methods are safe for concurrent use.
type Store struct {
	ops       chan request
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

type request struct {
	fn    func(*state) error
	reply chan error
}

// state is owned exclusively by the actor goroutine.
type state struct {
	batches map[string]*types.Batch
	path    string
	logger  zerolog.Logger
}

// Open loads tasks.json from storageDir (creating the directory if needed)
// and starts the owning goroutine. Entries that fail to parse are dropped
// individually with a warning; one corrupt record does not take down the
// rest of the collection.
func Open(storageDir string, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory %s: %w", storageDir, err)
	}

	st := &state{
		batches: map[string]*types.Batch{},
		path:    filepath.Join(storageDir, tasksFile),
		logger:  logger,
	}
	if err := st.load(); err != nil {
		return nil, err
	}

	s := &Store{
		ops:  make(chan request),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go s.run(st)
	return s, nil
}

func (s *Store) run(st *state) {
	defer close(s.done)
	for {
		select {
		case req := <-s.ops:
			req.reply <- req.fn(st)
		case <-s.quit:
			return
		}
	}
}

// Close stops the owning goroutine. Pending operations may be rejected
// with ErrClosed. Close is idempotent.
func (s *Store) Close() {
	s.closeOnce.Do(func() { close(s.quit) })
	<-s.done
}

func (s *Store) do(fn func(*state) error) error {
	req := request{fn: fn, reply: make(chan error, 1)}
	select {
	case s.ops <- req:
		return <-req.reply
	case <-s.quit:
		return ErrClosed
	}
}

// Create adds a new pending batch and persists the collection.
func (s *Store) Create(title, inputText, description string) (*types.Batch, error) {
	now := time.Now().UTC()
	b := &types.Batch{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		InputText:   inputText,
		Status:      types.BatchPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.do(func(st *state) error {
		st.batches[b.ID] = b.Clone()
		return st.persist()
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Get returns a snapshot of the batch, or ErrNotFound.
func (s *Store) Get(id string) (*types.Batch, error) {
	var out *types.Batch
	err := s.do(func(st *state) error {
		b, ok := st.batches[id]
		if !ok {
			return ErrNotFound
		}
		out = b.Clone()
		return nil
	})
	return out, err
}

// List returns snapshots of all batches, oldest first.
func (s *Store) List() ([]*types.Batch, error) {
	var out []*types.Batch
	err := s.do(func(st *state) error {
		for _, b := range st.batches {
			out = append(out, b.Clone())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Update replaces the stored batch and persists the collection. The store
// keeps its own copy, so later mutations of the argument do not leak in.
func (s *Store) Update(b *types.Batch) error {
	snapshot := b.Clone()
	snapshot.UpdatedAt = time.Now().UTC()
	return s.do(func(st *state) error {
		st.batches[snapshot.ID] = snapshot
		return st.persist()
	})
}

// Delete removes the batch. It reports whether anything was deleted.
func (s *Store) Delete(id string) (bool, error) {
	deleted := false
	err := s.do(func(st *state) error {
		if _, ok := st.batches[id]; !ok {
			return nil
		}
		delete(st.batches, id)
		deleted = true
		return st.persist()
	})
	return deleted, err
}

// NextPending returns a snapshot of the oldest pending batch by creation
// time, or nil when there is none.
func (s *Store) NextPending() (*types.Batch, error) {
	var out *types.Batch
	err := s.do(func(st *state) error {
		var oldest *types.Batch
		for _, b := range st.batches {
			if b.Status != types.BatchPending {
				continue
			}
			if oldest == nil || b.CreatedAt.Before(oldest.CreatedAt) {
				oldest = b
			}
		}
		if oldest != nil {
			out = oldest.Clone()
		}
		return nil
	})
	return out, err
}

// PendingCount returns the number of pending batches.
func (s *Store) PendingCount() (int, error) {
	count := 0
	err := s.do(func(st *state) error {
		for _, b := range st.batches {
			if b.Status == types.BatchPending {
				count++
			}
		}
		return nil
	})
	return count, err
}

// Stuck returns batches left in a non-terminal, non-pending status,
// typically the residue of a crash mid-run. They are surfaced for manual
// inspection, never resumed automatically.
func (s *Store) Stuck() ([]*types.Batch, error) {
	var out []*types.Batch
	err := s.do(func(st *state) error {
		for _, b := range st.batches {
			if b.Status != types.BatchPending && !b.Status.Terminal() {
				out = append(out, b.Clone())
			}
		}
		return nil
	})
	return out, err
}

// load reads the document from disk into the batch map.
func (st *state) load() error {
	data, err := os.ReadFile(st.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", st.path, err)
	}

	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing %s: %w", st.path, err)
	}

	for id, entry := range raw {
		var b types.Batch
		if err := json.Unmarshal(entry, &b); err != nil {
			st.logger.Warn().Str("batch_id", id).Err(err).Msg("dropping unparsable batch record")
			continue
		}
		st.batches[id] = &b
	}
	return nil
}

// persist serializes the full collection and atomically replaces the
// document. Serialization happens entirely in memory first; a failed write
// leaves the previous document intact. Writes are retried 3 times with
// linear backoff before the error is surfaced to the caller.
func (st *state) persist() error {
	data, err := json.MarshalIndent(st.batches, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling batches: %w", err)
	}

	policy := retry.Policy{
		MaxAttempts: 3,
		Backoff:     retry.Linear(writeRetryBase),
	}
	err = policy.Do(context.Background(), func() error {
		return atomicWrite(st.path, data)
	})
	if err != nil {
		st.logger.Error().Err(err).Str("path", st.path).Msg("persisting batch store failed")
		return err
	}
	return nil
}

// atomicWrite replaces path via a temp file and rename.
func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tasks-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing document: %w", writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing document: %w", err)
	}
	return nil
}
