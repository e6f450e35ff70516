// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package engine ties the store, the pipeline, and the scheduler together
// behind one facade. Batch submission, inspection, and deletion all go
// through it; processing happens on the scheduler's goroutine, one batch
// at a time behind the gate.
package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pdiddy/paper-agent/internal/store"
	"github.com/pdiddy/paper-agent/pkg/types"
)

// ErrConflict is returned when an operation targets the batch currently
// being processed.
var ErrConflict = errors.New("batch is currently being processed")

// Engine is the public surface of the processing service.
type Engine struct {
	store     *store.Store
	gate      *Gate
	scheduler *Scheduler
}

// New wires an engine around an already-open store and scheduler. The gate
// must be the same one the scheduler uses.
func New(s *store.Store, gate *Gate, scheduler *Scheduler) *Engine {
	return &Engine{store: s, gate: gate, scheduler: scheduler}
}

// Start begins background processing.
func (e *Engine) Start() {
	e.scheduler.Start()
}

// Stop halts background processing, waiting for any in-flight batch up to
// the scheduler's stop timeout.
func (e *Engine) Stop() error {
	return e.scheduler.Stop()
}

// Submit validates and stores a new batch. It queues work; processing
// starts when the scheduler reaches the batch.
func (e *Engine) Submit(title, inputText, description string) (*types.Batch, error) {
	if strings.TrimSpace(inputText) == "" {
		return nil, fmt.Errorf("input text is empty")
	}
	if strings.TrimSpace(title) == "" {
		title = firstLine(inputText)
	}
	return e.store.Create(title, inputText, description)
}

// Status returns a snapshot of the batch.
func (e *Engine) Status(id string) (*types.Batch, error) {
	return e.store.Get(id)
}

// List returns all batches, oldest first.
func (e *Engine) List() ([]*types.Batch, error) {
	return e.store.List()
}

// Delete removes a batch. A batch that is being processed cannot be
// deleted; callers get ErrConflict and should retry after processing
// finishes. Both the gate and the persisted status are consulted, so the
// rule holds even for a process that does not share the gate with the
// scheduler.
func (e *Engine) Delete(id string) error {
	if e.gate.Holder() == id {
		return ErrConflict
	}
	b, err := e.store.Get(id)
	if err != nil {
		return err
	}
	if b.Status != types.BatchPending && !b.Status.Terminal() {
		return ErrConflict
	}
	deleted, err := e.store.Delete(id)
	if err != nil {
		return err
	}
	if !deleted {
		return store.ErrNotFound
	}
	return nil
}

// Stats is a point-in-time operational snapshot.
type Stats struct {
	ActiveBatchID    string `json:"active_batch_id,omitempty"`
	PendingCount     int    `json:"pending_count"`
	SchedulerRunning bool   `json:"scheduler_running"`
}

// Stats reports the current processing state.
func (e *Engine) Stats() (Stats, error) {
	pending, err := e.store.PendingCount()
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		ActiveBatchID:    e.gate.Holder(),
		PendingCount:     pending,
		SchedulerRunning: e.scheduler.Running(),
	}, nil
}

// firstLine derives a display title from the input text.
func firstLine(text string) string {
	line := strings.TrimSpace(text)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = strings.TrimSpace(line[:idx])
	}
	if len(line) > 60 {
		line = line[:57] + "..."
	}
	return line
}
