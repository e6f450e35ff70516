// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/paper-agent/internal/store"
	"github.com/pdiddy/paper-agent/pkg/types"
)

// Runner executes the pipeline for one batch.
type Runner interface {
	Run(ctx context.Context, batchID string) error
}

// Scheduler polls the store for pending batches and runs them one at a
// time through the gate. Batches run strictly sequentially: the loop does
// not look for new work until the current run finishes.
type Scheduler struct {
	store       *store.Store
	runner      Runner
	gate        *Gate
	interval    time.Duration
	stopTimeout time.Duration
	logger      zerolog.Logger

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewScheduler wires a scheduler. interval is the poll period; stopTimeout
// bounds how long Stop waits for an in-flight batch.
func NewScheduler(s *store.Store, runner Runner, gate *Gate, interval, stopTimeout time.Duration, logger zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Scheduler{
		store:       s,
		runner:      runner,
		gate:        gate,
		interval:    interval,
		stopTimeout: stopTimeout,
		logger:      logger,
	}
}

// Start launches the polling loop. It also sweeps for batches left
// mid-pipeline by an earlier crash and marks them failed; mid-stage work is
// never resumed automatically, and the terminal status makes the batch
// inspectable and deletable.
func (s *Scheduler) Start() {
	if !s.running.CompareAndSwap(false, true) {
		return
	}

	stuck, err := s.store.Stuck()
	if err != nil {
		s.logger.Error().Err(err).Msg("startup sweep failed")
	}
	for _, b := range stuck {
		s.logger.Warn().
			Str("batch_id", b.ID).
			Str("status", string(b.Status)).
			Msg("batch was interrupted mid-pipeline; marking failed")
		b.Error = "processing was interrupted; resubmit to retry"
		b.SetStatus(types.BatchFailed)
		b.AppendLog("ERROR", types.LogError, b.Error, nil)
		if err := s.store.Update(b); err != nil {
			s.logger.Error().Err(err).Str("batch_id", b.ID).Msg("marking interrupted batch failed")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx)
}

// Stop cancels the loop and waits for any in-flight batch, up to the stop
// timeout. A batch still running after the timeout is abandoned; it will
// show up as stuck on the next start.
func (s *Scheduler) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.cancel()

	timeout := s.stopTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	select {
	case <-s.done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("scheduler did not stop within %s", timeout)
	}
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs the oldest pending batch, if any.
func (s *Scheduler) tick(ctx context.Context) {
	batch, err := s.store.NextPending()
	if err != nil {
		s.logger.Error().Err(err).Msg("polling for pending batches")
		return
	}
	if batch == nil {
		return
	}

	if !s.gate.TryAcquire(batch.ID) {
		return
	}
	defer s.gate.Release(batch.ID)

	logger := s.logger.With().Str("batch_id", batch.ID).Logger()
	logger.Info().Str("title", batch.Title).Msg("starting batch")

	if err := s.runner.Run(ctx, batch.ID); err != nil {
		if ctx.Err() != nil {
			logger.Warn().Msg("batch interrupted by shutdown")
			return
		}
		logger.Error().Err(err).Msg("batch run failed")
		return
	}
	logger.Info().Msg("batch run finished")
}
