// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-agent/internal/analyze"
	"github.com/pdiddy/paper-agent/internal/cache"
	"github.com/pdiddy/paper-agent/internal/engine"
	"github.com/pdiddy/paper-agent/internal/format"
	"github.com/pdiddy/paper-agent/internal/logging"
	"github.com/pdiddy/paper-agent/internal/pipeline"
	"github.com/pdiddy/paper-agent/internal/resolve"
	"github.com/pdiddy/paper-agent/internal/store"
	"github.com/pdiddy/paper-agent/pkg/types"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the batch processing service",
	Long: `Serve starts the scheduler loop and processes pending batches one at a
time until interrupted. Submit batches with 'paper-agent submit' from
another terminal; progress is visible via 'paper-agent tasks'.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	logger := logging.New(cfg.Logging)

	if cfg.Format.APIKey == "" {
		return fmt.Errorf("no Anthropic API key: put it in .secrets/anthropic-api-key or the config file")
	}

	s, err := store.Open(cfg.Storage.Dir, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	p := buildPipeline(cfg, s, logger)

	gate := &engine.Gate{}
	scheduler := engine.NewScheduler(s, p, gate,
		cfg.Scheduler.PollInterval, cfg.Scheduler.StopTimeout, logger)
	eng := engine.New(s, gate, scheduler)

	eng.Start()
	logger.Info().
		Str("storage_dir", cfg.Storage.Dir).
		Dur("poll_interval", cfg.Scheduler.PollInterval).
		Msg("paper-agent service started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down")

	if err := eng.Stop(); err != nil {
		logger.Warn().Err(err).Msg("shutdown timed out")
	}
	return nil
}

// buildPipeline wires the production stage implementations.
func buildPipeline(cfg types.Config, s *store.Store, logger zerolog.Logger) *pipeline.Pipeline {
	resolveClient := httpClient(cfg.Resolve.HTTPConfig)
	analyzeClient := httpClient(cfg.Analysis.HTTPConfig)

	formatter := &format.ClaudeBackend{
		APIKey:     cfg.Format.APIKey,
		Model:      cfg.Format.Model,
		MaxTokens:  cfg.Format.MaxTokens,
		MaxRetries: cfg.Format.MaxRetries,
		Client:     analyzeClient,
		Logger:     logger,
	}
	resolver := &resolve.Resolver{
		Backends: []resolve.Backend{
			resolve.NewArxivBackend(resolveClient, cfg.Resolve),
			resolve.NewOpenAlexBackend(resolveClient, cfg.Resolve),
		},
	}
	summarizer := &analyze.ClaudeSummarizer{
		APIKey:     cfg.Analysis.APIKey,
		Model:      cfg.Analysis.Model,
		MaxTokens:  cfg.Analysis.MaxTokens,
		MaxRetries: cfg.Analysis.MaxRetries,
		Client:     analyzeClient,
		Logger:     logger,
	}
	analyzer := analyze.New(analyzeClient, summarizer, cfg.Analysis)

	return &pipeline.Pipeline{
		Store:              s,
		Cache:              cache.New(cfg.Storage.Dir),
		Formatter:          formatter,
		Resolver:           resolver,
		Summarizer:         analyzer,
		StorageDir:         cfg.Storage.Dir,
		Logger:             logger,
		SearchConcurrency:  cfg.Scheduler.SearchConcurrency,
		AnalyzeConcurrency: cfg.Scheduler.AnalyzeConcurrency,
		MaxItemRetries:     cfg.Scheduler.MaxItemRetries,
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
