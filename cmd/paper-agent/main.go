// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the paper-agent CLI.
package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/paper-agent/internal/secrets"
	"github.com/pdiddy/paper-agent/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// rootCmd is the base command for the paper-agent CLI.
var rootCmd = &cobra.Command{
	Use:   "paper-agent",
	Short: "Batch collection and summarization of academic papers",
	Long: `paper-agent turns free-form paper references into resolved metadata and
structured summaries. Submit a batch of references, run the processing
service, and browse the collected library.

Batches move through three stages: the input is formatted into references,
each reference is resolved against arXiv and OpenAlex, and each resolved
paper is downloaded and summarized. Results accumulate in a durable store
and a cross-batch result cache, so repeated papers are never re-fetched.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./paper-agent.yaml or ~/.config/paper-agent/config.yaml)")
	rootCmd.PersistentFlags().String("storage-dir", "", "storage root (overrides config)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("paper-agent")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "paper-agent"))
		}
	}

	viper.SetEnvPrefix("PAPER_AGENT")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig assembles the effective configuration: config file and
// environment via viper, secrets for anything still unset, then defaults.
func loadConfig() types.Config {
	var cfg types.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not parse config: %v\n", err)
	}

	if dir, _ := rootCmd.PersistentFlags().GetString("storage-dir"); dir != "" {
		cfg.Storage.Dir = dir
	}

	cfg.Format.APIKey = secrets.Get(loadedSecrets, "anthropic-api-key", cfg.Format.APIKey)
	cfg.Analysis.APIKey = secrets.Get(loadedSecrets, "anthropic-api-key", cfg.Analysis.APIKey)
	cfg.Resolve.OpenAlexEmail = secrets.Get(loadedSecrets, "openalex-email", cfg.Resolve.OpenAlexEmail)

	cfg.ApplyDefaults()
	return cfg
}

// httpClient returns a client with the configured timeout.
func httpClient(cfg types.HTTPConfig) *http.Client {
	return &http.Client{Timeout: cfg.Timeout}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
