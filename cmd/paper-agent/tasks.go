// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-agent/internal/engine"
	"github.com/pdiddy/paper-agent/internal/logging"
	"github.com/pdiddy/paper-agent/internal/store"
	"github.com/pdiddy/paper-agent/pkg/types"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect and manage batches",
	Long: `Tasks lists submitted batches and shows their processing state. Use
subcommands to view a single batch, its audit log, operational stats, or
to delete a batch that is no longer needed.`,
}

// newOfflineEngine wires an engine for one-shot CLI commands. The
// scheduler is never started; conflict checks fall back to the persisted
// batch status.
func newOfflineEngine(s *store.Store) *engine.Engine {
	gate := &engine.Gate{}
	scheduler := engine.NewScheduler(s, nil, gate, 0, 0, logging.New(types.LoggingConfig{Level: "error", Format: "console"}))
	return engine.New(s, gate, scheduler)
}

// openStore opens the batch store from the effective config.
func openStore() (*store.Store, types.Config, error) {
	cfg := loadConfig()
	s, err := store.Open(cfg.Storage.Dir, logging.New(cfg.Logging))
	if err != nil {
		return nil, cfg, err
	}
	return s, cfg, nil
}

// --- list subcommand ---

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all batches, oldest first",
	RunE:  runTasksList,
}

func runTasksList(cmd *cobra.Command, args []string) error {
	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	batches, err := newOfflineEngine(s).List()
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(batches)
	}

	if len(batches) == 0 {
		fmt.Println("No batches.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-36s  %-30s  %-18s  %-10s  %s\n",
		"ID", "Title", "Status", "Progress", "Created")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 110))
	for _, b := range batches {
		title := b.Title
		if len(title) > 30 {
			title = title[:27] + "..."
		}
		p := b.Progress()
		progress := fmt.Sprintf("%d/%d", p.Completed, p.Total)
		fmt.Fprintf(os.Stdout, "%-36s  %-30s  %-18s  %-10s  %s\n",
			b.ID, title, b.Status, progress, b.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(os.Stdout, "\n%d batches\n", len(batches))
	return nil
}

// --- show subcommand ---

var tasksShowCmd = &cobra.Command{
	Use:   "show <batch-id>",
	Short: "Show one batch with per-paper state",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasksShow,
}

func runTasksShow(cmd *cobra.Command, args []string) error {
	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	b, err := newOfflineEngine(s).Status(args[0])
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(b)
	}

	p := b.Progress()
	fmt.Printf("Batch:    %s\n", b.ID)
	fmt.Printf("Title:    %s\n", b.Title)
	fmt.Printf("Status:   %s\n", b.Status)
	fmt.Printf("Created:  %s\n", b.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	if b.CompletedAt != nil {
		fmt.Printf("Finished: %s\n", b.CompletedAt.Local().Format("2006-01-02 15:04:05"))
	}
	if b.Error != "" {
		fmt.Printf("Error:    %s\n", b.Error)
	}
	fmt.Printf("Progress: %d completed, %d failed, %d pending (%d%%)\n",
		p.Completed, p.Failed, p.Pending, p.Percentage)

	if len(b.Items) > 0 {
		fmt.Println("\nPapers:")
		for _, item := range b.Items {
			line := fmt.Sprintf("  [%-16s] %s", item.Status, item.Title)
			if item.Error != "" {
				line += ": " + item.Error
			}
			fmt.Println(line)
		}
	}
	return nil
}

// --- logs subcommand ---

var tasksLogsCmd = &cobra.Command{
	Use:   "logs <batch-id>",
	Short: "Print a batch's processing log",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasksLogs,
}

func runTasksLogs(cmd *cobra.Command, args []string) error {
	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	b, err := newOfflineEngine(s).Status(args[0])
	if err != nil {
		return err
	}

	for _, entry := range b.Log {
		fmt.Printf("%s  %-7s %-15s %s\n",
			entry.Timestamp.Local().Format("15:04:05"),
			entry.Level, entry.Stage, entry.Message)
	}
	return nil
}

// --- delete subcommand ---

var tasksDeleteCmd = &cobra.Command{
	Use:   "delete <batch-id>",
	Short: "Delete a batch",
	Long: `Delete removes a batch from the store. A batch that is currently being
processed cannot be deleted; wait for it to finish. Deleting a batch does
not touch the result cache or collected summaries.`,
	Args: cobra.ExactArgs(1),
	RunE: runTasksDelete,
}

func runTasksDelete(cmd *cobra.Command, args []string) error {
	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := newOfflineEngine(s).Delete(args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted batch %s\n", args[0])
	return nil
}

// --- stats subcommand ---

var tasksStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue statistics",
	RunE:  runTasksStats,
}

func runTasksStats(cmd *cobra.Command, args []string) error {
	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	batches, err := s.List()
	if err != nil {
		return err
	}
	stuck, err := s.Stuck()
	if err != nil {
		return err
	}

	counts := map[types.BatchStatus]int{}
	for _, b := range batches {
		counts[b.Status]++
	}

	fmt.Printf("Batches:   %d\n", len(batches))
	for _, status := range []types.BatchStatus{
		types.BatchPending, types.BatchFormatting, types.BatchSearching,
		types.BatchAnalyzing, types.BatchCompleted, types.BatchFailed,
	} {
		if counts[status] > 0 {
			fmt.Printf("  %-18s %d\n", status, counts[status])
		}
	}
	if len(stuck) > 0 {
		fmt.Printf("\n%d batch(es) were interrupted mid-pipeline:\n", len(stuck))
		for _, b := range stuck {
			fmt.Printf("  %s (%s, last update %s)\n", b.ID, b.Status,
				b.UpdatedAt.Local().Format("2006-01-02 15:04"))
		}
	}
	return nil
}

func init() {
	tasksListCmd.Flags().Bool("json", false, "output as JSON")
	tasksShowCmd.Flags().Bool("json", false, "output as JSON")

	tasksCmd.AddCommand(tasksListCmd)
	tasksCmd.AddCommand(tasksShowCmd)
	tasksCmd.AddCommand(tasksLogsCmd)
	tasksCmd.AddCommand(tasksDeleteCmd)
	tasksCmd.AddCommand(tasksStatsCmd)

	rootCmd.AddCommand(tasksCmd)
}
