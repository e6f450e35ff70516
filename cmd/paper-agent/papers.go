// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-agent/internal/cache"
	"github.com/pdiddy/paper-agent/internal/library"
)

var papersCmd = &cobra.Command{
	Use:   "papers",
	Short: "Browse the collected paper library",
	Long: `Papers works against the library index built from the result cache.
Run 'papers sync' after processing batches to bring the index up to date,
then list, search, or show collected papers and their summaries.`,
}

// openLibrary opens the library index from the effective config.
func openLibrary() (*library.Store, *cache.Cache, error) {
	cfg := loadConfig()
	s, err := library.Open(cfg.Storage.Dir, cfg.Library.MaxResults)
	if err != nil {
		return nil, nil, err
	}
	return s, cache.New(cfg.Storage.Dir), nil
}

// --- sync subcommand ---

var papersSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Rebuild the library index from the result cache",
	RunE:  runPapersSync,
}

func runPapersSync(cmd *cobra.Command, args []string) error {
	s, c, err := openLibrary()
	if err != nil {
		return err
	}
	defer s.Close()

	summary, err := s.Sync(context.Background(), c)
	if err != nil {
		return err
	}
	fmt.Printf("indexed: %d, updated: %d, skipped: %d, failed: %d\n",
		summary.Indexed, summary.Updated, summary.Skipped, summary.Failed)
	if summary.Failed > 0 {
		return fmt.Errorf("%d paper(s) failed indexing", summary.Failed)
	}
	return nil
}

// --- list subcommand ---

var papersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List collected papers, newest first",
	RunE:  runPapersList,
}

func runPapersList(cmd *cobra.Command, args []string) error {
	s, _, err := openLibrary()
	if err != nil {
		return err
	}
	defer s.Close()

	papers, err := s.List(context.Background())
	if err != nil {
		return err
	}
	return printPapers(cmd, papers)
}

// --- search subcommand ---

var papersSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over titles and summaries",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPapersSearch,
}

func runPapersSearch(cmd *cobra.Command, args []string) error {
	s, _, err := openLibrary()
	if err != nil {
		return err
	}
	defer s.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	papers, err := s.Search(context.Background(), strings.Join(args, " "), limit)
	if err != nil {
		return err
	}
	return printPapers(cmd, papers)
}

// --- export subcommand ---

var papersExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the library as a CSL bibliography",
	Long: `Export writes every indexed paper as a CSL (Citation Style Language)
bibliography to stdout, ready for Pandoc or a reference manager. Use
--format to choose yaml (default) or json.`,
	RunE: runPapersExport,
}

func runPapersExport(cmd *cobra.Command, args []string) error {
	s, _, err := openLibrary()
	if err != nil {
		return err
	}
	defer s.Close()

	format, _ := cmd.Flags().GetString("format")
	return s.ExportCSL(context.Background(), os.Stdout, format)
}

// --- show subcommand ---

var papersShowCmd = &cobra.Command{
	Use:   "show <arxiv-id|title>",
	Short: "Show one paper's metadata and summary",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPapersShow,
}

func runPapersShow(cmd *cobra.Command, args []string) error {
	s, _, err := openLibrary()
	if err != nil {
		return err
	}
	defer s.Close()

	p, summary, err := s.Show(context.Background(), strings.Join(args, " "))
	if err != nil {
		return err
	}

	fmt.Printf("Title:     %s\n", p.Title)
	if len(p.Authors) > 0 {
		fmt.Printf("Authors:   %s\n", strings.Join(p.Authors, ", "))
	}
	if p.PublicationYear > 0 {
		fmt.Printf("Year:      %d\n", p.PublicationYear)
	}
	if p.ArxivID != "" {
		fmt.Printf("arXiv:     %s\n", p.ArxivID)
	}
	if p.DOI != "" {
		fmt.Printf("DOI:       %s\n", p.DOI)
	}
	if p.PDFURL != "" {
		fmt.Printf("PDF:       %s\n", p.PDFURL)
	}
	fmt.Printf("Collected: %s via %s\n", p.CollectedAt.Local().Format("2006-01-02 15:04"), p.SearchEngine)

	if summary != "" {
		fmt.Println("\n" + summary)
	}
	return nil
}

func printPapers(cmd *cobra.Command, papers []library.Paper) error {
	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(papers)
	}

	if len(papers) == 0 {
		fmt.Println("No papers found.")
		return nil
	}
	for _, p := range papers {
		fmt.Println(p.Label())
	}
	fmt.Printf("\n%d papers\n", len(papers))
	return nil
}

func init() {
	papersListCmd.Flags().Bool("json", false, "output as JSON")
	papersSearchCmd.Flags().Bool("json", false, "output as JSON")
	papersSearchCmd.Flags().Int("limit", 0, "maximum results (0 = use default)")
	papersExportCmd.Flags().String("format", "yaml", "export format: yaml or json")

	papersCmd.AddCommand(papersSyncCmd)
	papersCmd.AddCommand(papersListCmd)
	papersCmd.AddCommand(papersSearchCmd)
	papersCmd.AddCommand(papersExportCmd)
	papersCmd.AddCommand(papersShowCmd)

	rootCmd.AddCommand(papersCmd)
}
