// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-agent/internal/logging"
	"github.com/pdiddy/paper-agent/internal/store"
)

var submitCmd = &cobra.Command{
	Use:   "submit [file]",
	Short: "Queue a new batch of paper references",
	Long: `Submit stores a new batch for processing. The input text is read from
the given file, from --text, or from stdin when neither is provided. The
service ('paper-agent serve') picks the batch up on its next poll.

The input can be anything that mentions papers: a bibliography, a reading
list, pasted prose with links. The format stage extracts the references.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSubmit,
}

func runSubmit(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	text, _ := cmd.Flags().GetString("text")
	if text == "" {
		var data []byte
		var err error
		if len(args) == 1 {
			data, err = os.ReadFile(args[0])
		} else {
			data, err = io.ReadAll(os.Stdin)
		}
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
		text = string(data)
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("input text is empty")
	}

	title, _ := cmd.Flags().GetString("title")
	description, _ := cmd.Flags().GetString("description")

	s, err := store.Open(cfg.Storage.Dir, logging.New(cfg.Logging))
	if err != nil {
		return err
	}
	defer s.Close()

	eng := newOfflineEngine(s)
	batch, err := eng.Submit(title, text, description)
	if err != nil {
		return err
	}

	fmt.Printf("Submitted batch %s (%q)\n", batch.ID, batch.Title)
	fmt.Println("Run 'paper-agent serve' to process it, or check progress with 'paper-agent tasks show", batch.ID+"'")
	return nil
}

func init() {
	submitCmd.Flags().String("text", "", "input text (instead of a file or stdin)")
	submitCmd.Flags().String("title", "", "batch title (default: first line of the input)")
	submitCmd.Flags().String("description", "", "free-form batch description")

	rootCmd.AddCommand(submitCmd)
}
