package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"papergraph/backend/internal/batch"
)

var (
	progressFile string
	progressJSON bool
)

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Summarize a progress file",
	Args:  cobra.NoArgs,
	RunE:  runProgressCmd,
}

func init() {
	progressCmd.Flags().StringVar(&progressFile, "progress", "", "Progress file (default PROGRESS_PATH or papergraph-progress.json)")
	progressCmd.Flags().BoolVar(&progressJSON, "json", false, "Print the summary as JSON")
	rootCmd.AddCommand(progressCmd)
}

func runProgressCmd(cmd *cobra.Command, args []string) error {
	path := progressFile
	if path == "" {
		path = os.Getenv("PROGRESS_PATH")
	}
	if path == "" {
		path = "papergraph-progress.json"
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("progress file: %w", err)
	}

	p, err := batch.LoadProgress(path)
	if err != nil {
		return err
	}
	summary := p.Summary(nil)

	if progressJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	summary.Print(cmd.OutOrStdout())
	return nil
}
