// Package main provides the papergraph CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

// Exit codes
const (
	ExitOK          = 0
	ExitError       = 1
	ExitConfigError = 2
	ExitStoreError  = 3
)

// exitError carries the process exit code up to main.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if e, ok := err.(*exitError); ok {
		return e.code
	}
	return ExitError
}

var rootCmd = &cobra.Command{
	Use:   "papergraph",
	Short: "Extract a knowledge graph from research papers into Neo4j",
	Long: `papergraph reads a corpus of papers (PDF, text or HTML), extracts
metadata, theories, methods, phenomena and statements with a language model,
and writes them to a Neo4j graph.

Every stage falls back to deterministic rules when the model is unavailable,
so a batch always completes. Progress is saved after each paper and a run can
be resumed.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Version = Version
}
