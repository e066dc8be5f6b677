package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"papergraph/backend/internal/batch"
	"papergraph/backend/internal/graph"
	"papergraph/backend/internal/status"
	"papergraph/backend/pkg/logger"
)

var (
	runWorkers    int
	runResume     bool
	runNoResume   bool
	runProgress   string
	runDryRun     bool
	runNoModel    bool
	runStatusAddr string
)

var runCmd = &cobra.Command{
	Use:   "run <corpus>",
	Short: "Extract and ingest every paper under a directory",
	Long: `Run discovers the supported files under the corpus directory and
processes them on a bounded worker pool. Per-paper failures are recorded in the
progress file and never stop the batch.

With --dry-run the graph is kept in memory and nothing is written to Neo4j.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "Number of papers processed concurrently (default WORKERS)")
	runCmd.Flags().BoolVar(&runResume, "resume", true, "Skip papers that already succeeded in the progress file")
	runCmd.Flags().BoolVar(&runNoResume, "no-resume", false, "Start a fresh progress file and process every paper")
	runCmd.MarkFlagsMutuallyExclusive("resume", "no-resume")
	runCmd.Flags().StringVar(&runProgress, "progress", "", "Progress file (default PROGRESS_PATH)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Write to an in-memory graph instead of Neo4j")
	runCmd.Flags().BoolVar(&runNoModel, "no-model", false, "Run every stage on its deterministic rules")
	runCmd.Flags().StringVar(&runStatusAddr, "status-addr", "", "Serve /health and /progress on this address while running")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store graph.Store
	var memory *graph.MemoryStore
	if runDryRun {
		memory = graph.NewMemoryStore()
		store = memory
	} else {
		neo, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer neo.Close(context.Background())
		if err := neo.EnsureSchema(ctx); err != nil {
			return withCode(ExitStoreError, err)
		}
		store = neo
	}

	p, err := buildPipeline(ctx, cfg, store, runNoModel)
	if err != nil {
		return err
	}
	defer p.Close()

	workers := cfg.Workers
	if runWorkers > 0 {
		workers = runWorkers
	}
	progressPath := cfg.ProgressPath
	if runProgress != "" {
		progressPath = runProgress
	}

	resume := runResume && !runNoResume

	driver := batch.New(batch.Config{
		Workers:      workers,
		ProgressPath: progressPath,
		Resume:       resume,
	}, p.orchestrator, p.ingester)

	if runStatusAddr != "" {
		srv := status.New(runStatusAddr, driver, cfg.IsProduction())
		srv.Start()
		defer srv.Shutdown()
	}

	log.Info("starting batch",
		zap.String("corpus", args[0]),
		zap.Int("workers", workers),
		zap.String("progress", progressPath),
		zap.Bool("resume", resume),
		zap.Bool("dry_run", runDryRun),
	)

	summary, err := driver.Run(ctx, args[0])
	if err != nil {
		return err
	}
	summary.Print(cmd.OutOrStdout())

	if memory != nil {
		st := memory.Stats()
		cmd.Printf("in-memory graph: %d nodes, %d edges\n", st.Nodes, st.Edges)
	}
	return nil
}
