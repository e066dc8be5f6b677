package main

import (
	"context"

	"github.com/spf13/cobra"

	"papergraph/backend/pkg/logger"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Create the Neo4j constraints and indexes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx := context.Background()
		store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close(ctx)

		if err := store.EnsureSchema(ctx); err != nil {
			return withCode(ExitStoreError, err)
		}
		cmd.Println("schema is up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
