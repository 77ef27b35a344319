package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dgallion1/docqa/internal/ingest"
	"github.com/spf13/cobra"
)

var ingestForce bool

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Index one document",
	Long: `Extracts text, tables, charts and formulas from a document and indexes them.
A document whose bytes were already indexed is skipped unless --force is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestForce, "force", false, "re-index even if the content was already ingested")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	log := newLogger(os.Stderr)
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.ingest.Ingest(ctx, args[0], ingest.Options{Force: ingestForce})
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
