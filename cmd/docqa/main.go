// Command docqa ingests documents and answers questions about them.
package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/dgallion1/docqa/internal/config"
	"github.com/spf13/cobra"
)

var (
	configPath string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "docqa",
	Short: "Document question answering over PDFs, DOCX and text files",
	Long: `docqa indexes documents into a type-aware store of text, table, chart and
formula chunks, and answers questions about them with cited sources.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "TOML config file (overrides DOCQA_CONFIG)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig applies --config before reading the environment.
func loadConfig() (config.Config, error) {
	if configPath != "" {
		os.Setenv("DOCQA_CONFIG", configPath)
	}
	return config.Load()
}

func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}
