package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dgallion1/docqa/internal/qa"
	"github.com/spf13/cobra"
)

var (
	askConversation string
	askJSON         bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question about the indexed documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askConversation, "conversation", "c", "", "continue an existing conversation")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the full response as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
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

	resp, err := a.qa.Ask(ctx, strings.Join(args, " "), askConversation)
	if err != nil {
		return err
	}

	if askJSON {
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal response: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	printAnswer(cmd, resp)
	return nil
}

func printAnswer(cmd *cobra.Command, resp qa.Response) {
	cmd.Println(resp.Answer)
	cmd.Println()

	if resp.Table != nil {
		cmd.Println(strings.Join(resp.Table.Columns, " | "))
		for _, row := range resp.Table.Data {
			cells := make([]string, len(resp.Table.Columns))
			for i, col := range resp.Table.Columns {
				cells[i] = row[col]
			}
			cmd.Println(strings.Join(cells, " | "))
		}
		cmd.Println()
	}
	if resp.Formula != "" {
		cmd.Printf("Formula: %s\n", resp.Formula)
	}
	if resp.ImagePath != "" {
		cmd.Printf("Chart: %s\n", resp.ImagePath)
	}

	var sources []string
	sources = append(sources, resp.Sources.Tables...)
	sources = append(sources, resp.Sources.Charts...)
	sources = append(sources, resp.Sources.Formulas...)
	if len(sources) > 0 {
		cmd.Printf("Sources: %s\n", strings.Join(sources, "; "))
	}
	cmd.Printf("Conversation: %s\n", resp.ConversationID)
}
