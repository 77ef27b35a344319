package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dgallion1/docqa/internal/store/sqlite"
	"github.com/spf13/cobra"
)

var (
	historyDate         string
	historyConversation string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the chat transcript",
	Long: `Lists every conversation, only those active on one day with --date, or the
whole transcript of one conversation with --conversation.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyDate, "date", "", "day to list, YYYY-MM-DD")
	historyCmd.Flags().StringVarP(&historyConversation, "conversation", "c", "", "show one conversation")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	log := newLogger(os.Stderr)
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	if historyConversation != "" {
		msgs, err := store.ListMessages(ctx, historyConversation)
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			cmd.Println("No messages found.")
			return nil
		}
		printConversation(cmd, sqlite.Conversation{ID: historyConversation, Messages: msgs})
		return nil
	}

	if historyDate == "" {
		convs, err := store.ListConversations(ctx)
		if err != nil {
			return err
		}
		if len(convs) == 0 {
			cmd.Println("No conversations yet.")
			return nil
		}
		for _, c := range convs {
			printConversation(cmd, c)
		}
		return nil
	}

	day, err := time.ParseInLocation(time.DateOnly, historyDate, time.Local)
	if err != nil {
		return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
	}
	convs, err := store.ConversationsOn(ctx, day)
	if err != nil {
		return err
	}
	if len(convs) == 0 {
		cmd.Printf("No conversations on %s.\n", historyDate)
		return nil
	}
	for _, c := range convs {
		printConversation(cmd, c)
	}
	return nil
}

func printConversation(cmd *cobra.Command, c sqlite.Conversation) {
	cmd.Printf("== %s\n", c.ID)
	for _, m := range c.Messages {
		who := "user"
		if m.IsBot {
			who = "bot"
		}
		cmd.Printf("  [%s] %s: %s\n", m.Timestamp.Format(time.TimeOnly), who, m.Content)
	}
	cmd.Println()
}
