package main

import (
	"github.com/spf13/cobra"
)

const timeLayout = "2006-01-02 15:04:05"

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recent sessions",
	Args:  cobra.NoArgs,
	RunE:  runSessions,
}

var showCmd = &cobra.Command{
	Use:   "show [session-id]",
	Short: "Show a session's status and summary",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var historyCmd = &cobra.Command{
	Use:   "history [session-id]",
	Short: "Print a session's conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

var clearCmd = &cobra.Command{
	Use:   "clear [session-id]",
	Short: "Clear a session's conversation, keeping its document",
	Args:  cobra.ExactArgs(1),
	RunE:  runClear,
}

var deleteCmd = &cobra.Command{
	Use:   "delete [session-id]",
	Short: "Delete a session with its document and history",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var sessionsLimit int

func init() {
	sessionsCmd.Flags().IntVarP(&sessionsLimit, "limit", "n", 0, "Maximum sessions to list")

	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(deleteCmd)
}

func runSessions(cmd *cobra.Command, _ []string) error {
	sessions, err := service.ListSessions(cmd.Context(), sessionsLimit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		cmd.Println("No sessions found")
		return nil
	}

	for _, s := range sessions {
		cmd.Printf("%s  %s  %-8s %s\n", s.SessionID, s.CreatedAt.Format(timeLayout), s.Status, s.Title)
	}
	cmd.Printf("\nTotal: %d sessions\n", len(sessions))
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	s, err := service.GetSession(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	cmd.Printf("Session: %s\n\n", s.SessionID)
	cmd.Printf("  Title:   %s\n", s.Title)
	cmd.Printf("  Status:  %s\n", s.Status)
	cmd.Printf("  State:   %s\n", s.State)
	if s.Source != "" {
		cmd.Printf("  Source:  %s (%s)\n", s.Source, s.SourceKind)
	}
	if s.Pages > 0 {
		cmd.Printf("  Pages:   %d\n", s.Pages)
	}
	cmd.Printf("  Chunks:  %d\n", s.Chunks)
	cmd.Printf("  Created: %s\n", s.CreatedAt.Format(timeLayout))
	if s.LastError != "" {
		cmd.Printf("  Error:   %s\n", s.LastError)
	}
	if s.Summary != "" {
		cmd.Printf("\n%s\n", s.Summary)
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	turns, err := service.GetHistory(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if len(turns) == 0 {
		cmd.Println("No history")
		return nil
	}
	for _, t := range turns {
		cmd.Printf("[%d] %s: %s\n", t.TurnIndex, t.Role, t.Text)
	}
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	n, err := service.ClearHistory(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	cmd.Printf("Cleared %d turns\n", n)
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	if err := service.DeleteSession(cmd.Context(), args[0]); err != nil {
		return err
	}
	cmd.Printf("Deleted session %s\n", args[0])
	return nil
}
