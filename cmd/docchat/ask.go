package main

import (
	"strings"

	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask [session-id] [question]",
	Short: "Ask a question about a session's document",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	res, err := service.Ask(cmd.Context(), args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	cmd.Println(res.Answer)
	return nil
}
