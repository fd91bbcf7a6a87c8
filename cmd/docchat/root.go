package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"docchat/internal/app"
	"docchat/internal/bootstrap"
	"docchat/internal/config"
	"docchat/internal/model"
)

// sessionService is what the session commands drive. It is filled in by
// the root command before any of them run.
type sessionService interface {
	Ingest(ctx context.Context, in app.IngestInput) (*app.IngestResult, error)
	Ask(ctx context.Context, sessionID, question string) (*app.AskResult, error)
	ListSessions(ctx context.Context, limit int) ([]app.SessionInfo, error)
	GetSession(ctx context.Context, sessionID string) (*app.SessionDetail, error)
	GetHistory(ctx context.Context, sessionID string) ([]model.Turn, error)
	ClearHistory(ctx context.Context, sessionID string) (int64, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// annotationStandalone marks commands that only need the config.
const annotationStandalone = "standalone"

var (
	configPath string

	cfg      *config.Config
	service  sessionService
	instance *bootstrap.App
)

var rootCmd = &cobra.Command{
	Use:               "docchat",
	Short:             "Chat with a PDF or web page",
	Long:              `Ingest a document into a session, then ask questions about it.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(*cobra.Command, []string) error {
		return teardown()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the TOML config file")
}

func Execute() error {
	rootCmd.SetOut(os.Stdout)
	err := rootCmd.Execute()
	if err != nil {
		_ = teardown()
	}
	return err
}

func setup(cmd *cobra.Command, _ []string) error {
	if configPath != "" {
		if err := os.Setenv("CONFIG_FILE", configPath); err != nil {
			return err
		}
	}
	if cfg == nil {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if cmd.Annotations[annotationStandalone] != "" || service != nil {
		return nil
	}

	a, err := bootstrap.New(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}
	instance = a
	service = a.Service
	return nil
}

func teardown() error {
	if instance == nil {
		return nil
	}
	err := instance.Close()
	instance = nil
	service = nil
	return err
}
