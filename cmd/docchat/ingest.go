package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"docchat/internal/app"
	"docchat/internal/extract"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a PDF or URL into a session",
	Long: `Extracts, chunks and summarizes the document. Without --session a new
session is created; with it the session's document and history are replaced.`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

var (
	ingestFile    string
	ingestURL     string
	ingestSession string
	ingestAsync   bool
)

func init() {
	ingestCmd.Flags().StringVarP(&ingestFile, "file", "f", "", "PDF file to ingest")
	ingestCmd.Flags().StringVarP(&ingestURL, "url", "u", "", "Web page to ingest")
	ingestCmd.Flags().StringVarP(&ingestSession, "session", "s", "", "Session to re-ingest into")
	ingestCmd.Flags().BoolVar(&ingestAsync, "async", false, "Queue the ingestion for the server's worker")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	var src extract.Source
	switch {
	case ingestFile != "" && ingestURL != "":
		return errors.New("--file and --url cannot be combined")
	case ingestFile != "":
		data, err := os.ReadFile(ingestFile)
		if err != nil {
			return fmt.Errorf("read pdf failed: %w", err)
		}
		src = extract.PDFSource{Name: filepath.Base(ingestFile), Data: data}
	case ingestURL != "":
		src = extract.URLSource{URL: ingestURL}
	default:
		return errors.New("one of --file or --url is required")
	}

	res, err := service.Ingest(cmd.Context(), app.IngestInput{
		Source:    src,
		SessionID: ingestSession,
		Async:     ingestAsync,
	})
	if err != nil {
		return err
	}

	cmd.Printf("Session: %s\n", res.SessionID)
	cmd.Printf("  Status: %s\n", res.Status)
	if res.Title != "" {
		cmd.Printf("  Title:  %s\n", res.Title)
	}
	if res.Chunks > 0 {
		cmd.Printf("  Chunks: %d\n", res.Chunks)
	}
	if res.Summary != "" {
		cmd.Printf("\n%s\n", res.Summary)
	}
	return nil
}
