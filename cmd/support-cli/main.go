// Package main provides the support engine command line interface.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/diyoloji/support-engine/internal/config"
	"github.com/diyoloji/support-engine/internal/ingest"
	"github.com/diyoloji/support-engine/internal/observability"
	"github.com/diyoloji/support-engine/pkg/engine"
)

var (
	cfgPath   string
	sessionID string
	forceTool string
)

func main() {
	root := &cobra.Command{
		Use:   "support-cli",
		Short: "Turkish telecom support assistant",
		Long:  "Query the support knowledge base, ingest crawled documents, and manage conversation sessions.",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config file")

	askCmd := &cobra.Command{
		Use:   "ask [query]",
		Short: "Ask a support question",
		Args:  cobra.ExactArgs(1),
		RunE:  runAsk,
	}
	askCmd.Flags().StringVar(&sessionID, "session", "", "session id for conversation history")
	askCmd.Flags().StringVar(&forceTool, "tool", "", "pin the category filter (billing, roaming, package, coverage, app)")

	ingestCmd := &cobra.Command{
		Use:   "ingest [path]",
		Short: "Ingest crawled documents from a JSON/JSONL file or directory",
		Args:  cobra.ExactArgs(1),
		RunE:  runIngest,
	}

	clearCmd := &cobra.Command{
		Use:   "clear-session [session-id]",
		Short: "Delete one session's conversation history",
		Args:  cobra.ExactArgs(1),
		RunE:  runClearSession,
	}

	root.AddCommand(askCmd, ingestCmd, clearCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func buildEngine(ctx context.Context) (*engine.Engine, func(), error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:       "warn",
		Format:      "console",
		ServiceName: "support-cli",
	})
	return engine.Build(ctx, cfg, logger)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	eng, cleanup, err := buildEngine(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	spin := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	spin.Suffix = " Yanıt hazırlanıyor..."
	spin.Start()
	out, err := eng.Ask(ctx, args[0], forceTool, sessionID)
	spin.Stop()
	if err != nil {
		return err
	}

	bold := color.New(color.Bold)
	cyan := color.New(color.FgCyan)
	faint := color.New(color.Faint)

	bold.Println(out.Answer)
	fmt.Println()
	cyan.Printf("kategori: %s | niyet: %s | duygu: %s\n", out.Tool, out.Intent, out.Sentiment)
	if len(out.Citations) > 0 {
		faint.Println("kaynaklar:")
		for _, url := range out.Citations {
			faint.Printf("  - %s\n", url)
		}
	}
	return nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	records, err := ingest.ReadRecords(args[0])
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("no records found at %s", args[0])
	}

	eng, cleanup, err := buildEngine(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	bar := progressbar.NewOptions(len(records),
		progressbar.OptionSetDescription("embedding"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	result, err := eng.Ingest(ctx, records, func(done, total int) {
		_ = bar.Set(done)
	})
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("ingested %d records as %d chunks (%d skipped)\n", result.Records, result.Chunks, result.Skipped)
	for cat, count := range result.PerCategory {
		fmt.Printf("  %-10s %d\n", cat, count)
	}
	return nil
}

func runClearSession(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	eng, cleanup, err := buildEngine(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	deleted, err := eng.ClearSession(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("deleted %d turns\n", deleted)
	return nil
}
