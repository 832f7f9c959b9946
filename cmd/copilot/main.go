// Command copilot answers natural-language retail analytics questions by
// combining generated SQL over the Northwind SQLite database with retrieval
// from the policy/reference document corpus.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Aelhfnawi/Retail-Analytics-Copilot/internal/agent"
	"github.com/Aelhfnawi/Retail-Analytics-Copilot/internal/agent/prompts"
	"github.com/Aelhfnawi/Retail-Analytics-Copilot/internal/batch"
	"github.com/Aelhfnawi/Retail-Analytics-Copilot/internal/llm"
	"github.com/Aelhfnawi/Retail-Analytics-Copilot/internal/logger"
	"github.com/Aelhfnawi/Retail-Analytics-Copilot/internal/metrics"
	"github.com/Aelhfnawi/Retail-Analytics-Copilot/internal/retrieval"
	"github.com/Aelhfnawi/Retail-Analytics-Copilot/internal/store"
)

const (
	defaultDBPath      = "data/northwind.sqlite"
	defaultDocsDir     = "docs"
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "phi3.5:3.8b-mini-instruct-q4_K_M"
	defaultMaxTokens   = 1000
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "copilot",
		Short: "Hybrid SQL + document-retrieval question answering over the retail database.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var verbose bool
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "set debug logging level")

	rootCmd.AddCommand(newBatchCmd(&verbose))

	return rootCmd.Execute()
}

func newBatchCmd(verbose *bool) *cobra.Command {
	var inPath, outPath string

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Answer a JSONL batch of questions and write JSONL answers.",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.New(*verbose)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return runBatch(ctx, log, inPath, outPath)
		},
	}

	cmd.Flags().StringVar(&inPath, "batch", "", "path to input JSONL question file")
	cmd.Flags().StringVar(&outPath, "out", "", "path to output JSONL answer file")
	_ = cmd.MarkFlagRequired("batch")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func runBatch(ctx context.Context, log *slog.Logger, inPath, outPath string) error {
	dbPath := envOr("COPILOT_DB_PATH", defaultDBPath)
	docsDir := envOr("COPILOT_DOCS_DIR", defaultDocsDir)

	db, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	index, err := retrieval.NewIndex(docsDir)
	if err != nil {
		return err
	}
	log.Info("loaded document index", "dir", docsDir, "chunks", index.Len())

	p, err := prompts.Load()
	if err != nil {
		return err
	}

	engine, err := agent.New(&agent.Config{
		Logger:    log,
		LLM:       newLLMClient(log),
		DB:        db,
		Retriever: index,
		Prompts:   p,
	})
	if err != nil {
		return err
	}

	if addr := os.Getenv("COPILOT_METRICS_ADDR"); addr != "" {
		go serveMetrics(log, addr)
	}

	return batch.Process(ctx, log, engine, inPath, outPath)
}

// newLLMClient picks the oracle backend: Anthropic when an API key is
// configured, otherwise a local Ollama server.
func newLLMClient(log *slog.Logger) llm.Client {
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		model := anthropic.Model(envOr("COPILOT_MODEL", string(anthropic.ModelClaudeSonnet4_5_20250929)))
		log.Info("using anthropic backend", "model", model)
		return llm.NewAnthropicClient(apiKey, model, defaultMaxTokens, log)
	}

	baseURL := envOr("OLLAMA_URL", defaultOllamaURL)
	model := envOr("COPILOT_MODEL", defaultOllamaModel)
	log.Info("using ollama backend", "url", baseURL, "model", model)
	return llm.NewOllamaClient(baseURL, model, defaultMaxTokens, log)
}

func serveMetrics(log *slog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	log.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("metrics server failed", "error", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
