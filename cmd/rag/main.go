// Package main provides the rag command: an HTTP API server, an MCP
// server and one-shot ingest/query subcommands over the same pipeline.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/DavidOlmos03/rag-base/internal/config"
	"github.com/DavidOlmos03/rag-base/internal/mcpserver"
	"github.com/DavidOlmos03/rag-base/internal/pipeline"
	"github.com/DavidOlmos03/rag-base/internal/rag"
	"github.com/DavidOlmos03/rag-base/internal/server"
)

func main() {
	// Load .env if present (local development), ignore if missing.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := rootCmd(ctx).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd(ctx context.Context) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "rag",
		Short:         "Multi-tenant retrieval-augmented generation service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to TOML config file")

	root.AddCommand(serveCmd(ctx, &configPath))
	root.AddCommand(mcpCmd(ctx, &configPath))
	root.AddCommand(ingestCmd(ctx, &configPath))
	root.AddCommand(queryCmd(ctx, &configPath))
	return root
}

func buildFromFlags(ctx context.Context, configPath *string) (*app, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}
	return buildApp(ctx, cfg)
}

func serveCmd(ctx context.Context, configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(*cobra.Command, []string) error {
			a, err := buildFromFlags(ctx, configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := server.New(a.orch, a.health, a.logger)
			return srv.ListenAndServe(ctx, a.cfg.Server.Addr)
		},
	}
}

func mcpCmd(ctx context.Context, configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server on stdio",
		RunE: func(*cobra.Command, []string) error {
			a, err := buildFromFlags(ctx, configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			a.logger.Info("mcp server starting", "transport", "stdio")
			return mcpserver.New(a.orch).Run(ctx)
		},
	}
}

func ingestCmd(ctx context.Context, configPath *string) *cobra.Command {
	var tenant string

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Ingest documents for a tenant and wait for completion",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			a, err := buildFromFlags(ctx, configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, path := range args {
				raw, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}

				doc, err := a.orch.IngestSync(ctx, tenant, path, raw)
				if err != nil {
					return fmt.Errorf("ingest %s: %w", path, err)
				}
				fmt.Printf("ingested %s (document %s)\n", path, doc.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&tenant, "tenant", "t", "default", "tenant to ingest into")
	return cmd
}

func queryCmd(ctx context.Context, configPath *string) *cobra.Command {
	var (
		tenant    string
		topK      int
		provider  string
		model     string
		apiKey    string
		baseURL   string
		maxTokens int
	)

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Answer a question from a tenant's documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			a, err := buildFromFlags(ctx, configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			// A provider flag sets an ad-hoc active config for the run.
			if provider != "" {
				err := a.orch.SetGenerationConfig(ctx, rag.GenerationConfig{
					TenantID:  tenant,
					Provider:  provider,
					Model:     model,
					APIKey:    apiKey,
					BaseURL:   baseURL,
					MaxTokens: maxTokens,
					Active:    true,
				})
				if err != nil {
					return err
				}
			}

			result, err := a.orch.Query(ctx, tenant, args[0], pipeline.QueryOptions{
				TopK:      topK,
				MaxTokens: maxTokens,
			})
			if err != nil {
				return err
			}

			fmt.Println(result.Answer)
			if len(result.Contexts) > 0 {
				fmt.Println("\nSources:")
				for i, c := range result.Contexts {
					fmt.Printf("  [%d] document %s (score %.2f)\n", i+1, c.DocumentID, c.Score)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&tenant, "tenant", "t", "default", "tenant to query")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of fragments to retrieve")
	cmd.Flags().StringVar(&provider, "provider", "", "generation provider (openai, anthropic, ollama)")
	cmd.Flags().StringVar(&model, "model", "", "generation model")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "generation API key")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "generation base URL")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 1024, "generation token limit")
	return cmd
}
