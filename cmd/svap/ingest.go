package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/svap-labs/svap/internal/embedding"
	"github.com/svap-labs/svap/internal/rag"
)

var (
	ingestPath string
	ingestType string
)

var ingestCommand = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest documents into the retrieval store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := newCLIEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		ingester := rag.NewIngester(env.store, env.logger)

		info, err := os.Stat(ingestPath)
		if err != nil {
			return err
		}
		if info.IsDir() {
			counts, err := ingester.IngestDirectory(ctx, ingestPath, ingestType)
			if err != nil {
				return err
			}
			total := 0
			for name, chunks := range counts {
				fmt.Printf("  %s: %d chunks\n", name, chunks)
				total += chunks
			}
			fmt.Printf("Ingested %d files, %d chunks.\n", len(counts), total)
		} else {
			docID, chunks, err := ingester.IngestFile(ctx, ingestPath, ingestType)
			if err != nil {
				return err
			}
			fmt.Printf("Ingested %s (%s): %d chunks.\n", ingestPath, docID, chunks)
		}

		// Backfill embeddings when a model is configured.
		if env.cfg.Bedrock.EmbedModelID != "" {
			embedClient, err := embedding.NewClient(ctx, env.cfg.Bedrock)
			if err != nil {
				env.logger.Warn("embedder init failed, chunks left for later embedding", "error", err)
				return nil
			}
			retriever := rag.NewRetriever(env.store, embedClient, env.logger)
			n, err := retriever.EmbedPending(ctx, 500)
			if err != nil {
				return err
			}
			fmt.Printf("Embedded %d chunks.\n", n)
		}
		return nil
	},
}

func init() {
	ingestCommand.Flags().StringVar(&ingestPath, "path", "", "File or directory to ingest")
	ingestCommand.Flags().StringVar(&ingestType, "type", "other",
		"Document type: enforcement, policy, guidance, report, other")
	_ = ingestCommand.MarkFlagRequired("path")
	rootCmd.AddCommand(ingestCommand)
}
