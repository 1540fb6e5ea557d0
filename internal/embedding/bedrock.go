// Package embedding wraps AWS Bedrock embedding models for semantic chunk
// retrieval. Embeddings are optional: an empty embed model ID disables the
// whole path and retrieval falls back to keyword scoring.
package embedding

import (
	"context"
	"encoding/json"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"golang.org/x/sync/errgroup"

	"github.com/svap-labs/svap/internal/config"
)

const (
	maxBatchSize       = 96
	bedrockConcurrency = 8
)

// Embedder turns texts into vectors. Satisfied by *Client; tests stub it.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string, inputType string) ([][]float32, error)
}

// Client calls a Bedrock embedding model (Cohere Embed request shape).
type Client struct {
	bedrock *bedrockruntime.Client
	modelID string
}

func NewClient(ctx context.Context, cfg config.BedrockConfig) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Client{
		bedrock: bedrockruntime.NewFromConfig(awsCfg),
		modelID: cfg.EmbedModelID,
	}, nil
}

type embedRequest struct {
	Texts     []string `json:"texts"`
	InputType string   `json:"input_type"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// EmbedBatch embeds texts in sub-batches of maxBatchSize, up to
// bedrockConcurrency requests in flight. Each goroutine writes into its own
// pre-allocated slot so no locking is needed.
func (c *Client) EmbedBatch(ctx context.Context, texts []string, inputType string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	type span struct{ start, end int }
	var spans []span
	for i := 0; i < len(texts); i += maxBatchSize {
		spans = append(spans, span{i, min(i+maxBatchSize, len(texts))})
	}

	batchResults := make([][][]float32, len(spans))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(bedrockConcurrency)
	for idx, s := range spans {
		eg.Go(func() error {
			embeddings, err := c.embedSingle(egCtx, texts[s.start:s.end], inputType)
			if err != nil {
				return fmt.Errorf("batch %d: %w", idx, err)
			}
			batchResults[idx] = embeddings
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	all := make([][]float32, 0, len(texts))
	for _, r := range batchResults {
		all = append(all, r...)
	}
	return all, nil
}

func (c *Client) embedSingle(ctx context.Context, texts []string, inputType string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Texts: texts, InputType: inputType})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	contentType := "application/json"
	resp, err := c.bedrock.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &c.modelID,
		ContentType: &contentType,
		Body:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("invoke embed model: %w", err)
	}

	var result embedResponse
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return nil, fmt.Errorf("unmarshal embed response: %w", err)
	}
	return result.Embeddings, nil
}

// ModelID returns the Bedrock embedding model identifier.
func (c *Client) ModelID() string { return c.modelID }
