// Package llm wraps AWS Bedrock for the reasoning calls the pipeline stages
// fan out. Stage code depends on the Invoker interface so tests can count
// and stub invocations.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/svap-labs/svap/internal/config"
)

const anthropicVersion = "bedrock-2023-05-31"

// Invoker is the reasoning boundary every stage depends on.
type Invoker interface {
	Invoke(ctx context.Context, prompt, system string) (string, error)
	InvokeJSON(ctx context.Context, prompt, system string, out any) error
}

// Client calls Anthropic models through the Bedrock runtime.
type Client struct {
	bedrock *bedrockruntime.Client
	cfg     config.BedrockConfig
	logger  *slog.Logger
}

func NewClient(ctx context.Context, cfg config.BedrockConfig, logger *slog.Logger) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Client{
		bedrock: bedrockruntime.NewFromConfig(awsCfg),
		cfg:     cfg,
		logger:  logger,
	}, nil
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type invokeRequest struct {
	AnthropicVersion string         `json:"anthropic_version"`
	MaxTokens        int            `json:"max_tokens"`
	Temperature      float64        `json:"temperature"`
	Messages         []message      `json:"messages"`
	System           []contentBlock `json:"system,omitempty"`
}

type invokeResponse struct {
	Content []contentBlock `json:"content"`
}

// Invoke sends one prompt and returns the joined text blocks of the reply.
// Retries with exponential backoff; the last error wins after the final
// attempt. Per-call deadlines come from ctx.
func (c *Client) Invoke(ctx context.Context, prompt, system string) (string, error) {
	req := invokeRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        c.cfg.MaxTokens,
		Temperature:      c.cfg.Temperature,
		Messages: []message{
			{Role: "user", Content: []contentBlock{{Type: "text", Text: prompt}}},
		},
	}
	if system != "" {
		req.System = []contentBlock{{Type: "text", Text: system}}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal invoke request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			wait := c.cfg.RetryBaseDelay * time.Duration(1<<(attempt-1))
			c.logger.Warn("reasoning call failed, retrying",
				"attempt", attempt, "wait", wait, "error", lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(wait):
			}
		}

		text, err := c.invokeOnce(ctx, body)
		if err == nil {
			return text, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("reasoning call failed after %d attempts: %w", c.cfg.RetryAttempts, lastErr)
}

func (c *Client) invokeOnce(ctx context.Context, body []byte) (string, error) {
	contentType := "application/json"
	resp, err := c.bedrock.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &c.cfg.ModelID,
		ContentType: &contentType,
		Accept:      &contentType,
		Body:        body,
	})
	if err != nil {
		return "", fmt.Errorf("invoke model: %w", err)
	}

	var result invokeResponse
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return "", fmt.Errorf("unmarshal invoke response: %w", err)
	}

	var parts []string
	for _, block := range result.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// InvokeJSON invokes and unmarshals the structured reply into out, tolerating
// markdown fences and preamble around the JSON payload.
func (c *Client) InvokeJSON(ctx context.Context, prompt, system string, out any) error {
	raw, err := c.Invoke(ctx, prompt, system)
	if err != nil {
		return err
	}
	return ParseJSONResponse(raw, out)
}

// ParseJSONResponse extracts a JSON object or array from model output.
// Models wrap JSON in code fences or lead with prose often enough that
// extraction has to be forgiving.
func ParseJSONResponse(text string, out any) error {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	if err := json.Unmarshal([]byte(cleaned), out); err == nil {
		return nil
	}

	for _, pair := range [][2]string{{"{", "}"}, {"[", "]"}} {
		start := strings.Index(cleaned, pair[0])
		end := strings.LastIndex(cleaned, pair[1])
		if start != -1 && end > start {
			if err := json.Unmarshal([]byte(cleaned[start:end+1]), out); err == nil {
				return nil
			}
		}
	}

	snippet := text
	if len(snippet) > 500 {
		snippet = snippet[:500]
	}
	return fmt.Errorf("could not parse JSON from model response: %q", snippet)
}

// ModelID returns the Bedrock model identifier in use.
func (c *Client) ModelID() string { return c.cfg.ModelID }
