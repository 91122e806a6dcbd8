// Package openai provides a unified client for OpenAI API access
// with support for both Azure OpenAI (primary) and OpenAI platform (fallback)
package openai

import (
	"context"
	"fmt"

	"convoflow/internal/config"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

// api is the subset of *openai.Client this package calls
type api interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client wraps OpenAI client with Azure OpenAI support and fallback capability
type Client struct {
	primary      api
	fallback     api
	useAzure     bool
	gptModel     string
	embedModel   openai.EmbeddingModel
	dimensions   int
	providerName string
	logger       zerolog.Logger
}

// NewClient creates a new OpenAI client with Azure as primary and OpenAI as fallback
func NewClient(cfg *config.Config, logger zerolog.Logger) (*Client, error) {
	client := &Client{
		dimensions: cfg.EmbeddingDimensions,
		logger:     logger.With().Str("component", "openai_client").Logger(),
	}

	// Try Azure OpenAI first (primary)
	if cfg.UseAzureOpenAI() {
		azureConfig := openai.DefaultAzureConfig(cfg.AzureOpenAIKey, cfg.AzureOpenAIEndpoint)
		client.primary = openai.NewClientWithConfig(azureConfig)
		client.useAzure = true
		client.gptModel = cfg.AzureOpenAIGPTDeployment
		client.embedModel = openai.EmbeddingModel(cfg.AzureOpenAIEmbeddingDeployment)
		client.providerName = "Azure OpenAI"
	}

	// Setup OpenAI as fallback (or primary if Azure not configured)
	if cfg.HasOpenAIFallback() {
		client.fallback = openai.NewClient(cfg.OpenAIKey)

		if !client.useAzure {
			client.primary = client.fallback
			client.fallback = nil
			client.gptModel = string(openai.GPT4oMini)
			client.embedModel = openai.SmallEmbedding3
			client.providerName = "OpenAI"
		}
	}

	if client.primary == nil {
		return nil, fmt.Errorf("no OpenAI provider configured: set AZURE_OPENAI_ENDPOINT + AZURE_OPENAI_KEY or OPENAI_API_KEY")
	}

	client.logger.Info().
		Str("provider", client.providerName).
		Bool("fallback", client.fallback != nil).
		Msg("OpenAI client ready")
	return client, nil
}

// CreateEmbeddings generates embeddings for the given texts, in input order
func (c *Client) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input:      texts,
		Model:      c.embedModel,
		Dimensions: c.dimensions,
	}
	resp, err := c.primary.CreateEmbeddings(ctx, req)

	if err != nil && c.fallback != nil {
		c.logger.Warn().Err(err).Msg("Primary embeddings failed, trying fallback")
		req.Model = openai.SmallEmbedding3
		resp, err = c.fallback.CreateEmbeddings(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("both providers failed: %w", err)
		}
	} else if err != nil {
		return nil, err
	}

	// the API reports each vector's input position
	embeddings := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		idx := data.Index
		if idx < 0 || idx >= len(embeddings) || embeddings[idx] != nil {
			idx = i
		}
		embeddings[idx] = data.Embedding
	}

	return embeddings, nil
}

// CreateChatCompletion generates a chat completion
func (c *Client) CreateChatCompletion(ctx context.Context, messages []openai.ChatCompletionMessage, maxTokens int, temperature float32) (*openai.ChatCompletionResponse, error) {
	return c.complete(ctx, openai.ChatCompletionRequest{
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
}

// CreateJSONCompletion is CreateChatCompletion constrained to a single JSON object reply
func (c *Client) CreateJSONCompletion(ctx context.Context, messages []openai.ChatCompletionMessage, maxTokens int) (*openai.ChatCompletionResponse, error) {
	return c.complete(ctx, openai.ChatCompletionRequest{
		Messages:  messages,
		MaxTokens: maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
}

func (c *Client) complete(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
	req.Model = c.gptModel

	resp, err := c.primary.CreateChatCompletion(ctx, req)
	if err != nil && c.fallback != nil {
		// Try fallback provider with OpenAI model name
		c.logger.Warn().Err(err).Msg("Primary chat failed, trying fallback")
		req.Model = string(openai.GPT4oMini)
		resp, err = c.fallback.CreateChatCompletion(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("both providers failed: %w", err)
		}
	} else if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s returned no choices", c.providerName)
	}
	return &resp, nil
}

// GetProviderName returns the current primary provider name
func (c *Client) GetProviderName() string {
	return c.providerName
}
