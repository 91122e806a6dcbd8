package openai

import (
	"context"
	"errors"
	"testing"

	"convoflow/internal/config"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	embedErr  error
	chatErr   error
	lastModel string
	lastChat  openai.ChatCompletionRequest
	embedResp openai.EmbeddingResponse
}

func (f *fakeAPI) CreateEmbeddings(_ context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	req := conv.Convert()
	f.lastModel = string(req.Model)
	return f.embedResp, f.embedErr
}

func (f *fakeAPI) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.lastChat = req
	f.lastModel = req.Model
	if f.chatErr != nil {
		return openai.ChatCompletionResponse{}, f.chatErr
	}
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "ok"}}}}, nil
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name         string
		cfg          config.Config
		wantProvider string
		wantFallback bool
		wantErr      bool
	}{
		{
			name:         "azure with openai fallback",
			cfg:          config.Config{AzureOpenAIEndpoint: "https://x.openai.azure.com", AzureOpenAIKey: "k", OpenAIKey: "sk", AzureOpenAIGPTDeployment: "gpt"},
			wantProvider: "Azure OpenAI",
			wantFallback: true,
		},
		{
			name:         "openai only",
			cfg:          config.Config{OpenAIKey: "sk"},
			wantProvider: "OpenAI",
		},
		{
			name:    "nothing configured",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(&tt.cfg, zerolog.Nop())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantProvider, c.GetProviderName())
			assert.Equal(t, tt.wantFallback, c.fallback != nil)
		})
	}
}

func TestCreateEmbeddings_OrderByIndex(t *testing.T) {
	primary := &fakeAPI{embedResp: openai.EmbeddingResponse{Data: []openai.Embedding{
		{Index: 1, Embedding: []float32{2}},
		{Index: 0, Embedding: []float32{1}},
	}}}
	c := &Client{primary: primary, embedModel: "emb", logger: zerolog.Nop()}

	got, err := c.CreateEmbeddings(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {2}}, got)
}

func TestCreateEmbeddings_Fallback(t *testing.T) {
	primary := &fakeAPI{embedErr: errors.New("azure down")}
	fallback := &fakeAPI{embedResp: openai.EmbeddingResponse{Data: []openai.Embedding{{Index: 0, Embedding: []float32{1}}}}}
	c := &Client{primary: primary, fallback: fallback, embedModel: "azure-deploy", logger: zerolog.Nop()}

	got, err := c.CreateEmbeddings(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, string(openai.SmallEmbedding3), fallback.lastModel)

	fallback.embedErr = errors.New("openai down")
	_, err = c.CreateEmbeddings(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "both providers failed")
}

func TestCreateJSONCompletion(t *testing.T) {
	primary := &fakeAPI{}
	c := &Client{primary: primary, gptModel: "gpt-deploy", providerName: "Azure OpenAI", logger: zerolog.Nop()}

	resp, err := c.CreateJSONCompletion(context.Background(), []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: "x"}}, 50)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Choices[0].Message.Content)
	assert.Equal(t, "gpt-deploy", primary.lastModel)
	require.NotNil(t, primary.lastChat.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, primary.lastChat.ResponseFormat.Type)
}

func TestCreateChatCompletion_FallbackModel(t *testing.T) {
	primary := &fakeAPI{chatErr: errors.New("429")}
	fallback := &fakeAPI{}
	c := &Client{primary: primary, fallback: fallback, gptModel: "gpt-deploy", logger: zerolog.Nop()}

	_, err := c.CreateChatCompletion(context.Background(), nil, 10, 0.2)
	require.NoError(t, err)
	assert.Equal(t, string(openai.GPT4oMini), fallback.lastModel)
}
