package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"convoflow/internal/models"

	"github.com/sashabaranov/go-openai"
)

// Describer writes a one-sentence natural-language description of an event
type Describer interface {
	Describe(ctx context.Context, event models.RawEvent) (string, error)
}

// SentimentClassifier labels text
type SentimentClassifier interface {
	Classify(ctx context.Context, text string) (models.Sentiment, error)
}

// ChatCompleter is implemented by the shared OpenAI client
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, messages []openai.ChatCompletionMessage, maxTokens int, temperature float32) (*openai.ChatCompletionResponse, error)
	CreateJSONCompletion(ctx context.Context, messages []openai.ChatCompletionMessage, maxTokens int) (*openai.ChatCompletionResponse, error)
}

const describePrompt = `You summarize customer conversation events for a CRM timeline.
Given the JSON event, reply with one plain sentence (max 40 words) saying who did what, on which channel, and the gist of the message. No preamble.`

// LLMDescriber describes events with a chat model
type LLMDescriber struct {
	llm ChatCompleter
}

// NewLLMDescriber creates an LLM-backed describer
func NewLLMDescriber(llm ChatCompleter) *LLMDescriber {
	return &LLMDescriber{llm: llm}
}

// Describe sends the full raw event to the model, asking for an answer in the language of the message
func (d *LLMDescriber) Describe(ctx context.Context, event models.RawEvent) (string, error) {
	lang := DetectLanguage(event.Data.Subject + " " + event.Data.BodyText)
	payload, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("failed to encode event: %w", err)
	}

	resp, err := d.llm.CreateChatCompletion(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: describePrompt + "\n" + languageInstruction(lang)},
		{Role: openai.ChatMessageRoleUser, Content: string(payload)},
	}, 120, 0.2)
	if err != nil {
		return "", fmt.Errorf("description request failed: %w", err)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("empty description")
	}
	return text, nil
}

const sentimentPrompt = `Classify the sentiment of the user's message.
Reply with a JSON object: {"label": "POSITIVE"|"NEGATIVE"|"NEUTRAL"|"MIXED", "scores": {"positive": 0-1, "negative": 0-1, "neutral": 0-1, "mixed": 0-1}}.
Scores are confidences and sum to 1.`

// LLMSentiment classifies sentiment with a chat model in JSON mode
type LLMSentiment struct {
	llm ChatCompleter
}

// NewLLMSentiment creates an LLM-backed sentiment classifier
func NewLLMSentiment(llm ChatCompleter) *LLMSentiment {
	return &LLMSentiment{llm: llm}
}

// Classify labels text
func (s *LLMSentiment) Classify(ctx context.Context, text string) (models.Sentiment, error) {
	resp, err := s.llm.CreateJSONCompletion(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: sentimentPrompt},
		{Role: openai.ChatMessageRoleUser, Content: text},
	}, 100)
	if err != nil {
		return models.Sentiment{}, fmt.Errorf("sentiment request failed: %w", err)
	}
	return parseSentiment(resp.Choices[0].Message.Content)
}

func parseSentiment(content string) (models.Sentiment, error) {
	var out models.Sentiment
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return models.Sentiment{}, fmt.Errorf("unreadable sentiment reply: %w", err)
	}

	out.Label = strings.ToUpper(strings.TrimSpace(out.Label))
	switch out.Label {
	case models.SentimentPositive, models.SentimentNegative, models.SentimentNeutral, models.SentimentMixed:
	default:
		return models.Sentiment{}, fmt.Errorf("unknown sentiment label %q", out.Label)
	}

	for _, v := range []*float64{&out.Scores.Positive, &out.Scores.Negative, &out.Scores.Neutral, &out.Scores.Mixed} {
		if *v < 0 {
			*v = 0
		} else if *v > 1 {
			*v = 1
		}
	}
	return out, nil
}
