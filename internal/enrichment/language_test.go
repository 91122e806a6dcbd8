package enrichment

import (
	"context"
	"testing"

	"convoflow/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "hebrew", input: "שלום, איך אני יכול לעזור לך?", expected: "he"},
		{name: "english", input: "Hello, where is my order?", expected: "en"},
		{name: "arabic", input: "مرحبا، كيف يمكنني مساعدتك؟", expected: "ar"},
		{name: "russian", input: "Привет, где мой заказ?", expected: "ru"},
		{name: "chinese", input: "你好，我的订单在哪里？", expected: "zh"},
		{name: "japanese", input: "こんにちは、注文はどこですか？", expected: "ja"},
		{name: "korean", input: "안녕하세요, 주문은 어디에 있나요?", expected: "ko"},
		{name: "empty", input: "  ", expected: "en"},
		{name: "mixed with hebrew", input: "Order 1234 שלום", expected: "he"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectLanguage(tt.input).Code)
		})
	}
}

func TestLLMDescriber_AsksForMessageLanguage(t *testing.T) {
	llm := &fakeLLM{reply: "Клиент спросил о заказе."}
	d := NewLLMDescriber(llm)

	_, err := d.Describe(context.Background(), models.RawEvent{
		EventType: "whatsapp.received",
		Data:      models.EventData{BodyText: "Привет, где мой заказ?"},
	})
	require.NoError(t, err)
	require.Len(t, llm.messages, 2)
	assert.Contains(t, llm.messages[0].Content, "Write the sentence in Russian.")
}
