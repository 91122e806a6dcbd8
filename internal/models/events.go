package models

// EventData is the channel payload carried by a raw event
type EventData struct {
	ThreadID          string    `json:"threadId"`
	Channel           Channel   `json:"channel"`
	Direction         Direction `json:"direction"`
	ProviderMessageID string    `json:"providerMessageId,omitempty"`
	BodyText          string    `json:"bodyText"`
	Subject           string    `json:"subject,omitempty"`
	From              string    `json:"from,omitempty"`
	To                string    `json:"to,omitempty"`
	Participants      []string  `json:"participants,omitempty"`
}

// RawEvent is the channel-agnostic representation of a persisted message
type RawEvent struct {
	EventID   string    `json:"eventId"`
	Timestamp int64     `json:"timestamp"` // unix millis of the source message
	UserID    string    `json:"userId"`
	EventType string    `json:"eventType"` // {channel}.{received|sent}
	Data      EventData `json:"data"`
}

// Sentiment labels
const (
	SentimentPositive = "POSITIVE"
	SentimentNegative = "NEGATIVE"
	SentimentNeutral  = "NEUTRAL"
	SentimentMixed    = "MIXED"
)

// SentimentScores holds per-class confidence
type SentimentScores struct {
	Positive float64 `json:"positive"`
	Negative float64 `json:"negative"`
	Neutral  float64 `json:"neutral"`
	Mixed    float64 `json:"mixed"`
}

// Sentiment is a classifier label plus per-class scores
type Sentiment struct {
	Label  string          `json:"label"`
	Scores SentimentScores `json:"scores"`
}

// NeutralSentiment is the zero-confidence default used for empty text and upstream failures
func NeutralSentiment() Sentiment {
	return Sentiment{Label: SentimentNeutral}
}

// EnrichedEvent is a raw event plus description, sentiment and indexable text
type EnrichedEvent struct {
	RawEvent
	NaturalLanguageDescription string    `json:"naturalLanguageDescription"`
	Sentiment                  Sentiment `json:"sentiment"`
	ChunkableContent           string    `json:"chunkableContent"`
}

// ChunkMetadata is attached to every vector for provenance and filtered search
type ChunkMetadata struct {
	ChunkID           string   `json:"chunk_id"`
	EventID           string   `json:"event_id"`
	ThreadID          string   `json:"thread_id"`
	UserID            string   `json:"user_id"`
	EventType         string   `json:"event_type"`
	Timestamp         int64    `json:"timestamp"`
	ChunkIndex        int      `json:"chunk_index"`
	ChunkCount        int      `json:"chunk_count"`
	CharStart         int      `json:"char_start"`
	CharEnd           int      `json:"char_end"`
	Sentiment         string   `json:"sentiment"`
	SentimentPositive float64  `json:"sentiment_positive"`
	SentimentNegative float64  `json:"sentiment_negative"`
	SentimentNeutral  float64  `json:"sentiment_neutral"`
	SentimentMixed    float64  `json:"sentiment_mixed"`
	Participants      []string `json:"participants,omitempty"`
	Subject           string   `json:"subject,omitempty"`
	Text              string   `json:"text"`
}

// VectorChunk is one embedded slice of an enriched event. Immutable; id is {eventId}-{chunkIndex}.
type VectorChunk struct {
	ID        string        `json:"id"`
	Embedding []float32     `json:"embedding"`
	Metadata  ChunkMetadata `json:"metadata"`
}
