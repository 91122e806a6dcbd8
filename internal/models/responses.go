package models

import "time"

// HealthResponse is the liveness probe body
// @Description Liveness response
type HealthResponse struct {
	Status    string    `json:"status" example:"healthy"`
	Timestamp time.Time `json:"timestamp" example:"2026-01-01T00:00:00Z"`
	Version   string    `json:"version" example:"1.0.0"`
	Uptime    string    `json:"uptime" example:"3h12m5s"`
}

// ServiceInfoResponse describes the running service
// @Description Service description
type ServiceInfoResponse struct {
	Service   string    `json:"service" example:"convoflow"`
	Version   string    `json:"version" example:"1.0.0"`
	Channels  []Channel `json:"channels"`
	Endpoints []string  `json:"endpoints"`
}

// DBHealthResponse represents a database health check response
// @Description Database health check response
type DBHealthResponse struct {
	Status    string        `json:"status" example:"healthy"`                   // Health status
	Timestamp time.Time     `json:"timestamp" example:"2023-01-01T00:00:00Z"`   // Timestamp of the check
	Connected bool          `json:"connected" example:"true"`                   // Database connection status
	Latency   time.Duration `json:"latency" swaggertype:"string" example:"1ms"` // Database ping latency
	Error     string        `json:"error,omitempty" example:""`                 // Error message if any
}

// ErrorResponse is returned by every API endpoint on failure
// @Description Error response
type ErrorResponse struct {
	Success bool   `json:"success" example:"false"`
	Error   string `json:"error" example:"access denied"`
}

// ThreadSummary is a thread with its unread count
// @Description Thread list entry
type ThreadSummary struct {
	Thread
	UnreadCount int `json:"unread_count" example:"2"`
}

// ThreadsResponse lists the threads visible to the caller
// @Description Thread list response
type ThreadsResponse struct {
	Success bool            `json:"success" example:"true"`
	Threads []ThreadSummary `json:"threads"`
}

// MessagesResponse lists a thread's messages in timestamp order
// @Description Thread messages response
type MessagesResponse struct {
	Success  bool      `json:"success" example:"true"`
	ThreadID string    `json:"thread_id" example:"4f1c2e0a-6a59-4d7b-9d0e-3f0e8e7b1c2d"`
	Messages []Message `json:"messages"`
}

// UnreadResponse carries a thread's unread-incoming count
// @Description Unread count response
type UnreadResponse struct {
	Success  bool   `json:"success" example:"true"`
	ThreadID string `json:"thread_id"`
	Unread   int    `json:"unread" example:"3"`
}

// MarkReadRequest clears the unread flag for the given provider message ids, or all when empty
// @Description Mark read request
type MarkReadRequest struct {
	MessageIDs []string `json:"message_ids"`
}

// MarkReadResponse reports how many messages were marked read
// @Description Mark read response
type MarkReadResponse struct {
	Success bool  `json:"success" example:"true"`
	Updated int64 `json:"updated" example:"2"`
}

// AddParticipantRequest shares a thread with another platform user
// @Description Add participant request
type AddParticipantRequest struct {
	UserID string `json:"user_id" example:"user-42"`
}

// SendRequest is the outbound send payload
// @Description Send message request
type SendRequest struct {
	ThreadID          string  `json:"thread_id,omitempty"`
	ContactIdentifier string  `json:"contact_identifier,omitempty" example:"a@example.com"`
	Channel           Channel `json:"channel" example:"email"`
	Body              string  `json:"body" example:"Thanks, we are on it."`
	Subject           string  `json:"subject,omitempty" example:"Re: order 1234"`
}

// SendResponse returns the persisted outgoing message
// @Description Send message response
type SendResponse struct {
	Success bool     `json:"success" example:"true"`
	Message *Message `json:"message,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// SearchHit is one semantic search match
type SearchHit struct {
	ChunkID string        `json:"chunk_id"`
	Score   float32       `json:"score"`
	Meta    ChunkMetadata `json:"metadata"`
}

// SearchResponse lists semantic search matches within a thread
// @Description Thread search response
type SearchResponse struct {
	Success bool        `json:"success" example:"true"`
	Hits    []SearchHit `json:"hits"`
}

// WebhookResponse summarizes an inbound webhook delivery
// @Description Webhook response
type WebhookResponse struct {
	Success    bool `json:"success" example:"true"`
	Accepted   int  `json:"accepted" example:"1"`
	Duplicates int  `json:"duplicates" example:"0"`
	Skipped    int  `json:"skipped" example:"0"`
}
