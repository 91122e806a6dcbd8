// Package replies picks the provider message id an outbound reply should thread against.
package replies

import (
	"context"
	"fmt"
	"strings"

	"convoflow/internal/models"

	"github.com/rs/zerolog"
)

// MessageLister reads a thread's messages in timestamp order
type MessageLister interface {
	ListByThread(ctx context.Context, threadID string) ([]models.Message, error)
}

// Selector picks candidate messages, in preference order, from a thread's log
type Selector func(msgs []models.Message) []models.Message

// Extractor pulls a usable identifier out of one message
type Extractor func(m models.Message) (string, bool)

// Strategy pairs a selector with an extractor. The first strategy to yield an id wins.
type Strategy struct {
	Name    string
	Select  Selector
	Extract Extractor
}

// Apply runs the extractor over the selected messages in order
func (s Strategy) Apply(msgs []models.Message) (string, bool) {
	for _, m := range s.Select(msgs) {
		if id, ok := s.Extract(m); ok {
			return id, true
		}
	}
	return "", false
}

// LatestInbound selects the incoming messages of the thread, newest first
func LatestInbound(msgs []models.Message) []models.Message {
	var out []models.Message
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Direction == models.DirectionIncoming {
			out = append(out, msgs[i])
		}
	}
	return out
}

// OldestInbound selects the incoming messages of the thread, oldest first
func OldestInbound(msgs []models.Message) []models.Message {
	var out []models.Message
	for _, m := range msgs {
		if m.Direction == models.DirectionIncoming {
			out = append(out, m)
		}
	}
	return out
}

// HeaderID extracts a non-empty header value
func HeaderID(key string) Extractor {
	return func(m models.Message) (string, bool) {
		v := strings.TrimSpace(m.Headers.Get(key))
		return v, v != ""
	}
}

// FirstOf tries extractors in order on the same message
func FirstOf(extractors ...Extractor) Extractor {
	return func(m models.Message) (string, bool) {
		for _, extract := range extractors {
			if id, ok := extract(m); ok {
				return id, true
			}
		}
		return "", false
	}
}

// InternalID falls back to the stored provider message id. It may not thread with the
// external provider.
func InternalID(m models.Message) (string, bool) {
	return m.ProviderMessageID, m.ProviderMessageID != ""
}

// headerID prefers the original Message-ID over the provider's send result id
var headerID = FirstOf(HeaderID(models.HeaderMessageID), HeaderID(models.HeaderProviderResultID))

// DefaultStrategies is the preference order: the newest inbound message carrying a header id,
// then the oldest one, then the internal id on the same two scans. Within a message the
// original Message-ID wins over the send result id.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "latest_header_id", Select: LatestInbound, Extract: headerID},
		{Name: "oldest_header_id", Select: OldestInbound, Extract: headerID},
		{Name: "latest_internal_id", Select: LatestInbound, Extract: InternalID},
		{Name: "oldest_internal_id", Select: OldestInbound, Extract: InternalID},
	}
}

// Resolver evaluates strategies in order
type Resolver struct {
	messages   MessageLister
	strategies []Strategy
	logger     zerolog.Logger
}

// NewResolver creates a resolver; nil strategies means DefaultStrategies
func NewResolver(messages MessageLister, strategies []Strategy, logger zerolog.Logger) *Resolver {
	if strategies == nil {
		strategies = DefaultStrategies()
	}
	return &Resolver{
		messages:   messages,
		strategies: strategies,
		logger:     logger.With().Str("component", "reply_resolver").Logger(),
	}
}

// FindReplyTarget returns the id to reply to, or ok=false when the reply must start fresh
func (r *Resolver) FindReplyTarget(ctx context.Context, threadID string) (string, bool, error) {
	msgs, err := r.messages.ListByThread(ctx, threadID)
	if err != nil {
		return "", false, fmt.Errorf("failed to load thread for reply: %w", err)
	}

	for _, s := range r.strategies {
		if id, ok := s.Apply(msgs); ok {
			r.logger.Debug().
				Str("thread_id", threadID).
				Str("strategy", s.Name).
				Msg("Resolved reply target")
			return id, true, nil
		}
	}
	return "", false, nil
}
