// Package threads maps (user, external contact) pairs to stable thread ids and gates access.
package threads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"convoflow/internal/cache"
	"convoflow/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrNotFound     = errors.New("thread not found")
	ErrThreadExists = errors.New("thread already exists")
	ErrAccessDenied = errors.New("access denied")
)

// MessageIndex is the slice of the message store the registry reads
type MessageIndex interface {
	ListByThread(ctx context.Context, threadID string) ([]models.Message, error)
	ListThreadsForUser(ctx context.Context, userID string) ([]string, error)
}

// Registry resolves thread identity
type Registry struct {
	store    Store
	messages MessageIndex
	ids      *cache.Cache[string, string]
	legacy   LegacyFallback
	now      func() time.Time
	logger   zerolog.Logger
}

// NewRegistry creates a thread registry. ids caches resolved (owner, contact) lookups;
// thread ids never change once created so any TTL is safe.
func NewRegistry(store Store, messages MessageIndex, ids *cache.Cache[string, string], legacy LegacyFallback, logger zerolog.Logger) *Registry {
	return &Registry{
		store:    store,
		messages: messages,
		ids:      ids,
		legacy:   legacy,
		now:      time.Now,
		logger:   logger.With().Str("component", "thread_registry").Logger(),
	}
}

func cacheKey(owner, contact string) string {
	return owner + "\x00" + contact
}

// ResolveOrCreateThread returns the thread id for (ownerUserID, contact), creating the thread
// on first contact. Concurrent first contacts converge on the winner's id.
func (r *Registry) ResolveOrCreateThread(ctx context.Context, ownerUserID, contact string, channel models.Channel) (string, error) {
	if ownerUserID == "" || contact == "" {
		return "", fmt.Errorf("owner and contact are required")
	}

	key := cacheKey(ownerUserID, contact)
	if id, ok := r.ids.Get(key); ok {
		return id, nil
	}

	existing, err := r.store.FindByContact(ctx, ownerUserID, contact)
	switch {
	case err == nil:
		r.ids.Set(key, existing.ThreadID)
		return existing.ThreadID, nil
	case !errors.Is(err, ErrNotFound):
		return "", err
	}

	now := r.now().UnixMilli()
	thread := &models.Thread{
		ThreadID:          uuid.NewString(),
		OwnerUserID:       ownerUserID,
		ContactIdentifier: contact,
		Channel:           channel,
		CreatedAt:         now,
	}

	err = r.store.Create(ctx, thread)
	if err == nil {
		r.logger.Info().
			Str("thread_id", thread.ThreadID).
			Str("owner_user_id", ownerUserID).
			Str("channel", string(channel)).
			Msg("Created thread")
		r.ids.Set(key, thread.ThreadID)
		return thread.ThreadID, nil
	}
	if !errors.Is(err, ErrThreadExists) {
		return "", err
	}

	// Lost the creation race: the winner's row is committed, read it once.
	winner, err := r.store.FindByContact(ctx, ownerUserID, contact)
	if err != nil {
		return "", fmt.Errorf("thread for %s/%s unreadable after creation conflict: %w", ownerUserID, contact, err)
	}
	r.ids.Set(key, winner.ThreadID)
	return winner.ThreadID, nil
}

// Thread loads a thread with its participants
func (r *Registry) Thread(ctx context.Context, threadID string) (*models.Thread, error) {
	t, err := r.store.Get(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if t.Participants, err = r.store.Participants(ctx, threadID); err != nil {
		return nil, err
	}
	return t, nil
}

// UserHasAccessToThread is true for the owner and for participants
func (r *Registry) UserHasAccessToThread(ctx context.Context, userID, threadID string) (bool, error) {
	t, err := r.store.Get(ctx, threadID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if t.OwnerUserID == userID {
		return true, nil
	}
	return r.store.IsParticipant(ctx, threadID, userID)
}

// CheckAccess returns ErrAccessDenied unless userID may read threadID
func (r *Registry) CheckAccess(ctx context.Context, userID, threadID string) error {
	ok, err := r.UserHasAccessToThread(ctx, userID, threadID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAccessDenied
	}
	return nil
}

// AddParticipant shares a thread; only the owner may do it
func (r *Registry) AddParticipant(ctx context.Context, actingUserID, threadID, userID string) error {
	t, err := r.store.Get(ctx, threadID)
	if err != nil {
		return err
	}
	if t.OwnerUserID != actingUserID {
		return ErrAccessDenied
	}
	if userID == "" || userID == t.OwnerUserID {
		return nil
	}
	return r.store.AddParticipant(ctx, threadID, userID)
}

// ThreadsForUser lists owned and shared threads. Owned ids come from the message store's
// owner index; ids that predate thread records are skipped.
func (r *Registry) ThreadsForUser(ctx context.Context, userID string) ([]models.Thread, error) {
	owned, err := r.messages.ListThreadsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	shared, err := r.store.ListShared(ctx, userID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(owned)+len(shared))
	ids := make([]string, 0, len(owned)+len(shared))
	for _, id := range append(owned, shared...) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return r.store.GetMany(ctx, ids)
}

// Messages lists a thread's messages: canonical id first, then the legacy raw-address id
// while the fallback is enabled.
func (r *Registry) Messages(ctx context.Context, threadID string) ([]models.Message, error) {
	msgs, err := r.messages.ListByThread(ctx, threadID)
	if err != nil || len(msgs) > 0 {
		return msgs, err
	}

	if !r.legacy.Enabled(r.now()) {
		return msgs, nil
	}

	t, err := r.store.Get(ctx, threadID)
	if errors.Is(err, ErrNotFound) {
		return msgs, nil
	}
	if err != nil {
		return nil, err
	}

	legacyID, ok := LegacyThreadID(t.ContactIdentifier)
	if !ok || legacyID == threadID {
		return msgs, nil
	}

	r.logger.Warn().
		Str("thread_id", threadID).
		Str("legacy_thread_id", legacyID).
		Msg("Serving messages from legacy thread id")
	return r.messages.ListByThread(ctx, legacyID)
}

// RecordActivity refreshes the thread's counters after a write
func (r *Registry) RecordActivity(ctx context.Context, threadID string) error {
	return r.store.RefreshStats(ctx, threadID)
}
