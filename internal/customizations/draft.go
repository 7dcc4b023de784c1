package customizations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/orbit-saas/settings-backend/internal/models"
)

// DraftStore caches per-session unsaved drafts in Redis. Best-effort crash
// recovery only: a miss or a Redis failure degrades to an empty draft and
// never blocks a save.
type DraftStore struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewDraftStore creates a draft store with the given TTL.
func NewDraftStore(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *DraftStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DraftStore{rdb: rdb, ttl: ttl, logger: logger}
}

func draftKey(orgID uuid.UUID, verticalID string, sessionID uuid.UUID) string {
	return fmt.Sprintf("draft:%s:%s:%s", orgID, verticalID, sessionID)
}

// Get returns the cached draft, or nil when none exists.
func (s *DraftStore) Get(ctx context.Context, orgID uuid.UUID, verticalID string, sessionID uuid.UUID) (*models.CustomizationDraft, error) {
	raw, err := s.rdb.Get(ctx, draftKey(orgID, verticalID, sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get draft: %w", err)
	}
	var d models.CustomizationDraft
	if err := json.Unmarshal(raw, &d); err != nil {
		// corrupt cache entry: treat as absent
		s.logger.Warn("discarding unreadable draft", zap.Error(err))
		_ = s.rdb.Del(ctx, draftKey(orgID, verticalID, sessionID)).Err()
		return nil, nil
	}
	return &d, nil
}

// Put caches the draft, refreshing its TTL.
func (s *DraftStore) Put(ctx context.Context, d *models.CustomizationDraft) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	if err := s.rdb.Set(ctx, draftKey(d.OrganizationID, d.VerticalID, d.SessionID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("put draft: %w", err)
	}
	return nil
}

// Delete clears the draft. Invalidation triggers: successful save, explicit
// discard, and vertical switch.
func (s *DraftStore) Delete(ctx context.Context, orgID uuid.UUID, verticalID string, sessionID uuid.UUID) error {
	return s.rdb.Del(ctx, draftKey(orgID, verticalID, sessionID)).Err()
}
