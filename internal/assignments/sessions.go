package assignments

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orbit-saas/settings-backend/internal/registry"
)

// SessionTTL is how long an idle editing session keeps its reconciler.
const SessionTTL = 2 * time.Hour

type sessionKey struct {
	orgID      uuid.UUID
	verticalID string
	sessionID  uuid.UUID
}

type sessionEntry struct {
	rec      *Reconciler
	lastUsed time.Time
}

// Manager owns one reconciler per active editing session and reloads
// sibling sessions when a foreign change arrives.
type Manager struct {
	mu       sync.Mutex
	sessions map[sessionKey]*sessionEntry
	store    Store
	notifier Notifier
	reg      *registry.Registry
	logger   *zap.Logger
}

// NewManager creates a session manager.
func NewManager(store Store, notifier Notifier, reg *registry.Registry, logger *zap.Logger) *Manager {
	return &Manager{
		sessions: make(map[sessionKey]*sessionEntry),
		store:    store,
		notifier: notifier,
		reg:      reg,
		logger:   logger,
	}
}

// Get returns the session's reconciler, creating and loading it on first
// use.
func (m *Manager) Get(ctx context.Context, orgID uuid.UUID, verticalID string, sessionID uuid.UUID) (*Reconciler, error) {
	vertical, err := m.reg.Get(verticalID)
	if err != nil {
		return nil, err
	}
	key := sessionKey{orgID: orgID, verticalID: verticalID, sessionID: sessionID}

	m.mu.Lock()
	entry, ok := m.sessions[key]
	if ok {
		entry.lastUsed = time.Now()
		m.mu.Unlock()
		return entry.rec, nil
	}
	rec := NewReconciler(m.store, m.notifier, m.logger, orgID, vertical, sessionID)
	m.sessions[key] = &sessionEntry{rec: rec, lastUsed: time.Now()}
	m.mu.Unlock()

	if err := rec.Reload(ctx); err != nil {
		return rec, err
	}
	return rec, nil
}

// Drop removes a session's reconciler (e.g. on vertical switch or logout).
func (m *Manager) Drop(orgID uuid.UUID, verticalID string, sessionID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionKey{orgID: orgID, verticalID: verticalID, sessionID: sessionID})
}

// OnForeignChange reloads every session editing the pair except the one
// that originated the change. The store is the source of truth: the next
// successful reload supersedes any local optimistic state.
func (m *Manager) OnForeignChange(ctx context.Context, orgID uuid.UUID, verticalID string, originSession uuid.UUID) {
	m.mu.Lock()
	var targets []*Reconciler
	for key, entry := range m.sessions {
		if key.orgID == orgID && key.verticalID == verticalID && key.sessionID != originSession {
			targets = append(targets, entry.rec)
		}
	}
	m.mu.Unlock()
	for _, rec := range targets {
		if err := rec.Reload(ctx); err != nil {
			m.logger.Warn("session reload after foreign change failed",
				zap.String("organization_id", orgID.String()),
				zap.String("vertical_id", verticalID),
				zap.Error(err))
		}
	}
}

// Sweep evicts sessions idle longer than SessionTTL. Run periodically.
func (m *Manager) Sweep() int {
	cutoff := time.Now().Add(-SessionTTL)
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for key, entry := range m.sessions {
		if entry.lastUsed.Before(cutoff) {
			delete(m.sessions, key)
			evicted++
		}
	}
	return evicted
}

// RunSweeper sweeps idle sessions until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Debug("evicted idle editing sessions", zap.Int("count", n))
			}
		}
	}
}
