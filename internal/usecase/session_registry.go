package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bshelton-songtrust/publishing-platform/internal/core/domain"
	"github.com/bshelton-songtrust/publishing-platform/internal/core/port"
	"github.com/bshelton-songtrust/publishing-platform/internal/infra/config"
	"github.com/bshelton-songtrust/publishing-platform/internal/repository"
)

const evictionReason = "session limit reached"

// SessionRegistry owns server-side session state: creation under the
// concurrency cap, liveness checks for session-token verification, and
// termination.
type SessionRegistry struct {
	cfg      *config.AppConfig
	sessions port.SessionRepository
	audit    port.AuditSink
	logger   *zap.Logger
	now      func() time.Time
}

// NewSessionRegistry constructs a SessionRegistry instance.
func NewSessionRegistry(
	cfg *config.AppConfig,
	sessions port.SessionRepository,
	audit port.AuditSink,
	logger *zap.Logger,
) *SessionRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := &SessionRegistry{
		cfg:      cfg,
		sessions: sessions,
		audit:    audit,
		logger:   logger,
	}
	registry.now = func() time.Time { return time.Now().UTC() }
	return registry
}

// WithClock overrides the registry clock for deterministic tests.
func (s *SessionRegistry) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// CreateSession opens a new session for the user within a publisher. When
// the concurrent-session cap is reached the call either evicts the oldest
// session or fails, depending on policy.
func (s *SessionRegistry) CreateSession(ctx context.Context, userID, publisherID string, ip, userAgent *string) (*domain.Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	publisherID = strings.TrimSpace(publisherID)
	if publisherID == "" {
		return nil, fmt.Errorf("publisher id is required")
	}

	now := s.now()

	if limit := s.cfg.Auth.SessionLimit; limit > 0 {
		count, err := s.sessions.CountActiveByUser(ctx, userID, now)
		if err != nil {
			return nil, fmt.Errorf("count active sessions: %w", err)
		}
		if count >= limit {
			if !s.cfg.Auth.SessionEvictOldest {
				return nil, ErrSessionLimitExceeded
			}
			evicted, err := s.sessions.TerminateOldestForUser(ctx, userID, evictionReason, now)
			if err != nil {
				return nil, fmt.Errorf("evict oldest session: %w", err)
			}
			if !evicted {
				return nil, ErrSessionLimitExceeded
			}
		}
	}

	session := domain.Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		PublisherID: publisherID,
		IP:          ip,
		UserAgent:   userAgent,
		CreatedAt:   now,
		LastSeen:    now,
		ExpiresAt:   now.Add(s.cfg.Auth.SessionTTL),
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.recordLifecycle(ctx, domain.SessionActionCreated, session.ID, userID, publisherID, "", now)

	return &session, nil
}

// Liveness returns the session when it is still active, ErrSessionInactive
// otherwise. A valid session-token signature proves issuance, not liveness;
// this check closes that gap.
func (s *SessionRegistry) Liveness(ctx context.Context, sessionID string) (*domain.Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrSessionInactive
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionInactive
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	if !session.IsActive(s.now()) {
		return nil, ErrSessionInactive
	}

	return session, nil
}

// Touch refreshes the session's last-seen metadata. Best effort.
func (s *SessionRegistry) Touch(ctx context.Context, sessionID string, ip, userAgent *string) {
	if err := s.sessions.Touch(ctx, sessionID, s.now(), ip, userAgent); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("touch session failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}

// Terminate revokes a session. Repeated termination is idempotent; the audit
// record is emitted only when state actually changed.
func (s *SessionRegistry) Terminate(ctx context.Context, sessionID, reason string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}

	now := s.now()

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionInactive
		}
		return fmt.Errorf("get session: %w", err)
	}

	terminated, err := s.sessions.Terminate(ctx, sessionID, reason, now)
	if err != nil {
		return fmt.Errorf("terminate session: %w", err)
	}

	if terminated {
		s.recordLifecycle(ctx, domain.SessionActionTerminated, sessionID, session.UserID, session.PublisherID, reason, now)
	}

	return nil
}

// TerminateAllForUser revokes every active session held by the user and
// returns how many changed state.
func (s *SessionRegistry) TerminateAllForUser(ctx context.Context, userID, reason string) (int, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, fmt.Errorf("user id is required")
	}

	now := s.now()

	sessions, err := s.sessions.ListActiveByUser(ctx, userID, now)
	if err != nil {
		return 0, fmt.Errorf("list active sessions: %w", err)
	}

	terminated := 0
	for _, session := range sessions {
		changed, err := s.sessions.Terminate(ctx, session.ID, reason, now)
		if err != nil {
			return terminated, fmt.Errorf("terminate session %s: %w", session.ID, err)
		}
		if changed {
			terminated++
			s.recordLifecycle(ctx, domain.SessionActionTerminated, session.ID, userID, session.PublisherID, reason, now)
		}
	}

	return terminated, nil
}

// ListActive returns the user's live sessions, oldest first.
func (s *SessionRegistry) ListActive(ctx context.Context, userID string) ([]domain.Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	sessions, err := s.sessions.ListActiveByUser(ctx, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}

	return sessions, nil
}

func (s *SessionRegistry) recordLifecycle(ctx context.Context, action, sessionID, userID, publisherID, reason string, at time.Time) {
	if s.audit == nil {
		return
	}

	event := domain.SessionLifecycleEvent{
		EventID:     uuid.NewString(),
		Action:      action,
		SessionID:   sessionID,
		UserID:      userID,
		PublisherID: publisherID,
		Reason:      reason,
		At:          at,
	}

	if err := s.audit.RecordSessionLifecycle(ctx, event); err != nil {
		s.logger.Warn("record session lifecycle event failed", zap.Error(err))
	}
}
