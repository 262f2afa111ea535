package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/bshelton-songtrust/publishing-platform/internal/core/domain"
	"github.com/bshelton-songtrust/publishing-platform/internal/core/port"
	"github.com/bshelton-songtrust/publishing-platform/internal/infra/config"
	"github.com/bshelton-songtrust/publishing-platform/internal/repository"
)

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		App: config.AppSettings{
			Name: "publishing-platform",
			Env:  "test",
		},
		Redis: config.RedisSettings{
			ResolverTTL: 2 * time.Minute,
		},
		JWT: config.JWTSettings{
			KeyID:           "v1",
			SessionTokenTTL: 30 * time.Minute,
		},
		Auth: config.AuthSettings{
			SessionTTL:           12 * time.Hour,
			SessionLimit:         3,
			SessionEvictOldest:   false,
			RotationGracePeriod:  24 * time.Hour,
			AllowTrialPublishers: true,
			StoreTimeout:         time.Second,
			StoreRetryBackoff:    time.Millisecond,
		},
		RateLimit: config.RateLimitSettings{
			Window:       time.Minute,
			MaxPerWindow: 100,
		},
	}
}

type stubTokenRepo struct {
	getFn         func(ctx context.Context, tokenID string) (*domain.TokenRecord, error)
	createFn      func(ctx context.Context, record domain.TokenRecord) error
	listFn        func(ctx context.Context, userID string) ([]domain.TokenRecord, error)
	rotateFn      func(ctx context.Context, tokenID, newSecretHash string, graceEnd, at time.Time) (bool, error)
	revokeFn      func(ctx context.Context, tokenID string, at time.Time) (bool, error)
	recordUsageFn func(ctx context.Context, tokenID string, at time.Time, outcome string) error
}

func (s *stubTokenRepo) Create(ctx context.Context, record domain.TokenRecord) error {
	if s.createFn != nil {
		return s.createFn(ctx, record)
	}
	return nil
}

func (s *stubTokenRepo) GetByID(ctx context.Context, tokenID string) (*domain.TokenRecord, error) {
	if s.getFn != nil {
		return s.getFn(ctx, tokenID)
	}
	return nil, repository.ErrNotFound
}

func (s *stubTokenRepo) ListByUser(ctx context.Context, userID string) ([]domain.TokenRecord, error) {
	if s.listFn != nil {
		return s.listFn(ctx, userID)
	}
	return nil, nil
}

func (s *stubTokenRepo) Rotate(ctx context.Context, tokenID, newSecretHash string, graceEnd time.Time, at time.Time) (bool, error) {
	if s.rotateFn != nil {
		return s.rotateFn(ctx, tokenID, newSecretHash, graceEnd, at)
	}
	return true, nil
}

func (s *stubTokenRepo) Revoke(ctx context.Context, tokenID string, at time.Time) (bool, error) {
	if s.revokeFn != nil {
		return s.revokeFn(ctx, tokenID, at)
	}
	return true, nil
}

func (s *stubTokenRepo) RecordUsage(ctx context.Context, tokenID string, at time.Time, outcome string) error {
	if s.recordUsageFn != nil {
		return s.recordUsageFn(ctx, tokenID, at, outcome)
	}
	return nil
}

type stubSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session

	countFn           func(ctx context.Context, userID string, at time.Time) (int, error)
	terminateOldestFn func(ctx context.Context, userID, reason string, at time.Time) (bool, error)
}

func newStubSessionRepo() *stubSessionRepo {
	return &stubSessionRepo{sessions: make(map[string]*domain.Session)}
}

func (s *stubSessionRepo) Create(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := session
	s.sessions[session.ID] = &copied
	return nil
}

func (s *stubSessionRepo) GetByID(_ context.Context, sessionID string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *session
	return &copied, nil
}

func (s *stubSessionRepo) Touch(_ context.Context, sessionID string, at time.Time, ip, userAgent *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok || session.RevokedAt != nil {
		return repository.ErrNotFound
	}
	session.LastSeen = at
	if ip != nil {
		session.IP = ip
	}
	if userAgent != nil {
		session.UserAgent = userAgent
	}
	return nil
}

func (s *stubSessionRepo) Terminate(_ context.Context, sessionID, reason string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok || session.RevokedAt != nil {
		return false, nil
	}
	revokedAt := at
	session.RevokedAt = &revokedAt
	session.RevokeReason = &reason
	return true, nil
}

func (s *stubSessionRepo) CountActiveByUser(ctx context.Context, userID string, at time.Time) (int, error) {
	if s.countFn != nil {
		return s.countFn(ctx, userID, at)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, session := range s.sessions {
		if session.UserID == userID && session.IsActive(at) {
			count++
		}
	}
	return count, nil
}

func (s *stubSessionRepo) ListActiveByUser(_ context.Context, userID string, at time.Time) ([]domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var active []domain.Session
	for _, session := range s.sessions {
		if session.UserID == userID && session.IsActive(at) {
			active = append(active, *session)
		}
	}
	return active, nil
}

func (s *stubSessionRepo) TerminateOldestForUser(ctx context.Context, userID, reason string, at time.Time) (bool, error) {
	if s.terminateOldestFn != nil {
		return s.terminateOldestFn(ctx, userID, reason, at)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var oldest *domain.Session
	for _, session := range s.sessions {
		if session.UserID != userID || !session.IsActive(at) {
			continue
		}
		if oldest == nil || session.CreatedAt.Before(oldest.CreatedAt) {
			oldest = session
		}
	}
	if oldest == nil {
		return false, nil
	}
	revokedAt := at
	oldest.RevokedAt = &revokedAt
	oldest.RevokeReason = &reason
	return true, nil
}

type stubUserRepo struct {
	getByIDFn    func(ctx context.Context, userID string) (*domain.User, error)
	getByEmailFn func(ctx context.Context, email string) (*domain.User, error)
	recordFn     func(ctx context.Context, userID string) error
}

func (s *stubUserRepo) GetByID(ctx context.Context, userID string) (*domain.User, error) {
	if s.getByIDFn != nil {
		return s.getByIDFn(ctx, userID)
	}
	return nil, repository.ErrNotFound
}

func (s *stubUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if s.getByEmailFn != nil {
		return s.getByEmailFn(ctx, email)
	}
	return nil, repository.ErrNotFound
}

func (s *stubUserRepo) RecordLogin(ctx context.Context, userID string) error {
	if s.recordFn != nil {
		return s.recordFn(ctx, userID)
	}
	return nil
}

type stubServiceAccountRepo struct {
	getFn func(ctx context.Context, accountID string) (*domain.ServiceAccount, error)
}

func (s *stubServiceAccountRepo) GetByID(ctx context.Context, accountID string) (*domain.ServiceAccount, error) {
	if s.getFn != nil {
		return s.getFn(ctx, accountID)
	}
	return nil, repository.ErrNotFound
}

type stubPublisherRepo struct {
	getFn func(ctx context.Context, publisherID string) (*domain.Publisher, error)
}

func (s *stubPublisherRepo) GetByID(ctx context.Context, publisherID string) (*domain.Publisher, error) {
	if s.getFn != nil {
		return s.getFn(ctx, publisherID)
	}
	return nil, repository.ErrNotFound
}

func activePublisher(publisherID string) *stubPublisherRepo {
	return &stubPublisherRepo{
		getFn: func(_ context.Context, id string) (*domain.Publisher, error) {
			if id != publisherID {
				return nil, repository.ErrNotFound
			}
			return &domain.Publisher{ID: id, Name: "Test Publishing", Status: domain.PublisherStatusActive}, nil
		},
	}
}

type stubMembershipRepo struct {
	getFn          func(ctx context.Context, userID, publisherID string) (*domain.Membership, error)
	listFn         func(ctx context.Context, userID string) ([]domain.Membership, error)
	updateGrantsFn func(ctx context.Context, membershipID string, grants, denials []string) (int64, error)
	updateRoleFn   func(ctx context.Context, membershipID, roleName string) (int64, error)
	setStatusFn    func(ctx context.Context, membershipID string, status domain.MembershipStatus) (int64, error)
}

func (s *stubMembershipRepo) Get(ctx context.Context, userID, publisherID string) (*domain.Membership, error) {
	if s.getFn != nil {
		return s.getFn(ctx, userID, publisherID)
	}
	return nil, repository.ErrNotFound
}

func (s *stubMembershipRepo) ListByUser(ctx context.Context, userID string) ([]domain.Membership, error) {
	if s.listFn != nil {
		return s.listFn(ctx, userID)
	}
	return nil, nil
}

func (s *stubMembershipRepo) UpdateGrants(ctx context.Context, membershipID string, grants, denials []string) (int64, error) {
	if s.updateGrantsFn != nil {
		return s.updateGrantsFn(ctx, membershipID, grants, denials)
	}
	return 1, nil
}

func (s *stubMembershipRepo) UpdateRole(ctx context.Context, membershipID, roleName string) (int64, error) {
	if s.updateRoleFn != nil {
		return s.updateRoleFn(ctx, membershipID, roleName)
	}
	return 1, nil
}

func (s *stubMembershipRepo) SetStatus(ctx context.Context, membershipID string, status domain.MembershipStatus) (int64, error) {
	if s.setStatusFn != nil {
		return s.setStatusFn(ctx, membershipID, status)
	}
	return 1, nil
}

type stubRoleRepo struct {
	system      []domain.Role
	byPublisher map[string][]domain.Role
	permissions []domain.Permission
}

func (s *stubRoleRepo) ListSystem(context.Context) ([]domain.Role, error) {
	return s.system, nil
}

func (s *stubRoleRepo) ListByPublisher(_ context.Context, publisherID string) ([]domain.Role, error) {
	return s.byPublisher[publisherID], nil
}

func (s *stubRoleRepo) ListPermissions(context.Context) ([]domain.Permission, error) {
	return s.permissions, nil
}

type stubRevocationStore struct {
	mu      sync.Mutex
	revoked map[string]string

	markFn func(ctx context.Context, tokenID, reason string, ttl time.Duration) error
	isFn   func(ctx context.Context, tokenID string) (bool, string, error)
}

func newStubRevocationStore() *stubRevocationStore {
	return &stubRevocationStore{revoked: make(map[string]string)}
}

func (s *stubRevocationStore) MarkRevoked(ctx context.Context, tokenID, reason string, ttl time.Duration) error {
	if s.markFn != nil {
		return s.markFn(ctx, tokenID, reason, ttl)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[tokenID] = reason
	return nil
}

func (s *stubRevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, string, error) {
	if s.isFn != nil {
		return s.isFn(ctx, tokenID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	reason, ok := s.revoked[tokenID]
	return ok, reason, nil
}

type stubRateLimitStore struct {
	allowFn func(ctx context.Context, tokenID string, limit int, window time.Duration) (bool, error)
}

func (s *stubRateLimitStore) Allow(ctx context.Context, tokenID string, limit int, window time.Duration) (bool, error) {
	if s.allowFn != nil {
		return s.allowFn(ctx, tokenID, limit, window)
	}
	return true, nil
}

type cacheEntry struct {
	grant port.ResolvedGrant
}

type stubResolverCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry

	gets        int
	sets        int
	invalidated []string
}

func newStubResolverCache() *stubResolverCache {
	return &stubResolverCache{entries: make(map[string]cacheEntry)}
}

func (s *stubResolverCache) Get(_ context.Context, principalID, publisherID string) (*port.ResolvedGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	entry, ok := s.entries[principalID+":"+publisherID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	grant := entry.grant
	return &grant, nil
}

func (s *stubResolverCache) Set(_ context.Context, principalID, publisherID string, grant port.ResolvedGrant, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets++
	s.entries[principalID+":"+publisherID] = cacheEntry{grant: grant}
	return nil
}

func (s *stubResolverCache) Invalidate(_ context.Context, principalID, publisherID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := principalID + ":" + publisherID
	s.invalidated = append(s.invalidated, key)
	delete(s.entries, key)
	return nil
}

type recordingAudit struct {
	mu             sync.Mutex
	authentication []domain.AuthenticationEvent
	denied         []domain.PermissionDeniedEvent
	tokenEvents    []domain.TokenLifecycleEvent
	sessionEvents  []domain.SessionLifecycleEvent
}

func (r *recordingAudit) RecordAuthentication(_ context.Context, event domain.AuthenticationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.authentication = append(r.authentication, event)
	return nil
}

func (r *recordingAudit) RecordPermissionDenied(_ context.Context, event domain.PermissionDeniedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.denied = append(r.denied, event)
	return nil
}

func (r *recordingAudit) RecordTokenLifecycle(_ context.Context, event domain.TokenLifecycleEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokenEvents = append(r.tokenEvents, event)
	return nil
}

func (r *recordingAudit) RecordSessionLifecycle(_ context.Context, event domain.SessionLifecycleEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionEvents = append(r.sessionEvents, event)
	return nil
}
