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
	"github.com/bshelton-songtrust/publishing-platform/internal/infra/security"
	"github.com/bshelton-songtrust/publishing-platform/internal/repository"
)

// revocationTTL caps how long a revocation marker lives in the cache when the
// record has no expiry of its own.
const revocationTTL = 30 * 24 * time.Hour

// TokenStore authenticates opaque credentials and manages their lifecycle.
// Every store access runs under a bounded timeout with a single retry, and
// verification fails closed: when the store cannot answer, nothing is
// authenticated.
type TokenStore struct {
	cfg         *config.AppConfig
	tokens      port.TokenRepository
	revocations port.RevocationStore
	rateLimits  port.RateLimitStore
	audit       port.AuditSink
	logger      *zap.Logger
	now         func() time.Time
}

// NewTokenStore constructs a TokenStore instance.
func NewTokenStore(
	cfg *config.AppConfig,
	tokens port.TokenRepository,
	revocations port.RevocationStore,
	rateLimits port.RateLimitStore,
	audit port.AuditSink,
	logger *zap.Logger,
) *TokenStore {
	if logger == nil {
		logger = zap.NewNop()
	}

	store := &TokenStore{
		cfg:         cfg,
		tokens:      tokens,
		revocations: revocations,
		rateLimits:  rateLimits,
		audit:       audit,
		logger:      logger,
	}
	store.now = func() time.Time { return time.Now().UTC() }
	return store
}

// WithClock overrides the store clock for deterministic tests.
func (s *TokenStore) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Authenticate verifies a decoded opaque credential end to end: revocation
// cache, record lookup, status, secret comparison (honouring the rotation
// grace window), IP allow-list, and rate limit. An unknown token id and a
// wrong secret are indistinguishable to the caller.
func (s *TokenStore) Authenticate(ctx context.Context, decoded *security.DecodedCredential, clientIP string) (*domain.TokenRecord, error) {
	if decoded == nil || decoded.TokenID == "" || decoded.Secret == "" {
		return nil, ErrMalformedCredential
	}

	now := s.now()

	if s.revocations != nil {
		revoked, reason, err := s.revocations.IsRevoked(ctx, decoded.TokenID)
		if err != nil {
			s.logger.Warn("revocation cache unavailable, falling through to store",
				zap.String("token_id", decoded.TokenID),
				zap.Error(err),
			)
		} else if revoked {
			s.recordAuth(ctx, decoded, "", "denied", "revoked: "+reason, clientIP, now)
			return nil, ErrTokenRevoked
		}
	}

	record, err := s.Lookup(ctx, decoded.TokenID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.recordAuth(ctx, decoded, "", "denied", "unknown token", clientIP, now)
			return nil, ErrSignatureInvalid
		}
		return nil, err
	}

	if record.Kind != decoded.Kind {
		s.recordAuth(ctx, decoded, ownerID(record), "denied", "kind mismatch", clientIP, now)
		return nil, ErrSignatureInvalid
	}

	if record.IsRevoked() {
		s.recordAuth(ctx, decoded, ownerID(record), "denied", "revoked", clientIP, now)
		return nil, ErrTokenRevoked
	}

	if record.IsExpired(now) {
		s.recordAuth(ctx, decoded, ownerID(record), "denied", "expired", clientIP, now)
		return nil, ErrTokenExpired
	}

	if !s.verifySecret(record, decoded.Secret, now) {
		s.recordAuth(ctx, decoded, ownerID(record), "denied", "secret mismatch", clientIP, now)
		return nil, ErrSignatureInvalid
	}

	if clientIP != "" && !record.IPAllowed(clientIP) {
		s.recordAuth(ctx, decoded, ownerID(record), "denied", "ip blocked", clientIP, now)
		return nil, ErrSignatureInvalid
	}

	if err := s.enforceRateLimit(ctx, record); err != nil {
		s.recordAuth(ctx, decoded, ownerID(record), "denied", "rate limited", clientIP, now)
		return nil, err
	}

	if err := s.tokens.RecordUsage(ctx, record.ID, now, "verified"); err != nil {
		s.logger.Warn("record token usage failed",
			zap.String("token_id", record.ID),
			zap.Error(err),
		)
	}

	s.recordAuth(ctx, decoded, ownerID(record), "allowed", "", clientIP, now)

	return record, nil
}

// Lookup fetches a token record under the bounded store policy: one attempt,
// one retry after a short backoff, then ErrStoreUnavailable.
func (s *TokenStore) Lookup(ctx context.Context, tokenID string) (*domain.TokenRecord, error) {
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return nil, ErrMalformedCredential
	}

	record, err := s.getWithTimeout(ctx, tokenID)
	if err == nil || errors.Is(err, repository.ErrNotFound) {
		return record, err
	}

	s.logger.Warn("token lookup failed, retrying once",
		zap.String("token_id", tokenID),
		zap.Error(err),
	)

	backoff := s.cfg.Auth.StoreRetryBackoff
	if backoff > 0 {
		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, ctx.Err())
		}
	}

	record, err = s.getWithTimeout(ctx, tokenID)
	if err == nil || errors.Is(err, repository.ErrNotFound) {
		return record, err
	}

	return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func (s *TokenStore) getWithTimeout(ctx context.Context, tokenID string) (*domain.TokenRecord, error) {
	timeout := s.cfg.Auth.StoreTimeout
	if timeout <= 0 {
		return s.tokens.GetByID(ctx, tokenID)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.tokens.GetByID(ctx, tokenID)
}

func (s *TokenStore) verifySecret(record *domain.TokenRecord, secret string, now time.Time) bool {
	if security.VerifySecretHash(record.SecretHash, secret) {
		return true
	}
	if record.InRotationGrace(now) && record.PrevSecretHash != nil {
		return security.VerifySecretHash(*record.PrevSecretHash, secret)
	}
	return false
}

func (s *TokenStore) enforceRateLimit(ctx context.Context, record *domain.TokenRecord) error {
	if s.rateLimits == nil {
		return nil
	}

	limit := s.cfg.RateLimit.MaxPerWindow
	window := s.cfg.RateLimit.Window
	if record.RateLimit != nil {
		limit = record.RateLimit.MaxPerWindow
		window = record.RateLimit.Window
	}
	if limit <= 0 || window <= 0 {
		return nil
	}

	allowed, err := s.rateLimits.Allow(ctx, record.ID, limit, window)
	if err != nil {
		// The limiter is advisory; verification already succeeded on the
		// authoritative store.
		s.logger.Warn("rate limit store unavailable, admitting request",
			zap.String("token_id", record.ID),
			zap.Error(err),
		)
		return nil
	}
	if !allowed {
		return ErrRateLimitExceeded
	}

	return nil
}

// IssueTokenInput captures the payload for minting an opaque token.
type IssueTokenInput struct {
	Name             string
	UserID           string
	ServiceAccountID string
	PublisherID      string
	Scopes           []string
	AllowedIPs       []string
	RateLimit        *domain.RateLimitPolicy
	TTL              time.Duration
}

// IssuedToken pairs the stored record with the raw bearer string. The raw
// value exists only in this response; the store keeps the hash.
type IssuedToken struct {
	Record domain.TokenRecord
	Raw    string
}

// IssueServiceToken mints a long-lived service token bound to a service
// account.
func (s *TokenStore) IssueServiceToken(ctx context.Context, input IssueTokenInput) (*IssuedToken, error) {
	accountID := strings.TrimSpace(input.ServiceAccountID)
	if accountID == "" {
		return nil, fmt.Errorf("service account id is required")
	}

	return s.issue(ctx, domain.CredentialKindService, security.ServiceTokenPrefix, accountID, input)
}

// IssuePAT mints a personal access token owned by a user.
func (s *TokenStore) IssuePAT(ctx context.Context, input IssueTokenInput) (*IssuedToken, error) {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	return s.issue(ctx, domain.CredentialKindPAT, security.PATPrefix, userID, input)
}

func (s *TokenStore) issue(ctx context.Context, kind domain.CredentialKind, prefix, actorID string, input IssueTokenInput) (*IssuedToken, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("token name is required")
	}

	generated, err := security.GenerateTokenSecret(prefix)
	if err != nil {
		return nil, fmt.Errorf("generate token secret: %w", err)
	}

	now := s.now()
	record := domain.TokenRecord{
		ID:         generated.TokenID,
		Kind:       kind,
		Name:       name,
		SecretHash: generated.Hash,
		AllowedIPs: input.AllowedIPs,
		RateLimit:  input.RateLimit,
		Status:     domain.TokenStatusActive,
		Version:    1,
		CreatedAt:  now,
	}

	// A token issued without scopes stores nil and inherits its owner's
	// full grant at resolve time.
	if scopes := normalizeScopes(input.Scopes); len(scopes) > 0 {
		record.Scopes = scopes
	}

	if userID := strings.TrimSpace(input.UserID); userID != "" {
		record.UserID = &userID
	}
	if accountID := strings.TrimSpace(input.ServiceAccountID); accountID != "" {
		record.ServiceAccountID = &accountID
	}
	if publisherID := strings.TrimSpace(input.PublisherID); publisherID != "" {
		record.PublisherID = &publisherID
	}
	if input.TTL > 0 {
		expiresAt := now.Add(input.TTL)
		record.ExpiresAt = &expiresAt
	}

	if err := s.tokens.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("create token record: %w", err)
	}

	s.recordLifecycle(ctx, domain.TokenActionIssued, record.ID, kind, actorID, "", now)

	return &IssuedToken{Record: record, Raw: generated.Raw}, nil
}

// Rotate installs a fresh secret for the token, keeping the previous one
// valid until the grace window closes. The conditional update makes the swap
// linearizable with concurrent verifies.
func (s *TokenStore) Rotate(ctx context.Context, tokenID, actorID string) (*IssuedToken, error) {
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return nil, fmt.Errorf("token id is required")
	}

	record, err := s.Lookup(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	// A personal token answers only to its owner; anyone else reads it as
	// absent.
	if record.Kind == domain.CredentialKindPAT && !ownedByActor(record, actorID) {
		return nil, repository.ErrNotFound
	}
	if record.IsRevoked() {
		return nil, ErrTokenRevoked
	}

	generated, err := security.GenerateTokenSecret(prefixFor(record.Kind))
	if err != nil {
		return nil, fmt.Errorf("generate rotated secret: %w", err)
	}

	now := s.now()
	graceEnd := now.Add(s.cfg.Auth.RotationGracePeriod)

	rotated, err := s.tokens.Rotate(ctx, tokenID, generated.Hash, graceEnd, now)
	if err != nil {
		return nil, fmt.Errorf("rotate token: %w", err)
	}
	if !rotated {
		return nil, ErrTokenRevoked
	}

	s.recordLifecycle(ctx, domain.TokenActionRotated, tokenID, record.Kind, actorID, "", now)

	fresh, err := s.Lookup(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	raw := fmt.Sprintf("%s_%s_%s", prefixFor(record.Kind), tokenID, generated.Secret)
	return &IssuedToken{Record: *fresh, Raw: raw}, nil
}

// Revoke flips the record to revoked and marks the revocation cache
// synchronously so subsequent verifies observe it everywhere.
func (s *TokenStore) Revoke(ctx context.Context, tokenID, actorID, reason string) error {
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return fmt.Errorf("token id is required")
	}

	now := s.now()

	record, err := s.Lookup(ctx, tokenID)
	if err != nil {
		return err
	}
	if record.Kind == domain.CredentialKindPAT && !ownedByActor(record, actorID) {
		return repository.ErrNotFound
	}

	revoked, err := s.tokens.Revoke(ctx, tokenID, now)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}

	if s.revocations != nil {
		ttl := revocationTTL
		if record.ExpiresAt != nil {
			if remaining := record.ExpiresAt.Sub(now); remaining > 0 && remaining < ttl {
				ttl = remaining
			}
		}
		if err := s.revocations.MarkRevoked(ctx, tokenID, reason, ttl); err != nil {
			s.logger.Warn("mark revoked in cache failed",
				zap.String("token_id", tokenID),
				zap.Error(err),
			)
		}
	}

	if revoked {
		s.recordLifecycle(ctx, domain.TokenActionRevoked, tokenID, record.Kind, actorID, reason, now)
	}

	return nil
}

// ListByUser returns the user's tokens with secret hashes blanked.
func (s *TokenStore) ListByUser(ctx context.Context, userID string) ([]domain.TokenRecord, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	records, err := s.tokens.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}

	for i := range records {
		records[i].SecretHash = ""
		records[i].PrevSecretHash = nil
	}

	return records, nil
}

func (s *TokenStore) recordAuth(ctx context.Context, decoded *security.DecodedCredential, principalID, outcome, reason, clientIP string, at time.Time) {
	if s.audit == nil {
		return
	}

	event := domain.AuthenticationEvent{
		EventID:     uuid.NewString(),
		Outcome:     outcome,
		Reason:      reason,
		PrincipalID: principalID,
		Credential:  decoded.Kind,
		TokenID:     decoded.TokenID,
		At:          at,
	}
	if clientIP != "" {
		event.IP = &clientIP
	}

	if err := s.audit.RecordAuthentication(ctx, event); err != nil {
		s.logger.Warn("record authentication event failed", zap.Error(err))
	}
}

func (s *TokenStore) recordLifecycle(ctx context.Context, action, tokenID string, kind domain.CredentialKind, actorID, reason string, at time.Time) {
	if s.audit == nil {
		return
	}

	event := domain.TokenLifecycleEvent{
		EventID: uuid.NewString(),
		Action:  action,
		TokenID: tokenID,
		Kind:    kind,
		ActorID: actorID,
		Reason:  reason,
		At:      at,
	}

	if err := s.audit.RecordTokenLifecycle(ctx, event); err != nil {
		s.logger.Warn("record token lifecycle event failed", zap.Error(err))
	}
}

func ownedByActor(record *domain.TokenRecord, actorID string) bool {
	return record.UserID != nil && actorID != "" && *record.UserID == actorID
}

func ownerID(record *domain.TokenRecord) string {
	switch {
	case record.UserID != nil:
		return *record.UserID
	case record.ServiceAccountID != nil:
		return *record.ServiceAccountID
	default:
		return ""
	}
}

func prefixFor(kind domain.CredentialKind) string {
	if kind == domain.CredentialKindService {
		return security.ServiceTokenPrefix
	}
	return security.PATPrefix
}

func normalizeScopes(scopes []string) []string {
	normalized := make([]string, 0, len(scopes))
	seen := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		scope = strings.TrimSpace(scope)
		if scope == "" {
			continue
		}
		if _, ok := seen[scope]; ok {
			continue
		}
		seen[scope] = struct{}{}
		normalized = append(normalized, scope)
	}
	return normalized
}
