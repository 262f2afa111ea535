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

// EstablishInput carries everything needed to authenticate one request.
type EstablishInput struct {
	Bearer      string
	PublisherID string
	ClientIP    string
	UserAgent   string
}

// SecurityContextManager runs the full request pipeline: credential decode,
// verification, principal load, and permission resolution, producing a
// frozen SecurityContext. Contexts live for one request and are discarded by
// Teardown.
type SecurityContextManager struct {
	cfg             *config.AppConfig
	envelope        *security.Envelope
	tokenStore      *TokenStore
	sessions        *SessionRegistry
	resolver        *PermissionResolver
	users           port.UserRepository
	serviceAccounts port.ServiceAccountRepository
	audit           port.AuditSink
	logger          *zap.Logger
	now             func() time.Time
}

// NewSecurityContextManager constructs a SecurityContextManager instance.
func NewSecurityContextManager(
	cfg *config.AppConfig,
	envelope *security.Envelope,
	tokenStore *TokenStore,
	sessions *SessionRegistry,
	resolver *PermissionResolver,
	users port.UserRepository,
	serviceAccounts port.ServiceAccountRepository,
	audit port.AuditSink,
	logger *zap.Logger,
) *SecurityContextManager {
	if logger == nil {
		logger = zap.NewNop()
	}

	manager := &SecurityContextManager{
		cfg:             cfg,
		envelope:        envelope,
		tokenStore:      tokenStore,
		sessions:        sessions,
		resolver:        resolver,
		users:           users,
		serviceAccounts: serviceAccounts,
		audit:           audit,
		logger:          logger,
	}
	manager.now = func() time.Time { return time.Now().UTC() }
	return manager
}

// WithClock overrides the manager clock for deterministic tests.
func (m *SecurityContextManager) WithClock(clock func() time.Time) {
	if clock != nil {
		m.now = clock
	}
}

// Establish authenticates the bearer credential and resolves permissions,
// returning the request's SecurityContext. Every failure maps to one of the
// package sentinel errors.
func (m *SecurityContextManager) Establish(ctx context.Context, input EstablishInput) (*domain.SecurityContext, error) {
	decoded, err := security.Decode(input.Bearer)
	if err != nil {
		return nil, ErrMalformedCredential
	}

	switch decoded.Kind {
	case domain.CredentialKindSession:
		return m.establishSession(ctx, decoded, input)
	case domain.CredentialKindService, domain.CredentialKindPAT:
		return m.establishOpaque(ctx, decoded, input)
	default:
		return nil, ErrMalformedCredential
	}
}

// Teardown ends the context's lifetime. Contexts hold no external resources;
// the call exists so transport middleware releases them at one explicit
// point and never lets a context outlive its request.
func (m *SecurityContextManager) Teardown(sc *domain.SecurityContext) {
	if sc == nil {
		return
	}
	m.logger.Debug("security context discarded",
		zap.String("principal_id", sc.Principal().ID()),
		zap.String("publisher_id", sc.PublisherID()),
	)
}

// Require checks one permission against the context and records a denial
// when the check fails.
func (m *SecurityContextManager) Require(ctx context.Context, sc *domain.SecurityContext, permission string) error {
	if sc == nil {
		return ErrPermissionDenied
	}
	if sc.Allows(permission) {
		return nil
	}

	if m.audit != nil {
		event := domain.PermissionDeniedEvent{
			EventID:     uuid.NewString(),
			PrincipalID: sc.Principal().ID(),
			PublisherID: sc.PublisherID(),
			Permission:  permission,
			At:          m.now(),
		}
		if err := m.audit.RecordPermissionDenied(ctx, event); err != nil {
			m.logger.Warn("record permission denied event failed", zap.Error(err))
		}
	}

	return ErrPermissionDenied
}

func (m *SecurityContextManager) establishSession(ctx context.Context, decoded *security.DecodedCredential, input EstablishInput) (*domain.SecurityContext, error) {
	claims, err := m.envelope.Verify(decoded.SessionToken, m.now)
	if err != nil {
		if errors.Is(err, security.ErrEnvelopeExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrSignatureInvalid
	}

	// Signature proves issuance; the registry decides liveness.
	session, err := m.sessions.Liveness(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, ErrSessionInactive) {
			return nil, ErrTokenRevoked
		}
		return nil, err
	}

	user, err := m.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPrincipalInactive
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if !user.CanAuthenticate() {
		return nil, ErrPrincipalInactive
	}

	publisherID := strings.TrimSpace(input.PublisherID)
	if publisherID == "" {
		publisherID = session.PublisherID
	}

	principal := domain.UserPrincipal(*user)

	// Session credentials carry the principal's full grant, so the scope
	// filter stays nil.
	resolved, err := m.resolver.Resolve(ctx, ResolveInput{
		Principal:   principal,
		PublisherID: publisherID,
	})
	if err != nil {
		return nil, err
	}

	m.touchSession(ctx, session.ID, input)

	return domain.NewSecurityContext(
		principal,
		publisherID,
		resolved.Permissions,
		resolved.Restrictions,
		domain.CredentialKindSession,
		"",
		session.ID,
		m.now(),
	), nil
}

func (m *SecurityContextManager) establishOpaque(ctx context.Context, decoded *security.DecodedCredential, input EstablishInput) (*domain.SecurityContext, error) {
	record, err := m.tokenStore.Authenticate(ctx, decoded, input.ClientIP)
	if err != nil {
		return nil, err
	}

	principal, err := m.loadPrincipal(ctx, record)
	if err != nil {
		return nil, err
	}

	publisherID := strings.TrimSpace(input.PublisherID)
	if publisherID == "" && record.PublisherID != nil {
		publisherID = *record.PublisherID
	}

	// A publisher-bound token never resolves outside its own tenant.
	if record.PublisherID != nil && publisherID != *record.PublisherID {
		return nil, ErrNoMembership
	}

	// Declared scopes narrow the grant by intersection. A token issued
	// without scopes inherits its principal's full grant, like a session.
	resolved, err := m.resolver.Resolve(ctx, ResolveInput{
		Principal:        principal,
		PublisherID:      publisherID,
		CredentialScopes: record.Scopes,
	})
	if err != nil {
		return nil, err
	}

	return domain.NewSecurityContext(
		principal,
		publisherID,
		resolved.Permissions,
		resolved.Restrictions,
		record.Kind,
		record.ID,
		"",
		m.now(),
	), nil
}

func (m *SecurityContextManager) loadPrincipal(ctx context.Context, record *domain.TokenRecord) (domain.Principal, error) {
	switch {
	case record.Kind == domain.CredentialKindService && record.ServiceAccountID != nil:
		account, err := m.serviceAccounts.GetByID(ctx, *record.ServiceAccountID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.Principal{}, ErrPrincipalInactive
			}
			return domain.Principal{}, fmt.Errorf("get service account: %w", err)
		}
		if !account.CanAuthenticate() {
			return domain.Principal{}, ErrPrincipalInactive
		}
		return domain.ServiceAccountPrincipal(*account), nil

	case record.Kind == domain.CredentialKindPAT && record.UserID != nil:
		user, err := m.users.GetByID(ctx, *record.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.Principal{}, ErrPrincipalInactive
			}
			return domain.Principal{}, fmt.Errorf("get user: %w", err)
		}
		if !user.CanAuthenticate() {
			return domain.Principal{}, ErrPrincipalInactive
		}
		return domain.UserPrincipal(*user), nil

	default:
		return domain.Principal{}, ErrPrincipalInactive
	}
}

func (m *SecurityContextManager) touchSession(ctx context.Context, sessionID string, input EstablishInput) {
	var ip, userAgent *string
	if v := strings.TrimSpace(input.ClientIP); v != "" {
		ip = &v
	}
	if v := strings.TrimSpace(input.UserAgent); v != "" {
		userAgent = &v
	}
	m.sessions.Touch(ctx, sessionID, ip, userAgent)
}
