package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bshelton-songtrust/publishing-platform/internal/core/domain"
	"github.com/bshelton-songtrust/publishing-platform/internal/core/port"
	"github.com/bshelton-songtrust/publishing-platform/internal/infra/config"
	"github.com/bshelton-songtrust/publishing-platform/internal/infra/logger"
	"github.com/bshelton-songtrust/publishing-platform/internal/infra/security"
	"github.com/bshelton-songtrust/publishing-platform/internal/repository"
)

// LoginInput captures an interactive credential exchange.
type LoginInput struct {
	Email       string
	Password    string
	PublisherID string
	IP          *string
	UserAgent   *string
}

// LoginResult carries the signed session token and the opened session.
type LoginResult struct {
	Token   string
	Session domain.Session
	User    domain.User
}

// AuthService handles interactive login and logout. Successful login opens a
// server-side session and signs a session token bound to it.
type AuthService struct {
	cfg         *config.AppConfig
	users       port.UserRepository
	memberships port.MembershipRepository
	publishers  port.PublisherRepository
	sessions    *SessionRegistry
	envelope    *security.Envelope
	logger      *zap.Logger
	now         func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(
	cfg *config.AppConfig,
	users port.UserRepository,
	memberships port.MembershipRepository,
	publishers port.PublisherRepository,
	sessions *SessionRegistry,
	envelope *security.Envelope,
	log *zap.Logger,
) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}

	service := &AuthService{
		cfg:         cfg,
		users:       users,
		memberships: memberships,
		publishers:  publishers,
		sessions:    sessions,
		envelope:    envelope,
		logger:      log,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service
}

// WithClock overrides the service clock for deterministic tests.
func (s *AuthService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Login verifies the password, picks the publisher context, opens a session,
// and signs the session token. Unknown email and wrong password are
// indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || input.Password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		s.logger.Info("login rejected",
			zap.String("email", logger.MaskEmail(email)),
		)
		return nil, ErrInvalidCredentials
	}

	if !user.CanAuthenticate() {
		return nil, ErrPrincipalInactive
	}

	publisherID, err := s.selectPublisher(ctx, user.ID, strings.TrimSpace(input.PublisherID))
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.CreateSession(ctx, user.ID, publisherID, input.IP, input.UserAgent)
	if err != nil {
		return nil, err
	}

	claims, err := security.NewSessionClaims(security.SessionTokenOptions{
		UserID:      user.ID,
		SessionID:   session.ID,
		PublisherID: publisherID,
		Issuer:      s.cfg.App.Name,
		TTL:         s.cfg.JWT.SessionTokenTTL,
		IssuedAt:    s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("build session claims: %w", err)
	}

	token, err := s.envelope.Sign(claims)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}

	if err := s.users.RecordLogin(ctx, user.ID); err != nil {
		s.logger.Warn("record login failed",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	}

	result := &LoginResult{
		Token:   token,
		Session: *session,
		User:    *user,
	}
	result.User.PasswordHash = ""

	return result, nil
}

// Logout terminates the referenced session.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.Terminate(ctx, sessionID, "logout")
}

// selectPublisher validates an explicit publisher choice, or infers the
// publisher when the user holds exactly one active membership.
func (s *AuthService) selectPublisher(ctx context.Context, userID, publisherID string) (string, error) {
	if publisherID != "" {
		membership, err := s.memberships.Get(ctx, userID, publisherID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return "", ErrNoMembership
			}
			return "", fmt.Errorf("get membership: %w", err)
		}
		if !membership.IsActive() {
			return "", ErrMembershipSuspended
		}
		return s.checkPublisher(ctx, publisherID)
	}

	memberships, err := s.memberships.ListByUser(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("list memberships: %w", err)
	}

	var active []domain.Membership
	for _, membership := range memberships {
		if membership.IsActive() {
			active = append(active, membership)
		}
	}

	switch len(active) {
	case 0:
		return "", ErrNoMembership
	case 1:
		return s.checkPublisher(ctx, active[0].PublisherID)
	default:
		return "", fmt.Errorf("publisher id is required: user belongs to %d publishers", len(active))
	}
}

func (s *AuthService) checkPublisher(ctx context.Context, publisherID string) (string, error) {
	publisher, err := s.publishers.GetByID(ctx, publisherID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrPublisherInaccessible
		}
		return "", fmt.Errorf("get publisher: %w", err)
	}

	if !publisher.Accessible(s.cfg.Auth.AllowTrialPublishers) {
		return "", ErrPublisherInaccessible
	}

	return publisher.ID, nil
}
