package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bshelton-songtrust/publishing-platform/internal/core/domain"
	"github.com/bshelton-songtrust/publishing-platform/internal/infra/security"
	"github.com/bshelton-songtrust/publishing-platform/internal/repository"
)

type authFixture struct {
	service  *AuthService
	envelope *security.Envelope
	registry *SessionRegistry
	sessions *stubSessionRepo
}

func newAuthFixture(t *testing.T, memberships *stubMembershipRepo) *authFixture {
	t.Helper()

	hash, err := security.HashPassword("open sesame")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	users := &stubUserRepo{
		getByEmailFn: func(_ context.Context, email string) (*domain.User, error) {
			if email != "writer@example.com" {
				return nil, repository.ErrNotFound
			}
			return &domain.User{
				ID:           "user-1",
				Email:        email,
				PasswordHash: hash,
				Status:       domain.UserStatusActive,
			}, nil
		},
	}

	cfg := testConfig()
	envelope := newTestEnvelope(t)
	sessions := newStubSessionRepo()
	registry := NewSessionRegistry(cfg, sessions, nil, nil)
	registry.WithClock(testClock)

	service := NewAuthService(cfg, users, memberships, activePublisher("pub-1"), registry, envelope, nil)
	service.WithClock(testClock)

	return &authFixture{service: service, envelope: envelope, registry: registry, sessions: sessions}
}

func singleMembership() *stubMembershipRepo {
	return &stubMembershipRepo{
		getFn: func(_ context.Context, userID, publisherID string) (*domain.Membership, error) {
			if publisherID != "pub-1" {
				return nil, repository.ErrNotFound
			}
			return membershipFixture(userID, publisherID), nil
		},
		listFn: func(_ context.Context, userID string) ([]domain.Membership, error) {
			return []domain.Membership{*membershipFixture(userID, "pub-1")}, nil
		},
	}
}

func TestLoginSuccess(t *testing.T) {
	f := newAuthFixture(t, singleMembership())

	result, err := f.service.Login(context.Background(), LoginInput{
		Email:       "Writer@Example.com",
		Password:    "open sesame",
		PublisherID: "pub-1",
	})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	if result.User.PasswordHash != "" {
		t.Fatal("password hash leaked in the login result")
	}
	if result.Session.UserID != "user-1" || result.Session.PublisherID != "pub-1" {
		t.Fatalf("session = %+v", result.Session)
	}

	claims, err := f.envelope.Verify(result.Token, testClock)
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if claims.UserID != "user-1" || claims.SessionID != result.Session.ID || claims.PublisherID != "pub-1" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestLoginIndistinguishableFailures(t *testing.T) {
	f := newAuthFixture(t, singleMembership())

	_, unknownErr := f.service.Login(context.Background(), LoginInput{
		Email:    "nobody@example.com",
		Password: "open sesame",
	})
	_, wrongErr := f.service.Login(context.Background(), LoginInput{
		Email:    "writer@example.com",
		Password: "wrong password",
	})

	if !errors.Is(unknownErr, ErrInvalidCredentials) {
		t.Fatalf("unknown email = %v, want ErrInvalidCredentials", unknownErr)
	}
	if !errors.Is(wrongErr, ErrInvalidCredentials) {
		t.Fatalf("wrong password = %v, want ErrInvalidCredentials", wrongErr)
	}
}

func TestLoginInactiveUser(t *testing.T) {
	hash, err := security.HashPassword("open sesame")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	users := &stubUserRepo{
		getByEmailFn: func(_ context.Context, email string) (*domain.User, error) {
			return &domain.User{
				ID:           "user-1",
				Email:        email,
				PasswordHash: hash,
				Status:       domain.UserStatusSuspended,
			}, nil
		},
	}

	cfg := testConfig()
	registry := NewSessionRegistry(cfg, newStubSessionRepo(), nil, nil)
	service := NewAuthService(cfg, users, singleMembership(), activePublisher("pub-1"), registry, newTestEnvelope(t), nil)

	_, err = service.Login(context.Background(), LoginInput{
		Email:    "writer@example.com",
		Password: "open sesame",
	})
	if !errors.Is(err, ErrPrincipalInactive) {
		t.Fatalf("Login = %v, want ErrPrincipalInactive", err)
	}
}

func TestLoginInfersSinglePublisher(t *testing.T) {
	f := newAuthFixture(t, singleMembership())

	result, err := f.service.Login(context.Background(), LoginInput{
		Email:    "writer@example.com",
		Password: "open sesame",
	})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if result.Session.PublisherID != "pub-1" {
		t.Fatalf("inferred publisher = %q, want pub-1", result.Session.PublisherID)
	}
}

func TestLoginAmbiguousPublisher(t *testing.T) {
	memberships := &stubMembershipRepo{
		listFn: func(_ context.Context, userID string) ([]domain.Membership, error) {
			return []domain.Membership{
				*membershipFixture(userID, "pub-1"),
				*membershipFixture(userID, "pub-2"),
			}, nil
		},
	}
	f := newAuthFixture(t, memberships)

	_, err := f.service.Login(context.Background(), LoginInput{
		Email:    "writer@example.com",
		Password: "open sesame",
	})
	if err == nil || !strings.Contains(err.Error(), "publisher id is required") {
		t.Fatalf("ambiguous membership = %v, want explicit-selection error", err)
	}
}

func TestLoginNoActiveMembership(t *testing.T) {
	memberships := &stubMembershipRepo{
		listFn: func(_ context.Context, userID string) ([]domain.Membership, error) {
			m := membershipFixture(userID, "pub-1")
			m.Status = domain.MembershipStatusRemoved
			return []domain.Membership{*m}, nil
		},
	}
	f := newAuthFixture(t, memberships)

	_, err := f.service.Login(context.Background(), LoginInput{
		Email:    "writer@example.com",
		Password: "open sesame",
	})
	if !errors.Is(err, ErrNoMembership) {
		t.Fatalf("Login = %v, want ErrNoMembership", err)
	}
}

func TestLoginSuspendedMembership(t *testing.T) {
	memberships := &stubMembershipRepo{
		getFn: func(_ context.Context, userID, publisherID string) (*domain.Membership, error) {
			m := membershipFixture(userID, publisherID)
			m.Status = domain.MembershipStatusSuspended
			return m, nil
		},
	}
	f := newAuthFixture(t, memberships)

	_, err := f.service.Login(context.Background(), LoginInput{
		Email:       "writer@example.com",
		Password:    "open sesame",
		PublisherID: "pub-1",
	})
	if !errors.Is(err, ErrMembershipSuspended) {
		t.Fatalf("Login = %v, want ErrMembershipSuspended", err)
	}
}

func TestLogoutTerminatesSession(t *testing.T) {
	f := newAuthFixture(t, singleMembership())

	result, err := f.service.Login(context.Background(), LoginInput{
		Email:       "writer@example.com",
		Password:    "open sesame",
		PublisherID: "pub-1",
	})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	if err := f.service.Logout(context.Background(), result.Session.ID); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	if _, err := f.registry.Liveness(context.Background(), result.Session.ID); !errors.Is(err, ErrSessionInactive) {
		t.Fatalf("session still live after logout: %v", err)
	}
}
