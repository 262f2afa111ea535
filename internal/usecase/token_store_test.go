package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bshelton-songtrust/publishing-platform/internal/core/domain"
	"github.com/bshelton-songtrust/publishing-platform/internal/infra/security"
	"github.com/bshelton-songtrust/publishing-platform/internal/repository"
)

var testClock = func() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func activeTokenRecord(tokenID, secret string) *domain.TokenRecord {
	userID := "user-1"
	return &domain.TokenRecord{
		ID:         tokenID,
		Kind:       domain.CredentialKindPAT,
		Name:       "ci token",
		SecretHash: security.HashSecret(secret),
		UserID:     &userID,
		Scopes:     []string{"works:read"},
		Status:     domain.TokenStatusActive,
		Version:    1,
		CreatedAt:  testClock().Add(-time.Hour),
	}
}

func patCredential(tokenID, secret string) *security.DecodedCredential {
	return &security.DecodedCredential{
		Kind:    domain.CredentialKindPAT,
		TokenID: tokenID,
		Secret:  secret,
	}
}

func TestAuthenticateSuccess(t *testing.T) {
	record := activeTokenRecord("tok-1", "secret-value")
	repo := &stubTokenRepo{
		getFn: func(_ context.Context, tokenID string) (*domain.TokenRecord, error) {
			if tokenID != "tok-1" {
				return nil, repository.ErrNotFound
			}
			copied := *record
			return &copied, nil
		},
	}
	audit := &recordingAudit{}

	store := NewTokenStore(testConfig(), repo, newStubRevocationStore(), &stubRateLimitStore{}, audit, nil)
	store.WithClock(testClock)

	got, err := store.Authenticate(context.Background(), patCredential("tok-1", "secret-value"), "203.0.113.9")
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if got.ID != "tok-1" {
		t.Fatalf("record id = %q", got.ID)
	}

	if len(audit.authentication) != 1 || audit.authentication[0].Outcome != "allowed" {
		t.Fatalf("expected one allowed audit record, got %+v", audit.authentication)
	}
}

func TestAuthenticateUnknownAndWrongSecretIndistinguishable(t *testing.T) {
	record := activeTokenRecord("tok-1", "secret-value")
	repo := &stubTokenRepo{
		getFn: func(_ context.Context, tokenID string) (*domain.TokenRecord, error) {
			if tokenID != "tok-1" {
				return nil, repository.ErrNotFound
			}
			copied := *record
			return &copied, nil
		},
	}

	store := NewTokenStore(testConfig(), repo, nil, nil, nil, nil)
	store.WithClock(testClock)

	_, unknownErr := store.Authenticate(context.Background(), patCredential("tok-missing", "secret-value"), "")
	_, wrongErr := store.Authenticate(context.Background(), patCredential("tok-1", "wrong-secret"), "")

	if !errors.Is(unknownErr, ErrSignatureInvalid) {
		t.Fatalf("unknown token = %v, want ErrSignatureInvalid", unknownErr)
	}
	if !errors.Is(wrongErr, ErrSignatureInvalid) {
		t.Fatalf("wrong secret = %v, want ErrSignatureInvalid", wrongErr)
	}
}

func TestAuthenticateRevokedViaCache(t *testing.T) {
	revocations := newStubRevocationStore()
	if err := revocations.MarkRevoked(context.Background(), "tok-1", "compromised", time.Hour); err != nil {
		t.Fatalf("MarkRevoked: %v", err)
	}

	repo := &stubTokenRepo{
		getFn: func(context.Context, string) (*domain.TokenRecord, error) {
			t.Fatal("revoked credential must not reach the store")
			return nil, nil
		},
	}

	store := NewTokenStore(testConfig(), repo, revocations, nil, nil, nil)
	store.WithClock(testClock)

	_, err := store.Authenticate(context.Background(), patCredential("tok-1", "secret-value"), "")
	if !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("Authenticate = %v, want ErrTokenRevoked", err)
	}
}

func TestAuthenticateExpired(t *testing.T) {
	record := activeTokenRecord("tok-1", "secret-value")
	expired := testClock().Add(-time.Minute)
	record.ExpiresAt = &expired

	repo := &stubTokenRepo{
		getFn: func(context.Context, string) (*domain.TokenRecord, error) {
			copied := *record
			return &copied, nil
		},
	}

	store := NewTokenStore(testConfig(), repo, nil, nil, nil, nil)
	store.WithClock(testClock)

	_, err := store.Authenticate(context.Background(), patCredential("tok-1", "secret-value"), "")
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("Authenticate = %v, want ErrTokenExpired", err)
	}
}

func TestAuthenticateRotationGrace(t *testing.T) {
	record := activeTokenRecord("tok-1", "new-secret")
	oldHash := security.HashSecret("old-secret")
	graceEnd := testClock().Add(time.Hour)
	record.Status = domain.TokenStatusRotating
	record.PrevSecretHash = &oldHash
	record.RotationGraceEnd = &graceEnd

	repo := &stubTokenRepo{
		getFn: func(context.Context, string) (*domain.TokenRecord, error) {
			copied := *record
			return &copied, nil
		},
	}

	store := NewTokenStore(testConfig(), repo, nil, nil, nil, nil)
	store.WithClock(testClock)

	if _, err := store.Authenticate(context.Background(), patCredential("tok-1", "new-secret"), ""); err != nil {
		t.Fatalf("new secret rejected during grace: %v", err)
	}
	if _, err := store.Authenticate(context.Background(), patCredential("tok-1", "old-secret"), ""); err != nil {
		t.Fatalf("old secret rejected during grace: %v", err)
	}

	// After the grace window only the new secret verifies.
	store.WithClock(func() time.Time { return graceEnd.Add(time.Minute) })
	if _, err := store.Authenticate(context.Background(), patCredential("tok-1", "old-secret"), ""); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("old secret after grace = %v, want ErrSignatureInvalid", err)
	}
}

func TestAuthenticateIPAllowList(t *testing.T) {
	record := activeTokenRecord("tok-1", "secret-value")
	record.AllowedIPs = []string{"203.0.113.9"}

	repo := &stubTokenRepo{
		getFn: func(context.Context, string) (*domain.TokenRecord, error) {
			copied := *record
			return &copied, nil
		},
	}

	store := NewTokenStore(testConfig(), repo, nil, nil, nil, nil)
	store.WithClock(testClock)

	if _, err := store.Authenticate(context.Background(), patCredential("tok-1", "secret-value"), "203.0.113.9"); err != nil {
		t.Fatalf("allowed ip rejected: %v", err)
	}
	if _, err := store.Authenticate(context.Background(), patCredential("tok-1", "secret-value"), "198.51.100.1"); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("blocked ip = %v, want ErrSignatureInvalid", err)
	}
}

func TestAuthenticateRateLimit(t *testing.T) {
	record := activeTokenRecord("tok-1", "secret-value")
	record.RateLimit = &domain.RateLimitPolicy{MaxPerWindow: 1, Window: time.Minute}

	repo := &stubTokenRepo{
		getFn: func(context.Context, string) (*domain.TokenRecord, error) {
			copied := *record
			return &copied, nil
		},
	}

	calls := 0
	limiter := &stubRateLimitStore{
		allowFn: func(_ context.Context, _ string, limit int, _ time.Duration) (bool, error) {
			if limit != 1 {
				t.Fatalf("limit = %d, want record override 1", limit)
			}
			calls++
			return calls == 1, nil
		},
	}

	store := NewTokenStore(testConfig(), repo, nil, limiter, nil, nil)
	store.WithClock(testClock)

	if _, err := store.Authenticate(context.Background(), patCredential("tok-1", "secret-value"), ""); err != nil {
		t.Fatalf("first use rejected: %v", err)
	}
	if _, err := store.Authenticate(context.Background(), patCredential("tok-1", "secret-value"), ""); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("second use = %v, want ErrRateLimitExceeded", err)
	}
}

func TestAuthenticateLimiterOutageAdmits(t *testing.T) {
	record := activeTokenRecord("tok-1", "secret-value")
	repo := &stubTokenRepo{
		getFn: func(context.Context, string) (*domain.TokenRecord, error) {
			copied := *record
			return &copied, nil
		},
	}
	limiter := &stubRateLimitStore{
		allowFn: func(context.Context, string, int, time.Duration) (bool, error) {
			return false, fmt.Errorf("redis down")
		},
	}

	store := NewTokenStore(testConfig(), repo, nil, limiter, nil, nil)
	store.WithClock(testClock)

	if _, err := store.Authenticate(context.Background(), patCredential("tok-1", "secret-value"), ""); err != nil {
		t.Fatalf("limiter outage must admit the request, got %v", err)
	}
}

func TestLookupFailsClosedAfterRetry(t *testing.T) {
	attempts := 0
	repo := &stubTokenRepo{
		getFn: func(context.Context, string) (*domain.TokenRecord, error) {
			attempts++
			return nil, fmt.Errorf("connection refused")
		},
	}

	store := NewTokenStore(testConfig(), repo, nil, nil, nil, nil)
	store.WithClock(testClock)

	_, err := store.Authenticate(context.Background(), patCredential("tok-1", "secret-value"), "")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("Authenticate = %v, want ErrStoreUnavailable", err)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want exactly one retry", attempts)
	}
}

func TestLookupRetriesOnceThenSucceeds(t *testing.T) {
	record := activeTokenRecord("tok-1", "secret-value")
	attempts := 0
	repo := &stubTokenRepo{
		getFn: func(context.Context, string) (*domain.TokenRecord, error) {
			attempts++
			if attempts == 1 {
				return nil, fmt.Errorf("connection refused")
			}
			copied := *record
			return &copied, nil
		},
	}

	store := NewTokenStore(testConfig(), repo, nil, nil, nil, nil)
	store.WithClock(testClock)

	if _, err := store.Authenticate(context.Background(), patCredential("tok-1", "secret-value"), ""); err != nil {
		t.Fatalf("Authenticate after transient failure: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
}

func TestIssuePATReturnsRawOnce(t *testing.T) {
	var created domain.TokenRecord
	repo := &stubTokenRepo{
		createFn: func(_ context.Context, record domain.TokenRecord) error {
			created = record
			return nil
		},
	}
	audit := &recordingAudit{}

	store := NewTokenStore(testConfig(), repo, nil, nil, audit, nil)
	store.WithClock(testClock)

	issued, err := store.IssuePAT(context.Background(), IssueTokenInput{
		Name:   "ci token",
		UserID: "user-1",
		Scopes: []string{"works:read", "works:read", " writers:read "},
		TTL:    time.Hour,
	})
	if err != nil {
		t.Fatalf("IssuePAT returned error: %v", err)
	}

	decoded, err := security.Decode(issued.Raw)
	if err != nil {
		t.Fatalf("issued raw token does not decode: %v", err)
	}
	if decoded.Kind != domain.CredentialKindPAT {
		t.Fatalf("kind = %q, want pat", decoded.Kind)
	}

	if !security.VerifySecretHash(created.SecretHash, decoded.Secret) {
		t.Fatal("stored hash does not verify the issued secret")
	}
	if len(created.Scopes) != 2 {
		t.Fatalf("scopes = %v, want deduplicated pair", created.Scopes)
	}
	if created.ExpiresAt == nil || !created.ExpiresAt.Equal(testClock().Add(time.Hour)) {
		t.Fatalf("expiry = %v", created.ExpiresAt)
	}

	if len(audit.tokenEvents) != 1 || audit.tokenEvents[0].Action != domain.TokenActionIssued {
		t.Fatalf("expected issued lifecycle event, got %+v", audit.tokenEvents)
	}
}

func TestRotateKeepsGraceAndReturnsNewSecret(t *testing.T) {
	record := activeTokenRecord("tok-1", "old-secret")
	var rotatedHash string
	repo := &stubTokenRepo{
		getFn: func(context.Context, string) (*domain.TokenRecord, error) {
			copied := *record
			if rotatedHash != "" {
				copied.Status = domain.TokenStatusRotating
				copied.SecretHash = rotatedHash
			}
			return &copied, nil
		},
		rotateFn: func(_ context.Context, _ string, newSecretHash string, graceEnd, _ time.Time) (bool, error) {
			rotatedHash = newSecretHash
			want := testClock().Add(testConfig().Auth.RotationGracePeriod)
			if !graceEnd.Equal(want) {
				t.Fatalf("grace end = %v, want %v", graceEnd, want)
			}
			return true, nil
		},
	}

	store := NewTokenStore(testConfig(), repo, nil, nil, nil, nil)
	store.WithClock(testClock)

	issued, err := store.Rotate(context.Background(), "tok-1", "user-1")
	if err != nil {
		t.Fatalf("Rotate returned error: %v", err)
	}

	decoded, err := security.Decode(issued.Raw)
	if err != nil {
		t.Fatalf("rotated raw token does not decode: %v", err)
	}
	if !security.VerifySecretHash(rotatedHash, decoded.Secret) {
		t.Fatal("rotated hash does not verify the returned secret")
	}
}

func TestRotateRevokedToken(t *testing.T) {
	record := activeTokenRecord("tok-1", "secret-value")
	revokedAt := testClock().Add(-time.Minute)
	record.Status = domain.TokenStatusRevoked
	record.RevokedAt = &revokedAt

	repo := &stubTokenRepo{
		getFn: func(context.Context, string) (*domain.TokenRecord, error) {
			copied := *record
			return &copied, nil
		},
	}

	store := NewTokenStore(testConfig(), repo, nil, nil, nil, nil)
	store.WithClock(testClock)

	if _, err := store.Rotate(context.Background(), "tok-1", "user-1"); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("Rotate = %v, want ErrTokenRevoked", err)
	}
}

func TestRevokeMarksCacheSynchronously(t *testing.T) {
	record := activeTokenRecord("tok-1", "secret-value")
	repo := &stubTokenRepo{
		getFn: func(context.Context, string) (*domain.TokenRecord, error) {
			copied := *record
			return &copied, nil
		},
	}
	revocations := newStubRevocationStore()
	audit := &recordingAudit{}

	store := NewTokenStore(testConfig(), repo, revocations, nil, audit, nil)
	store.WithClock(testClock)

	if err := store.Revoke(context.Background(), "tok-1", "user-1", "compromised"); err != nil {
		t.Fatalf("Revoke returned error: %v", err)
	}

	revoked, reason, err := revocations.IsRevoked(context.Background(), "tok-1")
	if err != nil || !revoked || reason != "compromised" {
		t.Fatalf("revocation cache: revoked=%v reason=%q err=%v", revoked, reason, err)
	}

	if len(audit.tokenEvents) != 1 || audit.tokenEvents[0].Action != domain.TokenActionRevoked {
		t.Fatalf("expected revoked lifecycle event, got %+v", audit.tokenEvents)
	}

	// A verify racing the revoke now observes the cache marker even before
	// the database read.
	_, err = store.Authenticate(context.Background(), patCredential("tok-1", "secret-value"), "")
	if !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("Authenticate after revoke = %v, want ErrTokenRevoked", err)
	}
}

func TestRevokeIdempotent(t *testing.T) {
	record := activeTokenRecord("tok-1", "secret-value")
	revokeCalls := 0
	repo := &stubTokenRepo{
		getFn: func(context.Context, string) (*domain.TokenRecord, error) {
			copied := *record
			return &copied, nil
		},
		revokeFn: func(context.Context, string, time.Time) (bool, error) {
			revokeCalls++
			return revokeCalls == 1, nil
		},
	}
	audit := &recordingAudit{}

	store := NewTokenStore(testConfig(), repo, nil, nil, audit, nil)
	store.WithClock(testClock)

	if err := store.Revoke(context.Background(), "tok-1", "user-1", "cleanup"); err != nil {
		t.Fatalf("first Revoke: %v", err)
	}
	if err := store.Revoke(context.Background(), "tok-1", "user-1", "cleanup"); err != nil {
		t.Fatalf("second Revoke must be idempotent: %v", err)
	}

	if len(audit.tokenEvents) != 1 {
		t.Fatalf("lifecycle events = %d, want 1 (only the state change)", len(audit.tokenEvents))
	}
}

func TestIssuePATWithoutScopesStoresNil(t *testing.T) {
	var created domain.TokenRecord
	repo := &stubTokenRepo{
		createFn: func(_ context.Context, record domain.TokenRecord) error {
			created = record
			return nil
		},
	}

	store := NewTokenStore(testConfig(), repo, nil, nil, nil, nil)
	store.WithClock(testClock)

	if _, err := store.IssuePAT(context.Background(), IssueTokenInput{
		Name:   "unscoped",
		UserID: "user-1",
	}); err != nil {
		t.Fatalf("IssuePAT returned error: %v", err)
	}

	// nil scopes mark an inheriting token; an empty slice would pin it to
	// an empty grant.
	if created.Scopes != nil {
		t.Fatalf("scopes = %#v, want nil", created.Scopes)
	}
}

func TestRotateForeignPersonalToken(t *testing.T) {
	record := activeTokenRecord("tok-1", "secret-value")
	rotateCalled := false
	repo := &stubTokenRepo{
		getFn: func(context.Context, string) (*domain.TokenRecord, error) {
			copied := *record
			return &copied, nil
		},
		rotateFn: func(context.Context, string, string, time.Time, time.Time) (bool, error) {
			rotateCalled = true
			return true, nil
		},
	}

	store := NewTokenStore(testConfig(), repo, nil, nil, nil, nil)
	store.WithClock(testClock)

	if _, err := store.Rotate(context.Background(), "tok-1", "user-2"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("foreign Rotate = %v, want ErrNotFound", err)
	}
	if rotateCalled {
		t.Fatal("foreign caller must not reach the store")
	}
}

func TestRevokeForeignPersonalToken(t *testing.T) {
	record := activeTokenRecord("tok-1", "secret-value")
	revokeCalled := false
	repo := &stubTokenRepo{
		getFn: func(context.Context, string) (*domain.TokenRecord, error) {
			copied := *record
			return &copied, nil
		},
		revokeFn: func(context.Context, string, time.Time) (bool, error) {
			revokeCalled = true
			return true, nil
		},
	}
	revocations := newStubRevocationStore()
	audit := &recordingAudit{}

	store := NewTokenStore(testConfig(), repo, revocations, nil, audit, nil)
	store.WithClock(testClock)

	if err := store.Revoke(context.Background(), "tok-1", "user-2", "takeover"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("foreign Revoke = %v, want ErrNotFound", err)
	}
	if revokeCalled {
		t.Fatal("foreign caller must not reach the store")
	}

	revoked, _, err := revocations.IsRevoked(context.Background(), "tok-1")
	if err != nil || revoked {
		t.Fatalf("revocation cache touched by foreign caller: revoked=%v err=%v", revoked, err)
	}
	if len(audit.tokenEvents) != 0 {
		t.Fatalf("lifecycle events = %+v, want none", audit.tokenEvents)
	}
}

func TestAuthenticateRevokeRace(t *testing.T) {
	var mu sync.Mutex
	record := activeTokenRecord("tok-1", "secret-value")

	repo := &stubTokenRepo{
		getFn: func(context.Context, string) (*domain.TokenRecord, error) {
			mu.Lock()
			defer mu.Unlock()
			copied := *record
			return &copied, nil
		},
		revokeFn: func(_ context.Context, _ string, at time.Time) (bool, error) {
			mu.Lock()
			defer mu.Unlock()
			if record.Status == domain.TokenStatusRevoked {
				return false, nil
			}
			record.Status = domain.TokenStatusRevoked
			revokedAt := at
			record.RevokedAt = &revokedAt
			return true, nil
		},
	}

	store := NewTokenStore(testConfig(), repo, newStubRevocationStore(), nil, nil, nil)
	store.WithClock(testClock)

	ctx := context.Background()
	stop := make(chan struct{})
	unexpected := make(chan error, 8)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				// Verifies overlapping the revoke either succeed or see
				// the revocation; nothing else is acceptable.
				if _, err := store.Authenticate(ctx, patCredential("tok-1", "secret-value"), ""); err != nil && !errors.Is(err, ErrTokenRevoked) {
					select {
					case unexpected <- err:
					default:
					}
					return
				}
			}
		}()
	}

	if err := store.Revoke(ctx, "tok-1", "user-1", "compromised"); err != nil {
		t.Fatalf("Revoke returned error: %v", err)
	}

	// Every verify started after Revoke returned must observe it.
	for i := 0; i < 32; i++ {
		if _, err := store.Authenticate(ctx, patCredential("tok-1", "secret-value"), ""); !errors.Is(err, ErrTokenRevoked) {
			t.Fatalf("Authenticate after Revoke = %v, want ErrTokenRevoked", err)
		}
	}

	close(stop)
	wg.Wait()

	select {
	case err := <-unexpected:
		t.Fatalf("concurrent Authenticate returned %v", err)
	default:
	}
}

func TestListByUserBlanksSecretHashes(t *testing.T) {
	prev := "prev-hash"
	repo := &stubTokenRepo{
		listFn: func(context.Context, string) ([]domain.TokenRecord, error) {
			return []domain.TokenRecord{
				{ID: "tok-1", SecretHash: "hash-1", PrevSecretHash: &prev},
			}, nil
		},
	}

	store := NewTokenStore(testConfig(), repo, nil, nil, nil, nil)

	records, err := store.ListByUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ListByUser returned error: %v", err)
	}
	if records[0].SecretHash != "" || records[0].PrevSecretHash != nil {
		t.Fatalf("secret material leaked: %+v", records[0])
	}
}
