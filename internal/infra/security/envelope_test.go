package security

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"
)

type staticKeyProvider struct {
	private *rsa.PrivateKey
	kid     string
}

func (s *staticKeyProvider) GetSigningKey() (*rsa.PrivateKey, error) {
	return s.private, nil
}

func (s *staticKeyProvider) GetVerificationKey(kid string) (*rsa.PublicKey, error) {
	if kid != s.kid {
		return nil, ErrKeyNotFound
	}
	return &s.private.PublicKey, nil
}

func newTestEnvelope(t *testing.T) *Envelope {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}

	return NewEnvelope(&staticKeyProvider{private: key, kid: "v1"}, "publishing-platform", "v1")
}

func TestEnvelopeSignVerify(t *testing.T) {
	envelope := newTestEnvelope(t)
	issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	claims, err := NewSessionClaims(SessionTokenOptions{
		UserID:      "user-1",
		SessionID:   "session-1",
		PublisherID: "pub-1",
		Issuer:      "publishing-platform",
		TTL:         30 * time.Minute,
		IssuedAt:    issuedAt,
	})
	if err != nil {
		t.Fatalf("NewSessionClaims returned error: %v", err)
	}

	token, err := envelope.Sign(claims)
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}

	clock := func() time.Time { return issuedAt.Add(5 * time.Minute) }
	verified, err := envelope.Verify(token, clock)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}

	if verified.UserID != "user-1" || verified.SessionID != "session-1" || verified.PublisherID != "pub-1" {
		t.Fatalf("unexpected claims: %+v", verified)
	}
}

func TestEnvelopeVerifyExpired(t *testing.T) {
	envelope := newTestEnvelope(t)
	issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	claims, err := NewSessionClaims(SessionTokenOptions{
		UserID:    "user-1",
		SessionID: "session-1",
		Issuer:    "publishing-platform",
		TTL:       time.Minute,
		IssuedAt:  issuedAt,
	})
	if err != nil {
		t.Fatalf("NewSessionClaims returned error: %v", err)
	}

	token, err := envelope.Sign(claims)
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}

	clock := func() time.Time { return issuedAt.Add(2 * time.Minute) }
	if _, err := envelope.Verify(token, clock); !errors.Is(err, ErrEnvelopeExpired) {
		t.Fatalf("Verify = %v, want ErrEnvelopeExpired", err)
	}
}

func TestEnvelopeVerifyTampered(t *testing.T) {
	envelope := newTestEnvelope(t)

	claims, err := NewSessionClaims(SessionTokenOptions{
		UserID:    "user-1",
		SessionID: "session-1",
		Issuer:    "publishing-platform",
		TTL:       time.Hour,
	})
	if err != nil {
		t.Fatalf("NewSessionClaims returned error: %v", err)
	}

	token, err := envelope.Sign(claims)
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}

	tampered := token[:len(token)-4] + "AAAA"
	if _, err := envelope.Verify(tampered, nil); !errors.Is(err, ErrEnvelopeInvalid) {
		t.Fatalf("Verify of tampered token = %v, want ErrEnvelopeInvalid", err)
	}

	if _, err := envelope.Verify("", nil); !errors.Is(err, ErrEnvelopeInvalid) {
		t.Fatalf("Verify of empty token = %v, want ErrEnvelopeInvalid", err)
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}

	ok, err := VerifyPassword("correct horse battery staple", hash)
	if err != nil {
		t.Fatalf("VerifyPassword returned error: %v", err)
	}
	if !ok {
		t.Fatal("valid password must verify")
	}

	ok, err = VerifyPassword("wrong password", hash)
	if err != nil {
		t.Fatalf("VerifyPassword returned error: %v", err)
	}
	if ok {
		t.Fatal("wrong password must not verify")
	}

	if _, err := VerifyPassword("anything", "not-a-valid-hash"); err == nil {
		t.Fatal("malformed hash must return an error")
	}
}
