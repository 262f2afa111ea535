package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"
)

var (
	// ErrEnvelopeInvalid indicates the session token signature or structure
	// failed verification.
	ErrEnvelopeInvalid = errors.New("session token envelope invalid")
	// ErrEnvelopeExpired indicates the session token is outside its validity
	// window (expired or not yet valid).
	ErrEnvelopeExpired = errors.New("session token envelope expired")
)

// SessionClaims carries the identity bound into a session token at issuance:
// the user, the server-side session for revocation, and the publisher
// context chosen at login.
type SessionClaims struct {
	UserID      string `json:"uid"`
	SessionID   string `json:"sid"`
	PublisherID string `json:"pub,omitempty"`
	jwt.RegisteredClaims
}

// SessionTokenOptions configures creation of session token claims.
type SessionTokenOptions struct {
	UserID      string
	SessionID   string
	PublisherID string
	Issuer      string
	TTL         time.Duration
	IssuedAt    time.Time
	NotBefore   time.Time
	JTI         string
}

const defaultSessionTokenTTL = 30 * time.Minute

// NewSessionClaims constructs standardized session token claims.
func NewSessionClaims(opts SessionTokenOptions) (*SessionClaims, error) {
	userID := strings.TrimSpace(opts.UserID)
	if userID == "" {
		return nil, fmt.Errorf("envelope: user id is required")
	}
	sessionID := strings.TrimSpace(opts.SessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("envelope: session id is required")
	}
	issuer := strings.TrimSpace(opts.Issuer)
	if issuer == "" {
		return nil, fmt.Errorf("envelope: issuer is required")
	}

	now := opts.IssuedAt
	if now.IsZero() {
		now = time.Now().UTC()
	} else {
		now = now.UTC()
	}

	validFrom := opts.NotBefore
	if validFrom.IsZero() {
		validFrom = now
	} else {
		validFrom = validFrom.UTC()
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultSessionTokenTTL
	}

	jti := strings.TrimSpace(opts.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}

	return &SessionClaims{
		UserID:      userID,
		SessionID:   sessionID,
		PublisherID: strings.TrimSpace(opts.PublisherID),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(validFrom),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
	}, nil
}

// Envelope signs and verifies session tokens. The check is stateless: a
// valid signature plus validity window proves issuance, while session
// liveness is the registry's concern.
type Envelope struct {
	keys   KeyProvider
	issuer string
	kid    string
}

// NewEnvelope constructs a session token envelope codec.
func NewEnvelope(keys KeyProvider, issuer, kid string) *Envelope {
	return &Envelope{keys: keys, issuer: issuer, kid: kid}
}

// Sign produces a signed session token for the supplied claims.
func (e *Envelope) Sign(claims *SessionClaims) (string, error) {
	if claims == nil {
		return "", fmt.Errorf("envelope: claims required")
	}

	signingKey, err := e.keys.GetSigningKey()
	if err != nil {
		return "", fmt.Errorf("envelope: get signing key: %w", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = e.kid

	signed, err := token.SignedString(signingKey)
	if err != nil {
		return "", fmt.Errorf("envelope: sign token: %w", err)
	}

	return signed, nil
}

// Verify checks signature, issuer, and validity window, returning the
// embedded claims. The clock may be overridden for deterministic tests.
func (e *Envelope) Verify(token string, clock func() time.Time) (*SessionClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrEnvelopeInvalid
	}

	claims := &SessionClaims{}

	parserOptions := []jwt.ParserOption{
		jwt.WithIssuer(e.issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
	}
	if clock != nil {
		parserOptions = append(parserOptions, jwt.WithTimeFunc(clock))
	}

	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		kid = strings.TrimSpace(kid)
		if kid == "" {
			return nil, fmt.Errorf("kid header not found")
		}
		return e.keys.GetVerificationKey(kid)
	}, parserOptions...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) || errors.Is(err, jwt.ErrTokenNotValidYet) {
			return nil, ErrEnvelopeExpired
		}
		return nil, ErrEnvelopeInvalid
	}

	if parsed == nil || !parsed.Valid {
		return nil, ErrEnvelopeInvalid
	}

	if strings.TrimSpace(claims.UserID) == "" || strings.TrimSpace(claims.SessionID) == "" {
		return nil, ErrEnvelopeInvalid
	}

	return claims, nil
}
