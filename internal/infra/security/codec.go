package security

import (
	"errors"
	"strings"

	"github.com/bshelton-songtrust/publishing-platform/internal/core/domain"
)

// ErrMalformedCredential indicates a bearer string matching no known format.
var ErrMalformedCredential = errors.New("malformed credential")

const (
	// ServiceTokenPrefix marks long-lived service-account API keys.
	ServiceTokenPrefix = "st"
	// PATPrefix marks user-generated personal access tokens.
	PATPrefix = "pat"
	// sessionTokenMarker is the base64 prefix of every compact JWS whose
	// header starts with `{"`. Classification is purely structural.
	sessionTokenMarker = "eyJ"
)

// DecodedCredential is the structural decomposition of a bearer string.
// Session tokens keep the full compact form for envelope verification;
// opaque tokens split into the stored identifier plus the presented secret.
type DecodedCredential struct {
	Kind         domain.CredentialKind
	SessionToken string
	TokenID      string
	Secret       string
}

// Classify inspects the bearer's structural marker without any lookup.
func Classify(bearer string) domain.CredentialKind {
	bearer = strings.TrimSpace(bearer)
	switch {
	case strings.HasPrefix(bearer, sessionTokenMarker) && strings.Count(bearer, ".") == 2:
		return domain.CredentialKindSession
	case strings.HasPrefix(bearer, ServiceTokenPrefix+"_"):
		return domain.CredentialKindService
	case strings.HasPrefix(bearer, PATPrefix+"_"):
		return domain.CredentialKindPAT
	default:
		return domain.CredentialKindUnknown
	}
}

// Decode classifies and structurally parses a bearer string. Opaque tokens
// are "<prefix>_<tokenID>_<secret>"; the secret's base64url alphabet may
// itself contain underscores, so only the first two separators are split.
func Decode(bearer string) (*DecodedCredential, error) {
	bearer = strings.TrimSpace(bearer)

	switch Classify(bearer) {
	case domain.CredentialKindSession:
		return &DecodedCredential{
			Kind:         domain.CredentialKindSession,
			SessionToken: bearer,
		}, nil

	case domain.CredentialKindService:
		tokenID, secret, err := splitOpaque(bearer)
		if err != nil {
			return nil, err
		}
		return &DecodedCredential{
			Kind:    domain.CredentialKindService,
			TokenID: tokenID,
			Secret:  secret,
		}, nil

	case domain.CredentialKindPAT:
		tokenID, secret, err := splitOpaque(bearer)
		if err != nil {
			return nil, err
		}
		return &DecodedCredential{
			Kind:    domain.CredentialKindPAT,
			TokenID: tokenID,
			Secret:  secret,
		}, nil

	default:
		return nil, ErrMalformedCredential
	}
}

func splitOpaque(bearer string) (tokenID, secret string, err error) {
	parts := strings.SplitN(bearer, "_", 3)
	if len(parts) != 3 {
		return "", "", ErrMalformedCredential
	}

	tokenID = strings.TrimSpace(parts[1])
	secret = strings.TrimSpace(parts[2])
	if tokenID == "" || secret == "" {
		return "", "", ErrMalformedCredential
	}

	return tokenID, secret, nil
}
