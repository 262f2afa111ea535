package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bshelton-songtrust/publishing-platform/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse reports liveness state.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// UserSummary describes a minimal view of a user returned by the API.
type UserSummary struct {
	ID          string            `json:"id"`
	Email       string            `json:"email"`
	DisplayName string            `json:"display_name"`
	Status      domain.UserStatus `json:"status"`
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
	PublisherID string `json:"publisher_id"`
}

// SessionSummary provides a compact view of a session.
type SessionSummary struct {
	ID          string    `json:"id"`
	PublisherID string    `json:"publisher_id"`
	CreatedAt   time.Time `json:"created_at"`
	LastSeen    time.Time `json:"last_seen"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// LoginResponse describes a successful login.
type LoginResponse struct {
	Token     string         `json:"token"`
	TokenType string         `json:"token_type"`
	ExpiresIn int            `json:"expires_in"`
	User      UserSummary    `json:"user"`
	Session   SessionSummary `json:"session"`
}

// WhoAmIResponse describes the established security context.
type WhoAmIResponse struct {
	PrincipalID   string               `json:"principal_id"`
	PrincipalKind string               `json:"principal_kind"`
	PublisherID   string               `json:"publisher_id"`
	Credential    string               `json:"credential_kind"`
	Permissions   []string             `json:"permissions"`
	Restrictions  []domain.Restriction `json:"restrictions,omitempty"`
}

// IssueTokenRequest defines the payload for minting opaque tokens.
type IssueTokenRequest struct {
	Name             string   `json:"name" binding:"required"`
	ServiceAccountID string   `json:"service_account_id"`
	PublisherID      string   `json:"publisher_id"`
	Scopes           []string `json:"scopes"`
	AllowedIPs       []string `json:"allowed_ips"`
	TTLSeconds       int64    `json:"ttl_seconds"`
	RateLimitMax     int      `json:"rate_limit_max"`
	RateLimitWindow  int64    `json:"rate_limit_window_seconds"`
}

// TokenSummary describes a stored token without secret material.
type TokenSummary struct {
	ID          string             `json:"id"`
	Kind        string             `json:"kind"`
	Name        string             `json:"name"`
	PublisherID *string            `json:"publisher_id,omitempty"`
	Scopes      []string           `json:"scopes"`
	Status      domain.TokenStatus `json:"status"`
	CreatedAt   time.Time          `json:"created_at"`
	ExpiresAt   *time.Time         `json:"expires_at,omitempty"`
	LastUsedAt  *time.Time         `json:"last_used_at,omitempty"`
}

// IssuedTokenResponse returns the raw bearer exactly once.
type IssuedTokenResponse struct {
	Token  string       `json:"token"`
	Record TokenSummary `json:"record"`
}

// RevokeTokenRequest carries the optional revocation reason.
type RevokeTokenRequest struct {
	Reason string `json:"reason"`
}

// UpdateGrantsRequest replaces a membership's explicit grants and denials.
type UpdateGrantsRequest struct {
	Grants  []string `json:"grants"`
	Denials []string `json:"denials"`
}

// UpdateRoleRequest reassigns a membership's role.
type UpdateRoleRequest struct {
	RoleName string `json:"role_name" binding:"required"`
}

// UpdateStatusRequest transitions a membership's status.
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// MembershipVersionResponse returns the version after a mutation.
type MembershipVersionResponse struct {
	Version int64 `json:"version"`
}

// MembershipSummary describes one user-to-publisher binding.
type MembershipSummary struct {
	ID           string                  `json:"id"`
	UserID       string                  `json:"user_id"`
	PublisherID  string                  `json:"publisher_id"`
	RoleName     string                  `json:"role_name"`
	Status       domain.MembershipStatus `json:"status"`
	Grants       []string                `json:"grants,omitempty"`
	Denials      []string                `json:"denials,omitempty"`
	Restrictions []domain.Restriction    `json:"restrictions,omitempty"`
	Version      int64                   `json:"version"`
}

// RoleSummary describes a catalog role.
type RoleSummary struct {
	Name        string   `json:"name"`
	PublisherID *string  `json:"publisher_id,omitempty"`
	ParentName  *string  `json:"parent_name,omitempty"`
	Permissions []string `json:"permissions"`
	System      bool     `json:"system"`
}

// PermissionSummary describes a catalog permission.
type PermissionSummary struct {
	Name        string  `json:"name"`
	Resource    string  `json:"resource"`
	Action      string  `json:"action"`
	Description *string `json:"description,omitempty"`
	Deprecated  bool    `json:"deprecated"`
}

func newTokenSummary(record domain.TokenRecord) TokenSummary {
	return TokenSummary{
		ID:          record.ID,
		Kind:        string(record.Kind),
		Name:        record.Name,
		PublisherID: record.PublisherID,
		Scopes:      record.Scopes,
		Status:      record.Status,
		CreatedAt:   record.CreatedAt,
		ExpiresAt:   record.ExpiresAt,
		LastUsedAt:  record.LastUsedAt,
	}
}

func newSessionSummary(session domain.Session) SessionSummary {
	return SessionSummary{
		ID:          session.ID,
		PublisherID: session.PublisherID,
		CreatedAt:   session.CreatedAt,
		LastSeen:    session.LastSeen,
		ExpiresAt:   session.ExpiresAt,
	}
}

func newMembershipSummary(membership domain.Membership) MembershipSummary {
	return MembershipSummary{
		ID:           membership.ID,
		UserID:       membership.UserID,
		PublisherID:  membership.PublisherID,
		RoleName:     membership.RoleName,
		Status:       membership.Status,
		Grants:       membership.Grants,
		Denials:      membership.Denials,
		Restrictions: membership.Restrictions,
		Version:      membership.Version,
	}
}
