package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/bshelton-songtrust/publishing-platform/internal/core/domain"
	"github.com/bshelton-songtrust/publishing-platform/internal/core/port"
)

// StubSink logs audit records instead of sending them to Kafka. Useful for
// development environments without a broker.
type StubSink struct {
	logger *zap.Logger
}

// NewStubSink constructs a development-friendly audit sink.
func NewStubSink(logger *zap.Logger) *StubSink {
	return &StubSink{logger: logger}
}

func (s *StubSink) logEvent(eventType, principalID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	s.logger.Info("Stub audit record",
		zap.String("event_type", eventType),
		zap.String("principal_id", principalID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// RecordAuthentication logs authz.credential.checked events.
func (s *StubSink) RecordAuthentication(_ context.Context, event domain.AuthenticationEvent) error {
	payload := map[string]any{
		"outcome":         event.Outcome,
		"reason":          event.Reason,
		"publisher_id":    event.PublisherID,
		"credential_kind": event.Credential,
		"token_id":        event.TokenID,
		"ip_address":      event.IP,
	}
	s.logEvent("authz.credential.checked", event.PrincipalID, event.At, payload)
	return nil
}

// RecordPermissionDenied logs authz.permission.denied events.
func (s *StubSink) RecordPermissionDenied(_ context.Context, event domain.PermissionDeniedEvent) error {
	payload := map[string]any{
		"publisher_id": event.PublisherID,
		"permission":   event.Permission,
	}
	s.logEvent("authz.permission.denied", event.PrincipalID, event.At, payload)
	return nil
}

// RecordTokenLifecycle logs authz.token.lifecycle events.
func (s *StubSink) RecordTokenLifecycle(_ context.Context, event domain.TokenLifecycleEvent) error {
	payload := map[string]any{
		"action":   event.Action,
		"token_id": event.TokenID,
		"kind":     event.Kind,
		"reason":   event.Reason,
	}
	s.logEvent("authz.token.lifecycle", event.ActorID, event.At, payload)
	return nil
}

// RecordSessionLifecycle logs authz.session.lifecycle events.
func (s *StubSink) RecordSessionLifecycle(_ context.Context, event domain.SessionLifecycleEvent) error {
	payload := map[string]any{
		"action":       event.Action,
		"session_id":   event.SessionID,
		"publisher_id": event.PublisherID,
		"reason":       event.Reason,
	}
	s.logEvent("authz.session.lifecycle", event.UserID, event.At, payload)
	return nil
}

var _ port.AuditSink = (*StubSink)(nil)
