package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bshelton-songtrust/publishing-platform/internal/core/domain"
	"github.com/bshelton-songtrust/publishing-platform/internal/core/port"
	"github.com/bshelton-songtrust/publishing-platform/internal/infra/config"
)

const schemaVersion = "1.0"

// AuditSink implements port.AuditSink over Kafka. Records are published
// asynchronously; a delivery failure surfaces on the producer error channel,
// never on the request path.
type AuditSink struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewAuditSink constructs a Kafka-backed audit sink.
func NewAuditSink(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *AuditSink {
	return &AuditSink{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID     string           `json:"event_id"`
	EventType   string           `json:"event_type"`
	PrincipalID string           `json:"principal_id,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
	Version     string           `json:"version"`
	Payload     any              `json:"payload"`
	Metadata    envelopeMetadata `json:"metadata,omitempty"`
}

func (s *AuditSink) publish(ctx context.Context, eventID, eventType, principalID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     s.appCfg.Name,
		"environment": s.appCfg.Env,
	}

	envelope := eventEnvelope{
		EventID:     id,
		EventType:   eventType,
		PrincipalID: principalID,
		Timestamp:   ts.UTC(),
		Version:     schemaVersion,
		Payload:     payload,
		Metadata:    metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: s.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case s.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecordAuthentication publishes authz.credential.checked events.
func (s *AuditSink) RecordAuthentication(ctx context.Context, event domain.AuthenticationEvent) error {
	payload := struct {
		Outcome     string         `json:"outcome"`
		Reason      string         `json:"reason,omitempty"`
		PrincipalID string         `json:"principal_id,omitempty"`
		PublisherID string         `json:"publisher_id,omitempty"`
		Credential  string         `json:"credential_kind"`
		TokenID     string         `json:"token_id,omitempty"`
		IPAddress   *string        `json:"ip_address,omitempty"`
		CheckedAt   time.Time      `json:"checked_at"`
		Metadata    map[string]any `json:"metadata,omitempty"`
	}{
		Outcome:     event.Outcome,
		Reason:      event.Reason,
		PrincipalID: event.PrincipalID,
		PublisherID: event.PublisherID,
		Credential:  string(event.Credential),
		TokenID:     event.TokenID,
		IPAddress:   event.IP,
		CheckedAt:   event.At.UTC(),
		Metadata:    event.Metadata,
	}

	return s.publish(ctx, event.EventID, "authz.credential.checked", event.PrincipalID, event.At, payload)
}

// RecordPermissionDenied publishes authz.permission.denied events.
func (s *AuditSink) RecordPermissionDenied(ctx context.Context, event domain.PermissionDeniedEvent) error {
	payload := struct {
		PrincipalID string    `json:"principal_id"`
		PublisherID string    `json:"publisher_id,omitempty"`
		Permission  string    `json:"permission"`
		DeniedAt    time.Time `json:"denied_at"`
	}{
		PrincipalID: event.PrincipalID,
		PublisherID: event.PublisherID,
		Permission:  event.Permission,
		DeniedAt:    event.At.UTC(),
	}

	return s.publish(ctx, event.EventID, "authz.permission.denied", event.PrincipalID, event.At, payload)
}

// RecordTokenLifecycle publishes authz.token.lifecycle events.
func (s *AuditSink) RecordTokenLifecycle(ctx context.Context, event domain.TokenLifecycleEvent) error {
	payload := struct {
		Action  string    `json:"action"`
		TokenID string    `json:"token_id"`
		Kind    string    `json:"kind"`
		ActorID string    `json:"actor_id,omitempty"`
		Reason  string    `json:"reason,omitempty"`
		At      time.Time `json:"at"`
	}{
		Action:  event.Action,
		TokenID: event.TokenID,
		Kind:    string(event.Kind),
		ActorID: event.ActorID,
		Reason:  event.Reason,
		At:      event.At.UTC(),
	}

	return s.publish(ctx, event.EventID, "authz.token.lifecycle", event.ActorID, event.At, payload)
}

// RecordSessionLifecycle publishes authz.session.lifecycle events.
func (s *AuditSink) RecordSessionLifecycle(ctx context.Context, event domain.SessionLifecycleEvent) error {
	payload := struct {
		Action      string    `json:"action"`
		SessionID   string    `json:"session_id"`
		UserID      string    `json:"user_id"`
		PublisherID string    `json:"publisher_id,omitempty"`
		Reason      string    `json:"reason,omitempty"`
		At          time.Time `json:"at"`
	}{
		Action:      event.Action,
		SessionID:   event.SessionID,
		UserID:      event.UserID,
		PublisherID: event.PublisherID,
		Reason:      event.Reason,
		At:          event.At.UTC(),
	}

	return s.publish(ctx, event.EventID, "authz.session.lifecycle", event.UserID, event.At, payload)
}

var _ port.AuditSink = (*AuditSink)(nil)
