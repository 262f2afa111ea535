package port

import (
	"context"

	"github.com/bshelton-songtrust/publishing-platform/internal/core/domain"
)

// AuditSink receives structured security records. Delivery is
// fire-and-forget: implementations must never fail the calling request, and
// callers ignore returned errors beyond logging.
type AuditSink interface {
	RecordAuthentication(ctx context.Context, event domain.AuthenticationEvent) error
	RecordPermissionDenied(ctx context.Context, event domain.PermissionDeniedEvent) error
	RecordTokenLifecycle(ctx context.Context, event domain.TokenLifecycleEvent) error
	RecordSessionLifecycle(ctx context.Context, event domain.SessionLifecycleEvent) error
}
