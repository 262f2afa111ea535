package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bshelton-songtrust/publishing-platform/internal/infra/config"
)

// Provider represents a telemetry provider handle.
type Provider struct {
	requestCounter   prometheus.Counter
	authOutcomes     *prometheus.CounterVec
	permissionDenied prometheus.Counter
	resolverLookups  *prometheus.CounterVec
}

// Attach configures telemetry exporters and returns a provider handle.
func Attach(_ context.Context, cfg *config.AppConfig) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	namespace := cfg.Telemetry.Namespace
	if namespace == "" {
		namespace = "publishing"
	}

	return &Provider{
		requestCounter: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}),
		authOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authentication_outcomes_total",
			Help:      "Credential check outcomes by kind and result",
		}, []string{"kind", "outcome"}),
		permissionDenied: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "permission_denied_total",
			Help:      "Authorization checks rejected after successful authentication",
		}),
		resolverLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolver_lookups_total",
			Help:      "Permission resolver lookups by cache result",
		}, []string{"result"}),
	}, nil
}

// RequestCounter exposes the HTTP request metric.
func (p *Provider) RequestCounter() prometheus.Counter {
	if p == nil {
		return prometheus.NewCounter(prometheus.CounterOpts{})
	}
	return p.requestCounter
}

// ObserveAuthentication counts one credential check outcome.
func (p *Provider) ObserveAuthentication(kind, outcome string) {
	if p == nil {
		return
	}
	p.authOutcomes.WithLabelValues(kind, outcome).Inc()
}

// ObservePermissionDenied counts one rejected authorization decision.
func (p *Provider) ObservePermissionDenied() {
	if p == nil {
		return
	}
	p.permissionDenied.Inc()
}

// ObserveResolverLookup counts one resolver lookup, result "hit" or "miss".
func (p *Provider) ObserveResolverLookup(result string) {
	if p == nil {
		return
	}
	p.resolverLookups.WithLabelValues(result).Inc()
}
