package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Entitlement
	EntitlementChecks    *prometheus.CounterVec
	InvariantViolations  prometheus.Counter

	// Family transactions
	AcceptAttempts     *prometheus.CounterVec
	MembersEvicted     prometheus.Counter
	InvitesCreated     prometheus.Counter
	InvitesRevoked     prometheus.Counter
	InvitesExpired     prometheus.Counter
	FamilyTxLatency    prometheus.Histogram
	LockTimeouts       prometheus.Counter

	// Outbox
	OutboxEventsProcessed   prometheus.Counter
	OutboxEventsFailed      prometheus.Counter
	OutboxProcessingLatency prometheus.Histogram
	OutboxRetries           *prometheus.CounterVec
}

// NewMetrics creates and registers all application metrics
func NewMetrics(namespace, subsystem string) *Metrics {
	return &Metrics{
		EntitlementChecks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "entitlement_checks_total",
			Help:      "Entitlement evaluations by result",
		}, []string{"result"}),
		InvariantViolations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "entitlement_invariant_violations_total",
			Help:      "Member records found holding their own entitlement",
		}),
		AcceptAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "invite_accept_attempts_total",
			Help:      "Invite acceptance attempts by outcome code",
		}, []string{"outcome"}),
		MembersEvicted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "family_members_evicted_total",
			Help:      "Members evicted by plan downgrades",
		}),
		InvitesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "family_invites_created_total",
			Help:      "Invites created",
		}),
		InvitesRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "family_invites_revoked_total",
			Help:      "Invites revoked",
		}),
		InvitesExpired: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "family_invites_expired_total",
			Help:      "Invites expired lazily or by the sweep",
		}),
		FamilyTxLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "family_transaction_duration_seconds",
			Help:      "Time spent inside family-locked transactions",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		LockTimeouts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "family_lock_timeouts_total",
			Help:      "Family-row lock acquisitions that timed out",
		}),
		OutboxEventsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_events_processed_total",
			Help:      "Total number of successfully processed outbox events",
		}),
		OutboxEventsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_events_failed_total",
			Help:      "Total number of failed outbox events",
		}),
		OutboxProcessingLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_processing_duration_seconds",
			Help:      "Time spent processing outbox events",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		OutboxRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_retry_attempts_total",
			Help:      "Outbox delivery retries by event type",
		}, []string{"event_type"}),
	}
}
