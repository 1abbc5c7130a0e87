// ABOUTME: Prometheus counters for sync and reconciliation activity
// ABOUTME: Registered on the default registry via promauto
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchTotal counts bulk fetches by collection.
	FetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funnel_fetch_total",
		Help: "Bulk REST fetches issued, by collection.",
	}, []string{"collection"})

	// FetchFailures counts failed bulk fetches by collection.
	FetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funnel_fetch_failures_total",
		Help: "Bulk REST fetches that failed, by collection.",
	}, []string{"collection"})

	// LiveSyncApplied counts live-sync payloads applied to the store.
	LiveSyncApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "funnel_livesync_applied_total",
		Help: "Live-sync payloads applied to the record store.",
	})

	// LiveSyncDiscarded counts live-sync payloads discarded by the editing
	// guard or the duplicate-payload throttle.
	LiveSyncDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funnel_livesync_discarded_total",
		Help: "Live-sync payloads discarded before application, by reason.",
	}, []string{"reason"})

	// RestorationsApplied counts group memberships recovered by the
	// restoration subsystem.
	RestorationsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "funnel_group_restorations_total",
		Help: "Group membership lists recovered by the restoration pass.",
	})

	// Rollbacks counts optimistic mutations rolled back after an API failure.
	Rollbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "funnel_mutation_rollbacks_total",
		Help: "Optimistic mutations rolled back after an API failure.",
	})
)
