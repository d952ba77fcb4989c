package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ScansTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "checkin_scans_total", Help: "Total scan payloads processed"},
	)
	AdmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "checkin_admitted_total", Help: "Total confirmed admissions"},
	)
	RejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "checkin_rejected_total", Help: "Total terminal rejections"},
	)
	PendingPaymentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "checkin_pending_payment_total", Help: "Scans routed to the payment-collection flow"},
	)
	OverridesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "checkin_overrides_total", Help: "Offline payment overrides exercised"},
	)
	ChunksIngested = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "transfer_chunks_ingested_total", Help: "Transfer chunks accepted into a session"},
	)
	ImportedParticipants = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "transfer_imported_total", Help: "Participants inserted by finalized transfer sessions"},
	)
	SyncPulled = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "sync_pulled_total", Help: "Records pulled from the remote directory"},
	)
	SyncPushed = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "sync_pushed_total", Help: "On-spot records pushed to the remote directory"},
	)
	SyncPushFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "sync_push_failures_total", Help: "Push batches that failed and were left for retry"},
	)
)

func Register() {
	prometheus.MustRegister(
		ScansTotal, AdmittedTotal, RejectedTotal, PendingPaymentTotal, OverridesTotal,
		ChunksIngested, ImportedParticipants,
		SyncPulled, SyncPushed, SyncPushFailures,
	)
}
