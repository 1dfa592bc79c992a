package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "corr_api_requests_total", Help: "Operational API requests"},
		[]string{"endpoint", "status"},
	)
	Transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "corr_status_transitions_total", Help: "Status transitions appended"},
		[]string{"status"},
	)
	IdempotencyClaims = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "corr_idempotency_claims_total", Help: "Idempotency claim outcomes"},
		[]string{"action", "result"},
	)
	NotificationOrders = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "corr_notification_orders_total", Help: "Notification order submissions"},
		[]string{"kind", "result"},
	)
	DeliveryChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "corr_delivery_checks_total", Help: "Notification delivery check outcomes"},
		[]string{"result"},
	)
	ExternalCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "corr_external_calls_total", Help: "Outbound calls to collaborating services"},
		[]string{"service", "result", "http_status"},
	)
	ExternalLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "corr_external_call_latency_seconds", Help: "Outbound call latency"},
		[]string{"service"},
	)
	SweepRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "corr_sweep_rows_total", Help: "Rows handled by repair sweeps"},
		[]string{"sweep", "outcome"},
	)
	JobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "corr_job_runs_total", Help: "Background job executions"},
		[]string{"kind", "result"},
	)
	JobLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "corr_job_latency_seconds", Help: "Background job duration"},
		[]string{"kind"},
	)
	JobsDispatched = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "corr_jobs_dispatched_total", Help: "Due jobs moved onto the queue"},
	)
	Locks = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "corr_lock_outcomes_total", Help: "Conditional lock outcomes"},
		[]string{"result"},
	)
	EventPublishes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "corr_event_publishes_total", Help: "Event bus publishes"},
		[]string{"type", "result"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(APIRequests, Transitions, IdempotencyClaims, NotificationOrders, DeliveryChecks,
		ExternalCalls, ExternalLatency, SweepRows, JobRuns, JobLatency, JobsDispatched, Locks, EventPublishes)
}
