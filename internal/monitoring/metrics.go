package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Contract read metrics
	ContractReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainraise_contract_reads_total",
			Help: "Total number of contract view calls",
		},
		[]string{"method", "status"},
	)

	CampaignsLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainraise_campaigns_loaded",
			Help: "Number of campaigns decoded in the most recent listing",
		},
	)

	CampaignDecodeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chainraise_campaign_decode_failures_total",
			Help: "Campaign entries skipped because their decode failed",
		},
	)

	DonationDecodeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chainraise_donation_decode_failures_total",
			Help: "Donation entries skipped because their decode failed",
		},
	)

	// Transaction metrics
	TxSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainraise_tx_submitted_total",
			Help: "Total number of submitted write transactions",
		},
		[]string{"operation"},
	)

	TxOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainraise_tx_outcomes_total",
			Help: "Terminal outcomes of tracked transactions",
		},
		[]string{"operation", "state"},
	)

	TxConfirmationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chainraise_tx_confirmation_duration_seconds",
			Help:    "Time from submission to confirmation, by resolution path",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"path"},
	)

	// Wallet session metrics
	WalletSessionActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainraise_wallet_session_active",
			Help: "Whether a wallet session is active (1 = connected)",
		},
	)

	BalanceFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainraise_balance_fetches_total",
			Help: "Account balance fetches by status",
		},
		[]string{"status"},
	)

	// Chain health metrics
	ChainHealthy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainraise_chain_healthy",
			Help: "Chain health status (1 = healthy, 0 = unhealthy)",
		},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainraise_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chainraise_api_request_duration_seconds",
			Help:    "API request duration",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5},
		},
		[]string{"method", "endpoint"},
	)

	// Cache metrics
	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chainraise_cache_hits_total",
			Help: "Snapshot cache hits",
		},
	)

	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chainraise_cache_misses_total",
			Help: "Snapshot cache misses",
		},
	)

	// Notification metrics
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainraise_notifications_total",
			Help: "Notification deliveries by sink and status",
		},
		[]string{"sink", "status"},
	)
)

// RecordContractRead records one contract view call.
func RecordContractRead(method, status string) {
	ContractReadsTotal.WithLabelValues(method, status).Inc()
}

// RecordTxSubmitted records a submitted write transaction.
func RecordTxSubmitted(operation string) {
	TxSubmittedTotal.WithLabelValues(operation).Inc()
}

// RecordTxOutcome records a terminal tracked-transaction state.
func RecordTxOutcome(operation, state string) {
	TxOutcomesTotal.WithLabelValues(operation, state).Inc()
}

// ObserveConfirmation records the submission-to-confirmation latency for the
// winning resolution path ("wait" or "poll").
func ObserveConfirmation(path string, seconds float64) {
	TxConfirmationDuration.WithLabelValues(path).Observe(seconds)
}

// RecordBalanceFetch records one account balance fetch.
func RecordBalanceFetch(status string) {
	BalanceFetchesTotal.WithLabelValues(status).Inc()
}

// SetWalletSessionActive updates the session gauge.
func SetWalletSessionActive(active bool) {
	value := 0.0
	if active {
		value = 1.0
	}
	WalletSessionActive.Set(value)
}

// UpdateChainHealth updates chain health status.
func UpdateChainHealth(healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	ChainHealthy.Set(value)
}

// RecordNotification records a notification delivery attempt outcome.
func RecordNotification(sink, status string) {
	NotificationsTotal.WithLabelValues(sink, status).Inc()
}
