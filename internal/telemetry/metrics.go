package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rps"

// LedgerMetrics counts ledger state transitions.
type LedgerMetrics struct {
	GamesCreated   prometheus.Counter
	GamesSettled   *prometheus.CounterVec
	RewardsClaimed prometheus.Counter
	RewardsPaid    prometheus.Counter
	EscrowedTotal  prometheus.Counter
	TxRejected     *prometheus.CounterVec
}

// NewLedgerMetrics builds the collectors and registers them with reg. A nil
// reg yields working but unregistered collectors.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	m := &LedgerMetrics{
		GamesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "games_created_total",
			Help:      "Games accepted by create-game.",
		}),
		GamesSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "games_settled_total",
			Help:      "Games settled, by result.",
		}, []string{"result"}),
		RewardsClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "rewards_claimed_total",
			Help:      "Rewards paid out.",
		}),
		RewardsPaid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "rewards_paid_amount_total",
			Help:      "Sum of paid rewards in base units.",
		}),
		EscrowedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "escrowed_amount_total",
			Help:      "Sum of escrowed bets in base units.",
		}),
		TxRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "tx_rejected_total",
			Help:      "Rejected transactions, by tx type and error code.",
		}, []string{"type", "codespace", "code"}),
	}
	if reg != nil {
		reg.MustRegister(m.GamesCreated, m.GamesSettled, m.RewardsClaimed, m.RewardsPaid, m.EscrowedTotal, m.TxRejected)
	}
	return m
}

// GatewayMetrics instruments the decryption gateway.
type GatewayMetrics struct {
	Requests        *prometheus.CounterVec
	HandlesReleased prometheus.Counter
	Latency         prometheus.Histogram
}

func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	m := &GatewayMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "User-decrypt requests, by outcome.",
		}, []string{"outcome"}),
		HandlesReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "handles_released_total",
			Help:      "Cleartexts released to authorized requesters.",
		}),
		Latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "request_seconds",
			Help:      "User-decrypt handling latency.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Requests, m.HandlesReleased, m.Latency)
	}
	return m
}
