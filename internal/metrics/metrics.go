package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

var (
	// HTTP 指标
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// 订单指标
	OrderTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_order_transitions_total",
			Help: "Order status transitions",
		},
		[]string{"from", "to"},
	)

	PaymentDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "market_payment_duration_seconds",
			Help:    "Payment settlement duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "result"},
	)

	BalanceCompensationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_balance_compensations_total",
			Help: "Compensating balance-store operations after a failed unit of work",
		},
		[]string{"result"},
	)

	LiabilitiesRecordedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "market_seller_liabilities_recorded_total",
			Help: "Seller liabilities recorded by refunds",
		},
	)

	// 账本指标
	LedgerOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "points_ledger_operations_total",
			Help: "Points ledger mutations by transaction type",
		},
		[]string{"type", "result"},
	)

	LedgerInconsistentAccounts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "points_ledger_inconsistent_accounts",
			Help: "Accounts flagged by the last ledger audit",
		},
	)

	// 定时任务指标
	SweepOrdersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_sweep_orders_total",
			Help: "Orders processed by sweepers",
		},
		[]string{"sweep", "result"},
	)

	OutboxMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_messages_total",
			Help: "Outbox messages delivered or failed",
		},
		[]string{"result"},
	)
)

// Result 将错误转换为指标标签
func Result(err error) string {
	if err != nil {
		return ResultFailed
	}
	return ResultSuccess
}
