// Package metrics exposes Prometheus collectors for the bot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CommandsHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studybot_commands_total",
			Help: "Commands handled, by command and outcome",
		},
		[]string{"command", "outcome"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "studybot_active_sessions",
			Help: "Study sessions currently active in this process",
		},
	)

	SessionsEnded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studybot_sessions_ended_total",
			Help: "Study sessions ended, by reason",
		},
		[]string{"reason"},
	)

	TimerTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "studybot_timer_ticks_total",
			Help: "Countdown timer ticks processed",
		},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studybot_store_errors_total",
			Help: "Durable store operations that failed, by operation",
		},
		[]string{"op"},
	)

	DeliveryErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "studybot_delivery_errors_total",
			Help: "Outbound chat messages that could not be delivered",
		},
	)
)

// Outcome labels for CommandsHandled.
const (
	OutcomeOK        = "ok"
	OutcomeUserError = "user_error"
	OutcomeError     = "error"
)
