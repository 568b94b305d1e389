// Package metrics exposes Prometheus instruments for hub sessions.
//
// Instruments are registered with the default registry on import.
// Handler serves them together with the Go runtime and process collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Command label values for CommandsIssuedTotal.
const (
	KindUser    = "user"
	KindRefresh = "refresh"
	KindAbort   = "abort"
)

// Command Metrics
var (
	// CommandsIssuedTotal tracks commands written to the hub by kind
	CommandsIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_commands_issued_total",
			Help: "Total commands issued by kind (user/refresh/abort)",
		},
		[]string{"kind"},
	)

	// CommandRepliesTotal tracks replies routed to commands by message type code
	CommandRepliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_command_replies_total",
			Help: "Total command replies by message type",
		},
		[]string{"type"},
	)

	// CommandTimeoutsTotal tracks commands failed locally by the timeout sweep
	CommandTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_command_timeouts_total",
			Help: "Total commands that exceeded their time limit",
		},
	)

	// CommandsPending tracks commands awaiting a terminal reply
	CommandsPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_commands_pending",
			Help: "Commands dispatched and not yet done",
		},
	)

	// CommandDuration tracks time from dispatch to terminal reply
	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hub_command_duration_seconds",
			Help:    "Command duration from dispatch to terminal reply, by outcome (done/failed)",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"outcome"},
	)
)

// Keyword Metrics
var (
	// RefreshFailuresTotal tracks refresh commands that failed
	RefreshFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_refresh_failures_total",
			Help: "Total refresh commands that ended in failure",
		},
	)

	// KeyVarUpdatesTotal tracks keyword values delivered to KeyVars
	KeyVarUpdatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_keyvar_updates_total",
			Help: "Total keyword values applied to registered KeyVars",
		},
	)

	// ParseErrorsTotal tracks reply lines that could not be parsed
	ParseErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_parse_errors_total",
			Help: "Total reply lines rejected by the parser",
		},
	)
)

// Connection Metrics
var (
	// ConnectionState is 1 while connected and logged in, 0 otherwise
	ConnectionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_connection_up",
			Help: "1 if the hub connection is up, 0 otherwise",
		},
	)

	// ReconnectAttemptsTotal tracks reconnection attempts by result
	ReconnectAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_reconnect_attempts_total",
			Help: "Total reconnection attempts by result (success/error)",
		},
		[]string{"result"},
	)
)

// Handler returns an http.Handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
