package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tictactoe_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tictactoe_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Room metrics
	RoomActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tictactoe_room_actions_total",
			Help: "Total room lifecycle actions by result",
		},
		[]string{"action", "result"}, // action: create/join/move/leave
	)

	RoomTransitionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tictactoe_room_transition_duration_seconds",
			Help:    "Time spent inside the room lock, including lock wait",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"action"},
	)

	InvariantViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tictactoe_invariant_violations_total",
			Help: "Room state invariant violations detected and rejected",
		},
		[]string{"action"},
	)

	GamesFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tictactoe_games_finished_total",
			Help: "Total finished games",
		},
		[]string{"outcome"}, // "win" or "draw"
	)

	SettlementsRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tictactoe_settlements_recorded_total",
			Help: "Total stake settlements written to the ledger",
		},
	)

	// Realtime metrics
	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tictactoe_websocket_clients",
			Help: "Currently connected websocket clients",
		},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tictactoe_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"path"},
	)
)
