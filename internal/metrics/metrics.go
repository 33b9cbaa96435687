// Package metrics holds the Prometheus collectors shared by the relay and
// the player. Collectors register with the default registry on init.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Player loop

	LoopTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "motionplayer_ticks_total",
			Help: "Total number of loop ticks executed",
		},
	)

	LoopLateTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "motionplayer_late_ticks_total",
			Help: "Ticks that started more than one period behind schedule",
		},
	)

	LoopTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "motionplayer_tick_duration_seconds",
			Help:    "Time spent in one tick, excluding the cadence sleep",
			Buckets: []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025},
		},
	)

	MotionCommands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "motionplayer_motion_commands_total",
			Help: "Motion commands applied to the player by outcome",
		},
		[]string{"kind", "outcome"}, // kind: motion, motion_data
	)

	BufferPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "motionplayer_buffer_pending_frames",
			Help: "Frames queued between the start index and the write pointer",
		},
	)

	// Hardware targets

	TargetSends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "motionplayer_target_sends_total",
			Help: "Frames handed to a hardware target",
		},
		[]string{"target"},
	)

	TargetFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "motionplayer_target_failures_total",
			Help: "Hardware target connect or send failures",
		},
		[]string{"target", "op"}, // op: connect, send
	)

	TargetConnected = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "motionplayer_target_connected",
			Help: "1 when the hardware target is connected",
		},
		[]string{"target"},
	)

	// Relay hub

	HubClients = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "motionbridge_clients",
			Help: "Connected clients per role",
		},
		[]string{"role"},
	)

	HubBroadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "motionbridge_broadcast_messages_total",
			Help: "Per-client broadcast deliveries by role and result",
		},
		[]string{"role", "result"}, // result: sent, failed
	)

	InputEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "motionbridge_input_events_total",
			Help: "Input events received by kind",
		},
		[]string{"kind"}, // haptics, timeline, beat, gesture, signal, unknown
	)

	InputRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "motionbridge_input_rejected_total",
			Help: "Input events dropped by reason",
		},
		[]string{"reason"}, // malformed, validation, rate_limited
	)

	HapticsLearned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "motionbridge_haptics_learned_total",
			Help: "Haptics mapping entries registered on miss",
		},
	)
)

// ObserveTick records one loop tick.
func ObserveTick(d time.Duration, late bool) {
	LoopTicks.Inc()
	LoopTickDuration.Observe(d.Seconds())
	if late {
		LoopLateTicks.Inc()
	}
}

// ObserveBroadcast records a fan-out result for a role.
func ObserveBroadcast(role string, sent, failed int) {
	if sent > 0 {
		HubBroadcasts.WithLabelValues(role, "sent").Add(float64(sent))
	}
	if failed > 0 {
		HubBroadcasts.WithLabelValues(role, "failed").Add(float64(failed))
	}
}

// SetTargetConnected sets the connection gauge for a target.
func SetTargetConnected(target string, connected bool) {
	v := 0.0
	if connected {
		v = 1
	}
	TargetConnected.WithLabelValues(target).Set(v)
}
