// Package metrics exposes Prometheus counters for the eye-wall engine.
// Served by the optional web server at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BusWrites counts every write that reached the transport.
	BusWrites = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "eyebox",
		Name:      "bus_writes_total",
		Help:      "Servo commands issued on the I2C bus.",
	})

	// BusWriteErrors counts transport failures (non-fatal, the eye is
	// rescheduled normally).
	BusWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "eyebox",
		Name:      "bus_write_errors_total",
		Help:      "Servo commands that failed at the transport.",
	})

	// RangeClamps counts positions clamped to the hardware safety bounds
	// before dispatch. A non-zero rate points at a target computation bug.
	RangeClamps = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "eyebox",
		Name:      "range_clamps_total",
		Help:      "Positions clamped to hardware safety bounds.",
	})

	// Moves counts dispatched eye movements by policy.
	Moves = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eyebox",
		Name:      "moves_total",
		Help:      "Eye movements dispatched, by policy.",
	}, []string{"policy"})

	// Paused is 1 while the gate holds the engine paused.
	Paused = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "eyebox",
		Name:      "paused",
		Help:      "1 while the external gate holds the engine paused.",
	})
)
