// Package metrics exposes prometheus instrumentation for the sync engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "mulltray"

// Metrics holds the collectors registered for one process.
type Metrics struct {
	Registry *prometheus.Registry

	connectAttempts prometheus.Counter
	phase           *prometheus.GaugeVec
	events          *prometheus.CounterVec
	commands        *prometheus.CounterVec
	stateSeq        prometheus.Gauge

	mu        sync.Mutex
	lastPhase string
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		connectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Daemon connection attempts made by the supervisor.",
		}),
		phase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "supervisor_phase",
			Help:      "1 for the supervisor's current phase, 0 otherwise.",
		}, []string{"phase"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Tunnel state events received, by outcome.",
		}, []string{"result"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Tunnel commands issued, by command and outcome.",
		}, []string{"command", "result"}),
		stateSeq: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state_sequence",
			Help:      "Sequence number of the last accepted tunnel state.",
		}),
	}
	m.Registry.MustRegister(m.connectAttempts, m.phase, m.events, m.commands, m.stateSeq)
	return m
}

// ConnectAttempt counts one supervisor connect attempt.
func (m *Metrics) ConnectAttempt() {
	if m == nil {
		return
	}
	m.connectAttempts.Inc()
}

// SetPhase marks phase as the supervisor's current phase.
func (m *Metrics) SetPhase(phase string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastPhase != "" {
		m.phase.WithLabelValues(m.lastPhase).Set(0)
	}
	m.phase.WithLabelValues(phase).Set(1)
	m.lastPhase = phase
}

// Event counts a received event with its outcome ("accepted", "stale",
// "malformed", ...).
func (m *Metrics) Event(result string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(result).Inc()
}

// Command counts an issued command with its outcome.
func (m *Metrics) Command(command, result string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, result).Inc()
}

// StateAccepted records the sequence number of an accepted state.
func (m *Metrics) StateAccepted(seq uint64) {
	if m == nil {
		return
	}
	m.stateSeq.Set(float64(seq))
}

// Serve exposes the registry on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	if m == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
