// Package otel provides OpenTelemetry instruments for turn metrics.
package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "reflex"

// Metrics holds all turn metric instruments.
type Metrics struct {
	TurnsStarted   metric.Int64Counter
	TurnsCompleted metric.Int64Counter
	TurnsFailed    metric.Int64Counter
	TokensUsed     metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.TurnsStarted, err = meter.Int64Counter("reflex.turns.started",
		metric.WithDescription("Number of streaming turns started"))
	if err != nil {
		return nil, err
	}

	m.TurnsCompleted, err = meter.Int64Counter("reflex.turns.completed",
		metric.WithDescription("Number of streaming turns completed"))
	if err != nil {
		return nil, err
	}

	m.TurnsFailed, err = meter.Int64Counter("reflex.turns.failed",
		metric.WithDescription("Number of streaming turns failed"))
	if err != nil {
		return nil, err
	}

	m.TokensUsed, err = meter.Int64Counter("reflex.tokens.used",
		metric.WithDescription("Total tokens reported by the provider"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
