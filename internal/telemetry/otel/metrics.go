package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the auth counters. A nil *Metrics records nothing.
type Metrics struct {
	ticketIssued   metric.Int64Counter
	loginSuccess   metric.Int64Counter
	loginFailure   metric.Int64Counter
	refresh        metric.Int64Counter
	resetCompleted metric.Int64Counter
	rateLimit      metric.Int64Counter
}

// NewMetrics registers the auth counters on a meter from provider.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(instrumentationName)
	var m Metrics
	var err error
	if m.ticketIssued, err = meter.Int64Counter("auth.ticket.issued",
		metric.WithDescription("Login tickets issued after a successful credential check")); err != nil {
		return nil, err
	}
	if m.loginSuccess, err = meter.Int64Counter("auth.login.success",
		metric.WithDescription("Company-scoped sessions opened")); err != nil {
		return nil, err
	}
	if m.loginFailure, err = meter.Int64Counter("auth.login.failure",
		metric.WithDescription("Failed credential checks and ticket redemptions")); err != nil {
		return nil, err
	}
	if m.refresh, err = meter.Int64Counter("auth.refresh",
		metric.WithDescription("Refresh token exchanges")); err != nil {
		return nil, err
	}
	if m.resetCompleted, err = meter.Int64Counter("auth.password_reset.completed",
		metric.WithDescription("Password resets completed")); err != nil {
		return nil, err
	}
	if m.rateLimit, err = meter.Int64Counter("ratelimit.decisions",
		metric.WithDescription("Rate limit gate decisions")); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Metrics) TicketIssued(ctx context.Context) {
	if m == nil {
		return
	}
	m.ticketIssued.Add(ctx, 1)
}

func (m *Metrics) LoginSucceeded(ctx context.Context) {
	if m == nil {
		return
	}
	m.loginSuccess.Add(ctx, 1)
}

// LoginFailed counts a failed step; step is "ticket" or "login".
func (m *Metrics) LoginFailed(ctx context.Context, step string) {
	if m == nil {
		return
	}
	m.loginFailure.Add(ctx, 1, metric.WithAttributes(attribute.String("step", step)))
}

func (m *Metrics) Refreshed(ctx context.Context, ok bool) {
	if m == nil {
		return
	}
	m.refresh.Add(ctx, 1, metric.WithAttributes(attribute.Bool("ok", ok)))
}

func (m *Metrics) PasswordResetCompleted(ctx context.Context) {
	if m == nil {
		return
	}
	m.resetCompleted.Add(ctx, 1)
}

// RateLimitDecision counts one gate decision for the operation.
func (m *Metrics) RateLimitDecision(ctx context.Context, op string, allowed bool) {
	if m == nil {
		return
	}
	m.rateLimit.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.Bool("allowed", allowed),
	))
}
