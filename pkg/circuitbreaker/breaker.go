// Package circuitbreaker guards calls to remote dependencies such as the
// permission authority.
package circuitbreaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"switchyard/internal/config"
	"switchyard/pkg/metrics"
)

const (
	defaultMaxRequests  = 3
	defaultInterval     = 60 * time.Second
	defaultTimeout      = 60 * time.Second
	defaultFailureRatio = 0.5
	defaultMinRequests  = 3
)

type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// New builds a breaker from the circuit_breaker section. Zero fields fall
// back to the defaults.
func New(name string, cfg config.CircuitBreakerConfig) *Breaker {
	settings := gobreaker.Settings{
		Name:         name,
		MaxRequests:  defaultMaxRequests,
		Interval:     defaultInterval,
		Timeout:      defaultTimeout,
		ReadyToTrip:  tripAt(cfg.FailureRatio, cfg.MinRequests),
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, _, to gobreaker.State) {
			setState(name, to)
		},
	}
	if cfg.MaxRequests > 0 {
		settings.MaxRequests = cfg.MaxRequests
	}
	if cfg.Interval > 0 {
		settings.Interval = cfg.Interval
	}
	if cfg.Timeout > 0 {
		settings.Timeout = cfg.Timeout
	}

	cb := gobreaker.NewCircuitBreaker(settings)
	setState(name, cb.State())
	return &Breaker{cb: cb}
}

func tripAt(ratio float64, minRequests uint32) func(gobreaker.Counts) bool {
	if ratio <= 0 {
		ratio = defaultFailureRatio
	}
	if minRequests == 0 {
		minRequests = defaultMinRequests
	}
	return func(counts gobreaker.Counts) bool {
		if counts.Requests < minRequests {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
	}
}

// isSuccessful keeps callers giving up from counting against the remote.
func isSuccessful(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}

// Execute runs fn through b. A done ctx short-circuits without touching
// the breaker counts.
func Execute[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	result, err := b.cb.Execute(func() (interface{}, error) {
		return fn(ctx)
	})

	metrics.CircuitBreakerRequests.WithLabelValues(b.cb.Name(), b.cb.State().String()).Inc()
	if err != nil {
		if !isSuccessful(err) {
			metrics.CircuitBreakerFailures.WithLabelValues(b.cb.Name()).Inc()
		}
		return zero, err
	}
	return result.(T), nil
}

// Rejected reports whether err came from the breaker refusing the call
// rather than from the call itself.
func Rejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func (b *Breaker) Name() string {
	return b.cb.Name()
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func setState(name string, state gobreaker.State) {
	var value float64
	switch state {
	case gobreaker.StateHalfOpen:
		value = 1
	case gobreaker.StateOpen:
		value = 2
	}
	metrics.CircuitBreakerState.WithLabelValues(name).Set(value)
}
