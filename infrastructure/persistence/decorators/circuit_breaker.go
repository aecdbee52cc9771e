// Package decorators wraps a ports.NodeRepository with cross-cutting
// behaviour: circuit breaking, tracing and metrics.
package decorators

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/woragis/woragis-sub002/application/ports"
	"github.com/woragis/woragis-sub002/domain/core/entities"
	"github.com/woragis/woragis-sub002/domain/core/valueobjects"
	"github.com/woragis/woragis-sub002/infrastructure/observability"
	pkgerrors "github.com/woragis/woragis-sub002/pkg/errors"
)

// CircuitBreakerConfig holds configuration for the repository breaker.
type CircuitBreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultCircuitBreakerConfig returns the breaker settings used in
// production.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// CircuitBreakerRepository fails fast while the backing store is
// failing. Domain outcomes such as not found or a version conflict are
// answers from a healthy store and do not count as failures.
type CircuitBreakerRepository struct {
	inner   ports.NodeRepository
	breaker *gobreaker.CircuitBreaker
}

var (
	_ ports.NodeRepository = (*CircuitBreakerRepository)(nil)
	_ ports.HealthChecker  = (*CircuitBreakerRepository)(nil)
)

// NewCircuitBreakerRepository wraps inner. collector may be nil.
func NewCircuitBreakerRepository(inner ports.NodeRepository, config CircuitBreakerConfig, logger *zap.Logger, collector *observability.Collector) *CircuitBreakerRepository {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < config.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= config.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			if collector != nil {
				collector.CircuitState.WithLabelValues(name).Set(float64(to))
			}
		},
		IsSuccessful: func(err error) bool {
			return err == nil || pkgerrors.IsDomainError(err) || errors.Is(err, context.Canceled)
		},
	})
	return &CircuitBreakerRepository{inner: inner, breaker: breaker}
}

// State reports the breaker's current state.
func (r *CircuitBreakerRepository) State() gobreaker.State {
	return r.breaker.State()
}

func (r *CircuitBreakerRepository) execute(fn func() (any, error)) (any, error) {
	result, err := r.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, pkgerrors.NewUnavailableError("node store").WithCause(err)
	}
	return result, err
}

func (r *CircuitBreakerRepository) Save(ctx context.Context, node *entities.IdeaNode) error {
	_, err := r.execute(func() (any, error) {
		return nil, r.inner.Save(ctx, node)
	})
	return err
}

func (r *CircuitBreakerRepository) GetByID(ctx context.Context, ideaID valueobjects.IdeaID, id valueobjects.NodeID) (*entities.IdeaNode, error) {
	result, err := r.execute(func() (any, error) {
		return r.inner.GetByID(ctx, ideaID, id)
	})
	if err != nil {
		return nil, err
	}
	return result.(*entities.IdeaNode), nil
}

func (r *CircuitBreakerRepository) ListByIdea(ctx context.Context, ideaID valueobjects.IdeaID) ([]*entities.IdeaNode, error) {
	result, err := r.execute(func() (any, error) {
		return r.inner.ListByIdea(ctx, ideaID)
	})
	if err != nil {
		return nil, err
	}
	return result.([]*entities.IdeaNode), nil
}

func (r *CircuitBreakerRepository) CountByIdea(ctx context.Context, ideaID valueobjects.IdeaID) (int, error) {
	result, err := r.execute(func() (any, error) {
		return r.inner.CountByIdea(ctx, ideaID)
	})
	if err != nil {
		return 0, err
	}
	return result.(int), nil
}

func (r *CircuitBreakerRepository) Delete(ctx context.Context, ideaID valueobjects.IdeaID, id valueobjects.NodeID, expectedVersion int) error {
	_, err := r.execute(func() (any, error) {
		return nil, r.inner.Delete(ctx, ideaID, id, expectedVersion)
	})
	return err
}

func (r *CircuitBreakerRepository) DeleteAndScrub(ctx context.Context, ideaID valueobjects.IdeaID, id valueobjects.NodeID, expectedVersion int) ([]*entities.IdeaNode, error) {
	result, err := r.execute(func() (any, error) {
		return r.inner.DeleteAndScrub(ctx, ideaID, id, expectedVersion)
	})
	if err != nil {
		return nil, err
	}
	return result.([]*entities.IdeaNode), nil
}

// Ping bypasses the breaker so readiness reflects the store itself.
func (r *CircuitBreakerRepository) Ping(ctx context.Context) error {
	return ping(ctx, r.inner)
}

func ping(ctx context.Context, repo ports.NodeRepository) error {
	if hc, ok := repo.(ports.HealthChecker); ok {
		return hc.Ping(ctx)
	}
	return nil
}
