package decorators

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"

	"github.com/woragis/woragis-sub002/application/ports"
	"github.com/woragis/woragis-sub002/domain/core/entities"
	"github.com/woragis/woragis-sub002/domain/core/valueobjects"
	"github.com/woragis/woragis-sub002/infrastructure/observability"
	"github.com/woragis/woragis-sub002/infrastructure/persistence/memory"
	"github.com/woragis/woragis-sub002/internal/fixtures"
	pkgerrors "github.com/woragis/woragis-sub002/pkg/errors"
)

// failingRepository fails every call with err.
type failingRepository struct {
	ports.NodeRepository
	err   error
	calls int
}

func (f *failingRepository) GetByID(context.Context, valueobjects.IdeaID, valueobjects.NodeID) (*entities.IdeaNode, error) {
	f.calls++
	return nil, f.err
}

func testBreakerConfig() CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig("test")
	cfg.MinRequests = 3
	cfg.FailureThreshold = 0.5
	cfg.Timeout = time.Hour
	return cfg
}

func TestCircuitBreaker_OpensOnStoreFailures(t *testing.T) {
	inner := &failingRepository{err: pkgerrors.NewDatabaseError("get node", errors.New("timeout"))}
	collector := observability.NewCollector("test")
	repo := NewCircuitBreakerRepository(inner, testBreakerConfig(), zap.NewNop(), collector)
	ideaID := fixtures.MustIdeaID("idea-1")

	for i := 0; i < 3; i++ {
		_, err := repo.GetByID(context.Background(), ideaID, valueobjects.NewNodeID())
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, repo.State())
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.CircuitState.WithLabelValues("test")))

	_, err := repo.GetByID(context.Background(), ideaID, valueobjects.NewNodeID())
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeUnavailable))
	assert.Equal(t, 3, inner.calls, "open breaker does not reach the store")
}

func TestCircuitBreaker_DomainErrorsDoNotTrip(t *testing.T) {
	inner := &failingRepository{err: pkgerrors.NewNotFoundError("node")}
	repo := NewCircuitBreakerRepository(inner, testBreakerConfig(), zap.NewNop(), nil)

	for i := 0; i < 10; i++ {
		_, err := repo.GetByID(context.Background(), fixtures.MustIdeaID("idea-1"), valueobjects.NewNodeID())
		assert.True(t, pkgerrors.IsNotFound(err))
	}
	assert.Equal(t, gobreaker.StateClosed, repo.State())
}

func TestCircuitBreaker_PassesResultsThrough(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewNodeRepository(zap.NewNop())
	repo := NewCircuitBreakerRepository(mem, testBreakerConfig(), zap.NewNop(), nil)
	fresh, err := entities.NewIdeaNode(fixtures.MustIdeaID("idea-1"), entities.NewNodeSpec{}, nil)
	require.NoError(t, err)

	require.NoError(t, repo.Save(ctx, fresh))
	got, err := repo.GetByID(ctx, fresh.IdeaID(), fresh.ID())
	require.NoError(t, err)
	assert.Equal(t, fresh.ID(), got.ID())

	n, err := repo.CountByIdea(ctx, fresh.IdeaID())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	list, err := repo.ListByIdea(ctx, fresh.IdeaID())
	require.NoError(t, err)
	assert.Len(t, list, 1)

	scrubbed, err := repo.DeleteAndScrub(ctx, fresh.IdeaID(), fresh.ID(), 0)
	require.NoError(t, err)
	assert.Empty(t, scrubbed)
	assert.NoError(t, repo.Ping(ctx))
}

func TestMetricsRepository_CountsOutcomes(t *testing.T) {
	ctx := context.Background()
	collector := observability.NewCollector("test")
	repo := NewMetricsRepository(memory.NewNodeRepository(zap.NewNop()), collector)

	a, err := entities.NewIdeaNode(fixtures.MustIdeaID("idea-1"), entities.NewNodeSpec{}, nil)
	require.NoError(t, err)
	b, err := entities.NewIdeaNode(fixtures.MustIdeaID("idea-1"), entities.NewNodeSpec{}, nil)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, a))
	require.NoError(t, repo.Save(ctx, b))
	_, err = b.ConnectTo(a.ID(), nil)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, b))

	_, err = repo.GetByID(ctx, a.IdeaID(), valueobjects.NewNodeID())
	require.Error(t, err)

	scrubbed, err := repo.DeleteAndScrub(ctx, a.IdeaID(), a.ID(), 0)
	require.NoError(t, err)
	require.Len(t, scrubbed, 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.NodesCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.NodesDeleted))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.ConnectionsScrubbed))
	assert.Equal(t, 3.0, testutil.ToFloat64(collector.RepositoryOperations.WithLabelValues("save", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.RepositoryOperations.WithLabelValues("get", "not_found")))
}

func TestTracingRepository_RecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	ctx := context.Background()
	inner := &failingRepository{err: pkgerrors.NewDatabaseError("get node", errors.New("boom"))}
	repo := NewTracingRepository(inner, "memory")

	_, err := repo.GetByID(ctx, fixtures.MustIdeaID("idea-1"), valueobjects.NewNodeID())
	require.Error(t, err)

	inner.err = pkgerrors.NewNotFoundError("node")
	_, err = repo.GetByID(ctx, fixtures.MustIdeaID("idea-1"), valueobjects.NewNodeID())
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "NodeRepository.GetByID", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, codes.Unset, spans[1].Status().Code, "not found is not a span error")
}
