package decorators

import (
	"context"
	"time"

	"github.com/woragis/woragis-sub002/application/ports"
	"github.com/woragis/woragis-sub002/domain/core/entities"
	"github.com/woragis/woragis-sub002/domain/core/valueobjects"
	"github.com/woragis/woragis-sub002/infrastructure/observability"
	pkgerrors "github.com/woragis/woragis-sub002/pkg/errors"
)

// MetricsRepository records operation counts, latencies and the business
// counters derived from repository calls.
type MetricsRepository struct {
	inner   ports.NodeRepository
	metrics *observability.Collector
}

var (
	_ ports.NodeRepository = (*MetricsRepository)(nil)
	_ ports.HealthChecker  = (*MetricsRepository)(nil)
)

// NewMetricsRepository wraps inner.
func NewMetricsRepository(inner ports.NodeRepository, metrics *observability.Collector) *MetricsRepository {
	return &MetricsRepository{inner: inner, metrics: metrics}
}

func (r *MetricsRepository) observe(op string, start time.Time, err error) {
	r.metrics.RepositoryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	r.metrics.RepositoryOperations.WithLabelValues(op, status(err)).Inc()
}

func status(err error) string {
	switch {
	case err == nil:
		return "success"
	case pkgerrors.IsNotFound(err):
		return "not_found"
	case pkgerrors.IsConflict(err):
		return "conflict"
	case pkgerrors.IsValidation(err):
		return "invalid"
	default:
		return "error"
	}
}

func (r *MetricsRepository) Save(ctx context.Context, node *entities.IdeaNode) error {
	start := time.Now()
	isNew := node.PersistedVersion() == 0
	err := r.inner.Save(ctx, node)
	r.observe("save", start, err)
	if err == nil && isNew {
		r.metrics.NodesCreated.Inc()
	}
	return err
}

func (r *MetricsRepository) GetByID(ctx context.Context, ideaID valueobjects.IdeaID, id valueobjects.NodeID) (*entities.IdeaNode, error) {
	start := time.Now()
	node, err := r.inner.GetByID(ctx, ideaID, id)
	r.observe("get", start, err)
	return node, err
}

func (r *MetricsRepository) ListByIdea(ctx context.Context, ideaID valueobjects.IdeaID) ([]*entities.IdeaNode, error) {
	start := time.Now()
	nodes, err := r.inner.ListByIdea(ctx, ideaID)
	r.observe("list", start, err)
	return nodes, err
}

func (r *MetricsRepository) CountByIdea(ctx context.Context, ideaID valueobjects.IdeaID) (int, error) {
	start := time.Now()
	n, err := r.inner.CountByIdea(ctx, ideaID)
	r.observe("count", start, err)
	return n, err
}

func (r *MetricsRepository) Delete(ctx context.Context, ideaID valueobjects.IdeaID, id valueobjects.NodeID, expectedVersion int) error {
	start := time.Now()
	err := r.inner.Delete(ctx, ideaID, id, expectedVersion)
	r.observe("delete", start, err)
	if err == nil {
		r.metrics.NodesDeleted.Inc()
	}
	return err
}

func (r *MetricsRepository) DeleteAndScrub(ctx context.Context, ideaID valueobjects.IdeaID, id valueobjects.NodeID, expectedVersion int) ([]*entities.IdeaNode, error) {
	start := time.Now()
	scrubbed, err := r.inner.DeleteAndScrub(ctx, ideaID, id, expectedVersion)
	r.observe("delete_and_scrub", start, err)
	if err == nil {
		r.metrics.NodesDeleted.Inc()
		r.metrics.ConnectionsScrubbed.Add(float64(len(scrubbed)))
	}
	return scrubbed, err
}

func (r *MetricsRepository) Ping(ctx context.Context) error {
	return ping(ctx, r.inner)
}
