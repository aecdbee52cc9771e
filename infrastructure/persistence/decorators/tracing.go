package decorators

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/woragis/woragis-sub002/application/ports"
	"github.com/woragis/woragis-sub002/domain/core/entities"
	"github.com/woragis/woragis-sub002/domain/core/valueobjects"
	pkgerrors "github.com/woragis/woragis-sub002/pkg/errors"
)

const tracerName = "github.com/woragis/woragis-sub002/infrastructure/persistence"

// TracingRepository opens a client span around every repository call.
type TracingRepository struct {
	inner  ports.NodeRepository
	tracer trace.Tracer
	store  string
}

var (
	_ ports.NodeRepository = (*TracingRepository)(nil)
	_ ports.HealthChecker  = (*TracingRepository)(nil)
)

// NewTracingRepository wraps inner. store names the backend in span
// attributes, e.g. "dynamodb".
func NewTracingRepository(inner ports.NodeRepository, store string) *TracingRepository {
	return &TracingRepository{inner: inner, tracer: otel.Tracer(tracerName), store: store}
}

func (r *TracingRepository) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String("db.system", r.store),
		attribute.String("db.operation", op),
	)
	return r.tracer.Start(ctx, "NodeRepository."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

func finish(span trace.Span, err error) {
	defer span.End()
	if err == nil {
		return
	}
	span.RecordError(err)
	// Domain outcomes are answers, not faults.
	if !pkgerrors.IsDomainError(err) {
		span.SetStatus(codes.Error, err.Error())
	}
}

func nodeAttrs(ideaID valueobjects.IdeaID, id valueobjects.NodeID) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("idea.id", ideaID.String()),
		attribute.String("node.id", id.String()),
	}
}

func (r *TracingRepository) Save(ctx context.Context, node *entities.IdeaNode) error {
	ctx, span := r.start(ctx, "Save", append(nodeAttrs(node.IdeaID(), node.ID()),
		attribute.Int("node.version", node.Version()),
		attribute.Int("node.persisted_version", node.PersistedVersion()),
	)...)
	err := r.inner.Save(ctx, node)
	finish(span, err)
	return err
}

func (r *TracingRepository) GetByID(ctx context.Context, ideaID valueobjects.IdeaID, id valueobjects.NodeID) (*entities.IdeaNode, error) {
	ctx, span := r.start(ctx, "GetByID", nodeAttrs(ideaID, id)...)
	node, err := r.inner.GetByID(ctx, ideaID, id)
	finish(span, err)
	return node, err
}

func (r *TracingRepository) ListByIdea(ctx context.Context, ideaID valueobjects.IdeaID) ([]*entities.IdeaNode, error) {
	ctx, span := r.start(ctx, "ListByIdea", attribute.String("idea.id", ideaID.String()))
	nodes, err := r.inner.ListByIdea(ctx, ideaID)
	span.SetAttributes(attribute.Int("result.count", len(nodes)))
	finish(span, err)
	return nodes, err
}

func (r *TracingRepository) CountByIdea(ctx context.Context, ideaID valueobjects.IdeaID) (int, error) {
	ctx, span := r.start(ctx, "CountByIdea", attribute.String("idea.id", ideaID.String()))
	n, err := r.inner.CountByIdea(ctx, ideaID)
	finish(span, err)
	return n, err
}

func (r *TracingRepository) Delete(ctx context.Context, ideaID valueobjects.IdeaID, id valueobjects.NodeID, expectedVersion int) error {
	ctx, span := r.start(ctx, "Delete", nodeAttrs(ideaID, id)...)
	err := r.inner.Delete(ctx, ideaID, id, expectedVersion)
	finish(span, err)
	return err
}

func (r *TracingRepository) DeleteAndScrub(ctx context.Context, ideaID valueobjects.IdeaID, id valueobjects.NodeID, expectedVersion int) ([]*entities.IdeaNode, error) {
	ctx, span := r.start(ctx, "DeleteAndScrub", nodeAttrs(ideaID, id)...)
	scrubbed, err := r.inner.DeleteAndScrub(ctx, ideaID, id, expectedVersion)
	span.SetAttributes(attribute.Int("scrubbed.count", len(scrubbed)))
	finish(span, err)
	return scrubbed, err
}

func (r *TracingRepository) Ping(ctx context.Context) error {
	ctx, span := r.start(ctx, "Ping")
	err := ping(ctx, r.inner)
	finish(span, err)
	return err
}
