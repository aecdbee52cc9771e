package services

import (
	"context"
	"math/rand"

	"github.com/woragis/woragis-sub002/application/commands"
	"github.com/woragis/woragis-sub002/application/ports"
	"github.com/woragis/woragis-sub002/application/queries"
	"github.com/woragis/woragis-sub002/domain/config"
	"github.com/woragis/woragis-sub002/domain/core/entities"
	"github.com/woragis/woragis-sub002/domain/core/graph"
	"github.com/woragis/woragis-sub002/domain/core/valueobjects"
	"github.com/woragis/woragis-sub002/domain/events"
	pkgerrors "github.com/woragis/woragis-sub002/pkg/errors"

	"go.uber.org/zap"
)

// PositionSource picks the initial position of a node created without one.
type PositionSource func(extent float64) (x, y float64)

// RandomPosition places nodes uniformly in [0, extent) on both axes.
func RandomPosition(extent float64) (float64, float64) {
	return rand.Float64() * extent, rand.Float64() * extent
}

// NodeService implements the node store operations on top of a
// NodeRepository: validation, defaults, optimistic concurrency, delete
// policy and event publication.
type NodeService struct {
	repo      ports.NodeRepository
	publisher ports.EventPublisher
	config    *config.Holder
	logger    *zap.Logger
	positions PositionSource
}

// NewNodeService creates a node service. publisher may be nil.
func NewNodeService(
	repo ports.NodeRepository,
	publisher ports.EventPublisher,
	cfg *config.Holder,
	logger *zap.Logger,
) *NodeService {
	if cfg == nil {
		cfg = config.NewHolder(nil)
	}
	return &NodeService{
		repo:      repo,
		publisher: publisher,
		config:    cfg,
		logger:    logger,
		positions: RandomPosition,
	}
}

// WithPositionSource overrides the randomized default position.
func (s *NodeService) WithPositionSource(src PositionSource) *NodeService {
	s.positions = src
	return s
}

// DeleteResult reports the outcome of a delete.
type DeleteResult struct {
	Node     *entities.IdeaNode
	Scrubbed []valueobjects.NodeID
}

// List returns every node of an idea.
func (s *NodeService) List(ctx context.Context, q queries.ListNodesQuery) ([]*entities.IdeaNode, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	ideaID, err := valueobjects.NewIdeaID(q.IdeaID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListByIdea(ctx, ideaID)
}

// Get returns one node.
func (s *NodeService) Get(ctx context.Context, q queries.GetNodeQuery) (*entities.IdeaNode, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	ideaID, nodeID, err := parseKeys(q.IdeaID, q.NodeID)
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, ideaID, nodeID)
}

// Edges derives the edge list of an idea from its nodes.
func (s *NodeService) Edges(ctx context.Context, q queries.ListEdgesQuery) ([]graph.Edge, error) {
	nodes, err := s.List(ctx, queries.ListNodesQuery{IdeaID: q.IdeaID})
	if err != nil {
		return nil, err
	}
	vertices := make([]graph.Vertex, len(nodes))
	for i, n := range nodes {
		vertices[i] = n.Vertex()
	}
	if q.DanglingOnly {
		return graph.DanglingEdges(vertices), nil
	}
	return graph.DeriveEdges(vertices), nil
}

// Create adds a node with an empty connection list.
func (s *NodeService) Create(ctx context.Context, cmd commands.CreateNodeCommand) (*entities.IdeaNode, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	ideaID, err := valueobjects.NewIdeaID(cmd.IdeaID)
	if err != nil {
		return nil, err
	}
	cfg := s.config.Current()

	count, err := s.repo.CountByIdea(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	if count >= cfg.MaxNodesPerIdea {
		return nil, pkgerrors.NewValidationError("idea has reached its node limit").
			WithDetail("max_nodes", cfg.MaxNodesPerIdea)
	}

	x, y := s.positions(cfg.SpawnExtent)
	if cmd.PositionX != nil {
		x = *cmd.PositionX
	}
	if cmd.PositionY != nil {
		y = *cmd.PositionY
	}
	position, err := valueobjects.NewPosition(x, y)
	if err != nil {
		return nil, err
	}

	node, err := entities.NewIdeaNode(ideaID, entities.NewNodeSpec{
		Title:    cmd.Title,
		Content:  cmd.Content,
		Type:     cmd.Type,
		Position: position,
		Width:    cmd.Width,
		Height:   cmd.Height,
		Color:    cmd.Color,
		Visible:  cmd.Visible,
	}, cfg)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, node); err != nil {
		return nil, err
	}
	s.logger.Info("Node created",
		zap.String("idea_id", ideaID.String()),
		zap.String("node_id", node.ID().String()),
		zap.String("actor", cmd.Actor),
	)
	s.publish(ctx, node)
	return node, nil
}

// UpdateFields merges a partial field edit.
func (s *NodeService) UpdateFields(ctx context.Context, cmd commands.UpdateNodeFieldsCommand) (*entities.IdeaNode, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	patch := entities.FieldPatch{
		Title:   cmd.Title,
		Content: cmd.Content,
		Type:    cmd.Type,
		Color:   cmd.Color,
		Width:   cmd.Width,
		Height:  cmd.Height,
		Visible: cmd.Visible,
	}
	return s.mutate(ctx, cmd.IdeaID, cmd.NodeID, cmd.ExpectedVersion, "update_fields",
		func(node *entities.IdeaNode, cfg *config.DomainConfig) error {
			_, err := node.ApplyPatch(patch, cfg)
			return err
		})
}

// UpdatePosition persists the final position of a drag.
func (s *NodeService) UpdatePosition(ctx context.Context, cmd commands.UpdateNodePositionCommand) (*entities.IdeaNode, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	position, err := valueobjects.NewPosition(cmd.X, cmd.Y)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, cmd.IdeaID, cmd.NodeID, cmd.ExpectedVersion, "update_position",
		func(node *entities.IdeaNode, _ *config.DomainConfig) error {
			node.MoveTo(position)
			return nil
		})
}

// UpdateConnections replaces a node's connection list.
func (s *NodeService) UpdateConnections(ctx context.Context, cmd commands.UpdateNodeConnectionsCommand) (*entities.IdeaNode, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	targets, err := valueobjects.NodeIDsFromStrings(cmd.Connections)
	if err != nil {
		return nil, err
	}
	if err := s.checkTargets(ctx, cmd.IdeaID, targets); err != nil {
		return nil, err
	}
	return s.mutate(ctx, cmd.IdeaID, cmd.NodeID, cmd.ExpectedVersion, "update_connections",
		func(node *entities.IdeaNode, cfg *config.DomainConfig) error {
			_, err := node.ReplaceConnections(targets, cfg)
			return err
		})
}

// Connect appends one target to a node's connection list. A lost race is
// retried, so concurrent connects to the same source are all kept.
func (s *NodeService) Connect(ctx context.Context, cmd commands.ConnectNodesCommand) (*entities.IdeaNode, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	target, err := valueobjects.NewNodeIDFromString(cmd.TargetID)
	if err != nil {
		return nil, err
	}
	if err := s.checkTargets(ctx, cmd.IdeaID, []valueobjects.NodeID{target}); err != nil {
		return nil, err
	}
	return s.mutate(ctx, cmd.IdeaID, cmd.SourceID, nil, "connect",
		func(node *entities.IdeaNode, cfg *config.DomainConfig) error {
			_, err := node.ConnectTo(target, cfg)
			return err
		})
}

// Delete removes a node. With ScrubDanglingOnDelete, references to it are
// removed from sibling nodes in the same atomic operation; otherwise they
// are left dangling.
func (s *NodeService) Delete(ctx context.Context, cmd commands.DeleteNodeCommand) (*DeleteResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	ideaID, nodeID, err := parseKeys(cmd.IdeaID, cmd.NodeID)
	if err != nil {
		return nil, err
	}
	cfg := s.config.Current()

	node, err := s.repo.GetByID(ctx, ideaID, nodeID)
	if err != nil {
		return nil, err
	}
	// The version is checked by the repository in the same atomic step as
	// the delete, not against this read.
	expected := 0
	if cmd.ExpectedVersion != nil {
		expected = *cmd.ExpectedVersion
	}

	result := &DeleteResult{Node: node}
	if cfg.ScrubDanglingOnDelete {
		scrubbed, err := s.repo.DeleteAndScrub(ctx, ideaID, nodeID, expected)
		if err != nil {
			return nil, err
		}
		for _, sibling := range scrubbed {
			result.Scrubbed = append(result.Scrubbed, sibling.ID())
			s.publish(ctx, sibling)
		}
	} else if err := s.repo.Delete(ctx, ideaID, nodeID, expected); err != nil {
		return nil, err
	}

	node.MarkDeleted(result.Scrubbed)
	s.logger.Info("Node deleted",
		zap.String("idea_id", ideaID.String()),
		zap.String("node_id", nodeID.String()),
		zap.Int("scrubbed", len(result.Scrubbed)),
		zap.String("actor", cmd.Actor),
	)
	s.publish(ctx, node)
	return result, nil
}

type mutation func(node *entities.IdeaNode, cfg *config.DomainConfig) error

// mutate runs a read-modify-write against one node. With an expected
// version the first mismatch fails; without one, version conflicts from
// concurrent writers are retried up to MaxWriteRetries times.
func (s *NodeService) mutate(ctx context.Context, rawIdeaID, rawNodeID string, expected *int, op string, fn mutation) (*entities.IdeaNode, error) {
	ideaID, nodeID, err := parseKeys(rawIdeaID, rawNodeID)
	if err != nil {
		return nil, err
	}
	cfg := s.config.Current()

	for attempt := 0; ; attempt++ {
		node, err := s.repo.GetByID(ctx, ideaID, nodeID)
		if err != nil {
			return nil, err
		}
		if expected != nil && node.Version() != *expected {
			return nil, pkgerrors.NewVersionConflictError("node", *expected, node.Version())
		}
		if err := fn(node, cfg); err != nil {
			return nil, err
		}
		if !node.IsDirty() {
			return node, nil
		}

		err = s.repo.Save(ctx, node)
		if err == nil {
			s.logger.Debug("Node updated",
				zap.String("op", op),
				zap.String("node_id", nodeID.String()),
				zap.Int("version", node.Version()),
			)
			s.publish(ctx, node)
			return node, nil
		}
		if !pkgerrors.IsVersionConflict(err) || expected != nil || attempt >= cfg.MaxWriteRetries {
			return nil, err
		}
		s.logger.Debug("Retrying after concurrent write",
			zap.String("op", op),
			zap.String("node_id", nodeID.String()),
			zap.Int("attempt", attempt+1),
		)
	}
}

// checkTargets verifies that every target is a node of the same idea when
// ValidateConnectionTargets is on.
func (s *NodeService) checkTargets(ctx context.Context, rawIdeaID string, targets []valueobjects.NodeID) error {
	cfg := s.config.Current()
	if !cfg.ValidateConnectionTargets || len(targets) == 0 {
		return nil
	}
	ideaID, err := valueobjects.NewIdeaID(rawIdeaID)
	if err != nil {
		return err
	}
	nodes, err := s.repo.ListByIdea(ctx, ideaID)
	if err != nil {
		return err
	}
	present := make(map[valueobjects.NodeID]struct{}, len(nodes))
	for _, n := range nodes {
		present[n.ID()] = struct{}{}
	}
	for _, target := range targets {
		if _, ok := present[target]; !ok {
			return pkgerrors.NewValidationError("connection target is not a node of this idea").
				WithDetail("target_id", target.String())
		}
	}
	return nil
}

func (s *NodeService) publish(ctx context.Context, node *entities.IdeaNode) {
	pending := node.GetUncommittedEvents()
	if len(pending) == 0 {
		return
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, append([]events.DomainEvent(nil), pending...)); err != nil {
			s.logger.Warn("Failed to publish node events",
				zap.String("node_id", node.ID().String()),
				zap.Int("count", len(pending)),
				zap.Error(err),
			)
		}
	}
	node.MarkEventsAsCommitted()
}

func parseKeys(rawIdeaID, rawNodeID string) (valueobjects.IdeaID, valueobjects.NodeID, error) {
	ideaID, err := valueobjects.NewIdeaID(rawIdeaID)
	if err != nil {
		return valueobjects.IdeaID{}, valueobjects.NodeID{}, err
	}
	nodeID, err := valueobjects.NewNodeIDFromString(rawNodeID)
	if err != nil {
		return valueobjects.IdeaID{}, valueobjects.NodeID{}, err
	}
	return ideaID, nodeID, nil
}
