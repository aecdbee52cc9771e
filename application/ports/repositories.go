package ports

import (
	"context"

	"github.com/woragis/woragis-sub002/domain/core/entities"
	"github.com/woragis/woragis-sub002/domain/core/valueobjects"
	"github.com/woragis/woragis-sub002/domain/events"
)

// NodeRepository persists idea nodes. Every node is addressed by its idea
// and its id; a node looked up under the wrong idea is not found.
type NodeRepository interface {
	// Save creates or updates a node. The write is conditional on the
	// node's PersistedVersion: zero requires the node to be absent,
	// anything else requires the stored version to match. A lost race
	// returns a version conflict error and leaves storage untouched.
	// On success the node is marked persisted.
	Save(ctx context.Context, node *entities.IdeaNode) error

	// GetByID retrieves one node. Missing nodes yield a not found error.
	GetByID(ctx context.Context, ideaID valueobjects.IdeaID, id valueobjects.NodeID) (*entities.IdeaNode, error)

	// ListByIdea returns every node of an idea in creation order.
	ListByIdea(ctx context.Context, ideaID valueobjects.IdeaID) ([]*entities.IdeaNode, error)

	// CountByIdea returns the number of nodes of an idea.
	CountByIdea(ctx context.Context, ideaID valueobjects.IdeaID) (int, error)

	// Delete removes a node and nothing else. References to it from other
	// nodes' connection lists are left in place. A non-zero expectedVersion
	// makes the delete conditional on the stored version, checked in the
	// same atomic step.
	Delete(ctx context.Context, ideaID valueobjects.IdeaID, id valueobjects.NodeID, expectedVersion int) error

	// DeleteAndScrub removes a node and strips its id from every sibling's
	// connection list in one atomic operation. It returns the siblings it
	// rewrote, carrying their uncommitted events. expectedVersion behaves as
	// in Delete.
	DeleteAndScrub(ctx context.Context, ideaID valueobjects.IdeaID, id valueobjects.NodeID, expectedVersion int) ([]*entities.IdeaNode, error)
}

// HealthChecker is implemented by repositories that can probe their
// backing store.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// EventPublisher delivers domain events to interested consumers.
type EventPublisher interface {
	Publish(ctx context.Context, events []events.DomainEvent) error
}
