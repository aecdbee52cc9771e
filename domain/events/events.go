package events

import (
	"time"

	"github.com/woragis/woragis-sub002/domain/core/valueobjects"
)

// Event types published for idea nodes.
const (
	TypeNodeCreated             = "node.created"
	TypeNodeUpdated             = "node.updated"
	TypeNodeMoved               = "node.moved"
	TypeNodeConnectionsReplaced = "node.connections_replaced"
	TypeNodeDeleted             = "node.deleted"
)

// DomainEvent is something that happened to an idea node.
type DomainEvent interface {
	GetAggregateID() string
	GetIdeaID() string
	GetEventType() string
	GetTimestamp() time.Time
	// GetVersion is the node version the event produced.
	GetVersion() int
}

// BaseEvent carries the fields shared by every event.
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	IdeaID      string    `json:"idea_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetIdeaID() string       { return e.IdeaID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int         { return e.Version }

func newBase(eventType string, nodeID valueobjects.NodeID, ideaID valueobjects.IdeaID, version int, at time.Time) BaseEvent {
	return BaseEvent{
		AggregateID: nodeID.String(),
		IdeaID:      ideaID.String(),
		EventType:   eventType,
		Timestamp:   at,
		Version:     version,
	}
}

// NodeCreated is raised by the add node action.
type NodeCreated struct {
	BaseEvent
	Title     string  `json:"title"`
	Type      string  `json:"type"`
	PositionX float64 `json:"position_x"`
	PositionY float64 `json:"position_y"`
}

func NewNodeCreated(nodeID valueobjects.NodeID, ideaID valueobjects.IdeaID, title, nodeType string, pos valueobjects.Position, at time.Time) NodeCreated {
	return NodeCreated{
		BaseEvent: newBase(TypeNodeCreated, nodeID, ideaID, 1, at),
		Title:     title,
		Type:      nodeType,
		PositionX: pos.X(),
		PositionY: pos.Y(),
	}
}

// NodeUpdated is raised by a field edit. ChangedFields lists the JSON names
// of the fields whose value changed.
type NodeUpdated struct {
	BaseEvent
	ChangedFields []string `json:"changed_fields"`
}

func NewNodeUpdated(nodeID valueobjects.NodeID, ideaID valueobjects.IdeaID, changed []string, version int, at time.Time) NodeUpdated {
	return NodeUpdated{
		BaseEvent:     newBase(TypeNodeUpdated, nodeID, ideaID, version, at),
		ChangedFields: changed,
	}
}

// NodeMoved is raised when a drag ends at a new position.
type NodeMoved struct {
	BaseEvent
	FromX float64 `json:"from_x"`
	FromY float64 `json:"from_y"`
	ToX   float64 `json:"to_x"`
	ToY   float64 `json:"to_y"`
}

func NewNodeMoved(nodeID valueobjects.NodeID, ideaID valueobjects.IdeaID, from, to valueobjects.Position, version int, at time.Time) NodeMoved {
	return NodeMoved{
		BaseEvent: newBase(TypeNodeMoved, nodeID, ideaID, version, at),
		FromX:     from.X(),
		FromY:     from.Y(),
		ToX:       to.X(),
		ToY:       to.Y(),
	}
}

// NodeConnectionsReplaced is raised whenever a node's connection list
// changes, including scrubs after a delete.
type NodeConnectionsReplaced struct {
	BaseEvent
	Previous []string `json:"previous"`
	Current  []string `json:"current"`
}

func NewNodeConnectionsReplaced(nodeID valueobjects.NodeID, ideaID valueobjects.IdeaID, previous, current []valueobjects.NodeID, version int, at time.Time) NodeConnectionsReplaced {
	return NodeConnectionsReplaced{
		BaseEvent: newBase(TypeNodeConnectionsReplaced, nodeID, ideaID, version, at),
		Previous:  valueobjects.NodeIDStrings(previous),
		Current:   valueobjects.NodeIDStrings(current),
	}
}

// NodeDeleted is raised on delete. ScrubbedNodeIDs lists the siblings whose
// connection lists were cleaned in the same operation; it is empty when
// dangling references are left in place.
type NodeDeleted struct {
	BaseEvent
	ScrubbedNodeIDs []string `json:"scrubbed_node_ids"`
}

func NewNodeDeleted(nodeID valueobjects.NodeID, ideaID valueobjects.IdeaID, scrubbed []valueobjects.NodeID, version int, at time.Time) NodeDeleted {
	return NodeDeleted{
		BaseEvent:       newBase(TypeNodeDeleted, nodeID, ideaID, version, at),
		ScrubbedNodeIDs: valueobjects.NodeIDStrings(scrubbed),
	}
}
