// Package fixtures builds domain objects for tests.
package fixtures

import (
	"time"

	"github.com/woragis/woragis-sub002/domain/core/entities"
	"github.com/woragis/woragis-sub002/domain/core/valueobjects"
)

// NodeBuilder creates persisted-looking idea nodes with sensible defaults.
type NodeBuilder struct {
	snapshot entities.NodeSnapshot
}

func NewNodeBuilder() *NodeBuilder {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &NodeBuilder{snapshot: entities.NodeSnapshot{
		ID:          valueobjects.NewNodeID().String(),
		IdeaID:      "idea-1",
		Title:       "Test Idea",
		Content:     "Test content",
		Type:        "default",
		PositionX:   0,
		PositionY:   0,
		Width:       200,
		Height:      100,
		Connections: []string{},
		Visible:     true,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}}
}

func (b *NodeBuilder) WithID(id string) *NodeBuilder {
	b.snapshot.ID = id
	return b
}

func (b *NodeBuilder) WithIdeaID(ideaID string) *NodeBuilder {
	b.snapshot.IdeaID = ideaID
	return b
}

func (b *NodeBuilder) WithTitle(title string) *NodeBuilder {
	b.snapshot.Title = title
	return b
}

func (b *NodeBuilder) WithPosition(x, y float64) *NodeBuilder {
	b.snapshot.PositionX, b.snapshot.PositionY = x, y
	return b
}

func (b *NodeBuilder) WithColor(color string) *NodeBuilder {
	b.snapshot.Color = &color
	return b
}

func (b *NodeBuilder) WithConnections(ids ...string) *NodeBuilder {
	b.snapshot.Connections = append([]string{}, ids...)
	return b
}

func (b *NodeBuilder) WithVersion(version int) *NodeBuilder {
	b.snapshot.Version = version
	return b
}

func (b *NodeBuilder) WithCreatedAt(at time.Time) *NodeBuilder {
	b.snapshot.CreatedAt, b.snapshot.UpdatedAt = at, at
	return b
}

// Snapshot returns the underlying snapshot.
func (b *NodeBuilder) Snapshot() entities.NodeSnapshot {
	s := b.snapshot
	s.Connections = append([]string{}, b.snapshot.Connections...)
	return s
}

func (b *NodeBuilder) Build() (*entities.IdeaNode, error) {
	return entities.ReconstructIdeaNode(b.Snapshot())
}

func (b *NodeBuilder) MustBuild() *entities.IdeaNode {
	node, err := b.Build()
	if err != nil {
		panic(err)
	}
	return node
}

// MustIdeaID panics on an invalid idea reference.
func MustIdeaID(id string) valueobjects.IdeaID {
	ideaID, err := valueobjects.NewIdeaID(id)
	if err != nil {
		panic(err)
	}
	return ideaID
}

// MustPosition panics on invalid coordinates.
func MustPosition(x, y float64) valueobjects.Position {
	p, err := valueobjects.NewPosition(x, y)
	if err != nil {
		panic(err)
	}
	return p
}

// MustNodeID panics on a malformed node id.
func MustNodeID(id string) valueobjects.NodeID {
	nodeID, err := valueobjects.NewNodeIDFromString(id)
	if err != nil {
		panic(err)
	}
	return nodeID
}
