package entities

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/woragis/woragis-sub002/domain/config"
	"github.com/woragis/woragis-sub002/domain/core/connections"
	"github.com/woragis/woragis-sub002/domain/core/graph"
	"github.com/woragis/woragis-sub002/domain/core/valueobjects"
	"github.com/woragis/woragis-sub002/domain/events"
	pkgerrors "github.com/woragis/woragis-sub002/pkg/errors"
)

// MaxColorLength bounds the free-form display color.
const MaxColorLength = 64

// IdeaNode is a positioned, styled text box on an idea canvas. Its
// connection list holds the directed edges that start at this node.
type IdeaNode struct {
	id          valueobjects.NodeID
	ideaID      valueobjects.IdeaID
	title       string
	content     string
	nodeType    string
	position    valueobjects.Position
	size        valueobjects.Size
	color       *string
	connections []valueobjects.NodeID
	visible     bool
	createdAt   time.Time
	updatedAt   time.Time

	// version counts persisted mutations; persistedVersion is the version
	// the store holds, 0 for a node that was never saved.
	version          int
	persistedVersion int

	events []events.DomainEvent
}

// NewNodeSpec carries the initial values of a node. Nil pointers fall back
// to the domain defaults.
type NewNodeSpec struct {
	Title    *string
	Content  *string
	Type     *string
	Position valueobjects.Position
	Width    *float64
	Height   *float64
	Color    *string
	Visible  *bool
}

// NewIdeaNode creates a node with a fresh id and no connections.
func NewIdeaNode(ideaID valueobjects.IdeaID, spec NewNodeSpec, cfg *config.DomainConfig) (*IdeaNode, error) {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	if ideaID.IsZero() {
		return nil, pkgerrors.NewValidationError("idea ID cannot be empty")
	}

	size, err := valueobjects.NewSize(
		valueOr(spec.Width, cfg.DefaultWidth),
		valueOr(spec.Height, cfg.DefaultHeight),
	)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	node := &IdeaNode{
		id:          valueobjects.NewNodeID(),
		ideaID:      ideaID,
		title:       valueOr(spec.Title, cfg.DefaultTitle),
		content:     valueOr(spec.Content, cfg.DefaultContent),
		nodeType:    valueOr(spec.Type, cfg.DefaultType),
		position:    spec.Position,
		size:        size,
		color:       normalizeColor(spec.Color),
		connections: []valueobjects.NodeID{},
		visible:     valueOr(spec.Visible, true),
		createdAt:   now,
		updatedAt:   now,
		version:     1,
	}
	if err := node.validateText(cfg); err != nil {
		return nil, err
	}

	node.addEvent(events.NewNodeCreated(node.id, ideaID, node.title, node.nodeType, node.position, now))
	return node, nil
}

// NodeSnapshot is the flat persisted form of a node.
type NodeSnapshot struct {
	ID          string
	IdeaID      string
	Title       string
	Content     string
	Type        string
	PositionX   float64
	PositionY   float64
	Width       float64
	Height      float64
	Color       *string
	Connections []string
	Visible     bool
	Version     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ReconstructIdeaNode rebuilds a node loaded from storage. The result is
// considered persisted at the snapshot's version.
func ReconstructIdeaNode(s NodeSnapshot) (*IdeaNode, error) {
	id, err := valueobjects.NewNodeIDFromString(s.ID)
	if err != nil {
		return nil, err
	}
	ideaID, err := valueobjects.NewIdeaID(s.IdeaID)
	if err != nil {
		return nil, err
	}
	position, err := valueobjects.NewPosition(s.PositionX, s.PositionY)
	if err != nil {
		return nil, err
	}
	size, err := valueobjects.NewSize(s.Width, s.Height)
	if err != nil {
		return nil, err
	}
	conns, err := valueobjects.NodeIDsFromStrings(s.Connections)
	if err != nil {
		return nil, fmt.Errorf("node %s has invalid connections: %w", s.ID, err)
	}
	if s.Version < 1 {
		return nil, pkgerrors.NewValidationError("node version must be positive")
	}

	return &IdeaNode{
		id:               id,
		ideaID:           ideaID,
		title:            s.Title,
		content:          s.Content,
		nodeType:         s.Type,
		position:         position,
		size:             size,
		color:            normalizeColor(s.Color),
		connections:      conns,
		visible:          s.Visible,
		createdAt:        s.CreatedAt,
		updatedAt:        s.UpdatedAt,
		version:          s.Version,
		persistedVersion: s.Version,
	}, nil
}

// Snapshot returns the flat form of the node for persistence.
func (n *IdeaNode) Snapshot() NodeSnapshot {
	var color *string
	if n.color != nil {
		c := *n.color
		color = &c
	}
	return NodeSnapshot{
		ID:          n.id.String(),
		IdeaID:      n.ideaID.String(),
		Title:       n.title,
		Content:     n.content,
		Type:        n.nodeType,
		PositionX:   n.position.X(),
		PositionY:   n.position.Y(),
		Width:       n.size.Width(),
		Height:      n.size.Height(),
		Color:       color,
		Connections: valueobjects.NodeIDStrings(n.connections),
		Visible:     n.visible,
		Version:     n.version,
		CreatedAt:   n.createdAt,
		UpdatedAt:   n.updatedAt,
	}
}

func (n *IdeaNode) ID() valueobjects.NodeID         { return n.id }
func (n *IdeaNode) IdeaID() valueobjects.IdeaID     { return n.ideaID }
func (n *IdeaNode) Title() string                   { return n.title }
func (n *IdeaNode) Content() string                 { return n.content }
func (n *IdeaNode) Type() string                    { return n.nodeType }
func (n *IdeaNode) Position() valueobjects.Position { return n.position }
func (n *IdeaNode) Size() valueobjects.Size         { return n.size }
func (n *IdeaNode) Visible() bool                   { return n.visible }
func (n *IdeaNode) Version() int                    { return n.version }
func (n *IdeaNode) CreatedAt() time.Time            { return n.createdAt }
func (n *IdeaNode) UpdatedAt() time.Time            { return n.updatedAt }

// PersistedVersion is the version currently held by the store, used as
// the compare-and-swap condition on save. Zero means never saved.
func (n *IdeaNode) PersistedVersion() int { return n.persistedVersion }

// IsDirty reports unsaved mutations.
func (n *IdeaNode) IsDirty() bool { return n.version != n.persistedVersion }

// MarkPersisted records a successful save.
func (n *IdeaNode) MarkPersisted() { n.persistedVersion = n.version }

// Color returns the display color and whether one is set.
func (n *IdeaNode) Color() (string, bool) {
	if n.color == nil {
		return "", false
	}
	return *n.color, true
}

// Connections returns a copy of the connection list.
func (n *IdeaNode) Connections() []valueobjects.NodeID {
	return connections.Clone(n.connections)
}

// Vertex projects the node for edge derivation.
func (n *IdeaNode) Vertex() graph.Vertex {
	return graph.Vertex{ID: n.id.String(), Connections: valueobjects.NodeIDStrings(n.connections)}
}

// FieldPatch is a partial field edit. Nil pointers leave a field untouched.
// An empty Color clears the color.
type FieldPatch struct {
	Title   *string
	Content *string
	Type    *string
	Color   *string
	Width   *float64
	Height  *float64
	Visible *bool
}

// IsEmpty reports a patch that names no field.
func (p FieldPatch) IsEmpty() bool {
	return p.Title == nil && p.Content == nil && p.Type == nil && p.Color == nil &&
		p.Width == nil && p.Height == nil && p.Visible == nil
}

// ApplyPatch merges p into the node and returns the names of the fields
// that changed. Nothing changes when validation fails.
func (n *IdeaNode) ApplyPatch(p FieldPatch, cfg *config.DomainConfig) ([]string, error) {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}

	next := *n
	var changed []string

	if p.Title != nil && *p.Title != n.title {
		next.title = *p.Title
		changed = append(changed, "title")
	}
	if p.Content != nil && *p.Content != n.content {
		next.content = *p.Content
		changed = append(changed, "content")
	}
	if p.Type != nil && *p.Type != n.nodeType {
		next.nodeType = *p.Type
		changed = append(changed, "type")
	}
	if p.Color != nil {
		color := normalizeColor(p.Color)
		if !sameColor(color, n.color) {
			next.color = color
			changed = append(changed, "color")
		}
	}
	if p.Width != nil || p.Height != nil {
		size, err := valueobjects.NewSize(valueOr(p.Width, n.size.Width()), valueOr(p.Height, n.size.Height()))
		if err != nil {
			return nil, err
		}
		if size.Width() != n.size.Width() {
			changed = append(changed, "width")
		}
		if size.Height() != n.size.Height() {
			changed = append(changed, "height")
		}
		next.size = size
	}
	if p.Visible != nil && *p.Visible != n.visible {
		next.visible = *p.Visible
		changed = append(changed, "visible")
	}

	if len(changed) == 0 {
		return nil, nil
	}
	if err := next.validateText(cfg); err != nil {
		return nil, err
	}

	n.title, n.content, n.nodeType = next.title, next.content, next.nodeType
	n.color, n.size, n.visible = next.color, next.size, next.visible
	n.touch()
	n.addEvent(events.NewNodeUpdated(n.id, n.ideaID, changed, n.version, n.updatedAt))
	return changed, nil
}

// MoveTo sets the position persisted at the end of a drag.
func (n *IdeaNode) MoveTo(position valueobjects.Position) bool {
	if position.Equals(n.position) {
		return false
	}
	from := n.position
	n.position = position
	n.touch()
	n.addEvent(events.NewNodeMoved(n.id, n.ideaID, from, position, n.version, n.updatedAt))
	return true
}

// ReplaceConnections replaces the whole connection list. With
// cfg.DedupeConnections the list is reduced to its distinct entries first.
func (n *IdeaNode) ReplaceConnections(conns []valueobjects.NodeID, cfg *config.DomainConfig) (bool, error) {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	next := connections.Clone(conns)
	if cfg.DedupeConnections {
		next = connections.Dedupe(next)
	}
	if err := n.validateConnections(next, cfg); err != nil {
		return false, err
	}
	return n.setConnections(next), nil
}

// ConnectTo appends target to the connection list. Duplicates are recorded
// unless cfg.DedupeConnections is set, in which case connecting an existing
// target is a no-op.
func (n *IdeaNode) ConnectTo(target valueobjects.NodeID, cfg *config.DomainConfig) (bool, error) {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	var next []valueobjects.NodeID
	if cfg.DedupeConnections {
		next = connections.AppendUnique(n.connections, target)
	} else {
		next = connections.Append(n.connections, target)
	}
	if err := n.validateConnections(next, cfg); err != nil {
		return false, err
	}
	return n.setConnections(next), nil
}

// RemoveConnectionsTo drops every reference to target. It is the per-node
// step of a delete scrub.
func (n *IdeaNode) RemoveConnectionsTo(target valueobjects.NodeID) bool {
	return n.setConnections(connections.Remove(n.connections, target))
}

// HasConnectionTo reports whether target is referenced.
func (n *IdeaNode) HasConnectionTo(target valueobjects.NodeID) bool {
	return connections.Contains(n.connections, target)
}

// MarkDeleted records the delete event. scrubbed lists the siblings whose
// references to this node were removed in the same operation.
func (n *IdeaNode) MarkDeleted(scrubbed []valueobjects.NodeID) {
	n.addEvent(events.NewNodeDeleted(n.id, n.ideaID, scrubbed, n.version, time.Now().UTC()))
}

// GetUncommittedEvents returns the events raised since the last commit.
func (n *IdeaNode) GetUncommittedEvents() []events.DomainEvent {
	return n.events
}

// MarkEventsAsCommitted clears the uncommitted events.
func (n *IdeaNode) MarkEventsAsCommitted() {
	n.events = nil
}

func (n *IdeaNode) setConnections(next []valueobjects.NodeID) bool {
	if connections.Equal(next, n.connections) {
		return false
	}
	previous := n.connections
	n.connections = next
	n.touch()
	n.addEvent(events.NewNodeConnectionsReplaced(n.id, n.ideaID, previous, connections.Clone(next), n.version, n.updatedAt))
	return true
}

func (n *IdeaNode) validateConnections(conns []valueobjects.NodeID, cfg *config.DomainConfig) error {
	if len(conns) > cfg.MaxConnectionsPerNode {
		return pkgerrors.NewValidationError(fmt.Sprintf("maximum connections reached: %d", cfg.MaxConnectionsPerNode))
	}
	if !cfg.AllowSelfConnections && connections.Contains(conns, n.id) {
		return pkgerrors.NewValidationError("cannot connect node to itself")
	}
	return nil
}

func (n *IdeaNode) validateText(cfg *config.DomainConfig) error {
	if utf8.RuneCountInString(n.title) > cfg.MaxTitleLength {
		return pkgerrors.NewValidationError(fmt.Sprintf("title exceeds %d characters", cfg.MaxTitleLength))
	}
	if utf8.RuneCountInString(n.content) > cfg.MaxContentLength {
		return pkgerrors.NewValidationError(fmt.Sprintf("content exceeds %d characters", cfg.MaxContentLength))
	}
	if utf8.RuneCountInString(n.nodeType) > cfg.MaxTypeLength {
		return pkgerrors.NewValidationError(fmt.Sprintf("type exceeds %d characters", cfg.MaxTypeLength))
	}
	if n.color != nil && len(*n.color) > MaxColorLength {
		return pkgerrors.NewValidationError(fmt.Sprintf("color exceeds %d characters", MaxColorLength))
	}
	return nil
}

func (n *IdeaNode) touch() {
	n.version++
	n.updatedAt = time.Now().UTC()
}

func (n *IdeaNode) addEvent(event events.DomainEvent) {
	n.events = append(n.events, event)
}

func valueOr[T any](p *T, fallback T) T {
	if p == nil {
		return fallback
	}
	return *p
}

func normalizeColor(c *string) *string {
	if c == nil || *c == "" {
		return nil
	}
	v := *c
	return &v
}

func sameColor(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
