// Package canvas keeps a local, optimistic view of one idea's node graph
// and translates editing gestures into node store calls.
//
// Gestures apply to local state immediately and never wait on the network.
// Writes for a node are queued on a per-node writer goroutine and run in
// gesture order. Failed writes are logged and reported through
// Options.OnError; local state is not rolled back, and Load re-fetches the
// server's view.
package canvas

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/woragis/woragis-sub002/domain/core/connections"
	"github.com/woragis/woragis-sub002/domain/core/graph"
	"github.com/woragis/woragis-sub002/pkg/api"
)

// DefaultTimeout bounds each persistence call.
const DefaultTimeout = 10 * time.Second

// Store is the node store the session persists to. *client.Client
// satisfies it.
type Store interface {
	List(ctx context.Context, ideaID string) ([]api.Node, error)
	Create(ctx context.Context, ideaID string, req api.CreateNodeRequest) (*api.Node, error)
	UpdateFields(ctx context.Context, ideaID, nodeID string, req api.UpdateNodeRequest) (*api.Node, error)
	UpdatePosition(ctx context.Context, ideaID, nodeID string, x, y float64) (*api.Node, error)
	UpdateConnections(ctx context.Context, ideaID, nodeID string, connections []string) (*api.Node, error)
	Delete(ctx context.Context, ideaID, nodeID string) error
}

// Options configure a Session.
type Options struct {
	// Timeout bounds each persistence call. Defaults to DefaultTimeout.
	Timeout time.Duration
	// DedupeConnections makes Connect a no-op when the edge already exists.
	DedupeConnections bool
	// ScrubDanglingOnDelete drops references to a deleted node from the
	// local view. It should match the server setting.
	ScrubDanglingOnDelete bool
	// OnError is called from a writer goroutine for every failed write.
	OnError func(op, nodeID string, err error)
	Logger  *zap.Logger
}

// Session is the sync state of one idea. It is safe for concurrent use.
type Session struct {
	store   Store
	ideaID  string
	timeout time.Duration
	dedupe  bool
	scrub   bool
	onError func(op, nodeID string, err error)
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	nodes    []api.Node
	index    map[string]int
	states   map[string]*nodeState
	edges    []api.Edge
	selected string
	writers  map[string]*writer
	inflight int
	idle     chan struct{}
	closed   bool
}

// NewSession creates an empty session for ideaID. Call Load to fetch the
// nodes.
func NewSession(store Store, ideaID string, opts Options) *Session {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		store:   store,
		ideaID:  ideaID,
		timeout: opts.Timeout,
		dedupe:  opts.DedupeConnections,
		scrub:   opts.ScrubDanglingOnDelete,
		onError: opts.OnError,
		logger:  opts.Logger.Named("canvas").With(zap.String("idea_id", ideaID)),
		ctx:     ctx,
		cancel:  cancel,
		index:   make(map[string]int),
		states:  make(map[string]*nodeState),
		writers: make(map[string]*writer),
	}
}

// Load replaces local state with the server's node list. Gesture state of
// nodes that still exist is kept; the selection is cleared if its node is
// gone. Queued writes are not awaited, call Flush first to observe them.
func (s *Session) Load(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	nodes, err := s.store.List(ctx, s.ideaID)
	if err != nil {
		s.logger.Error("Failed to load nodes", zap.Error(err))
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = make([]api.Node, 0, len(nodes))
	states := make(map[string]*nodeState, len(nodes))
	for _, n := range nodes {
		s.nodes = append(s.nodes, cloneNode(n))
		if st, ok := s.states[n.ID]; ok {
			states[n.ID] = st
		} else {
			states[n.ID] = &nodeState{}
		}
	}
	s.states = states
	s.reindexLocked()
	if _, ok := s.index[s.selected]; !ok {
		s.selected = ""
	}
	s.logger.Debug("Nodes loaded", zap.Int("count", len(nodes)))
	return nil
}

// Nodes returns a copy of the local nodes in server order.
func (s *Session) Nodes() []api.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.Node, len(s.nodes))
	for i, n := range s.nodes {
		out[i] = cloneNode(n)
	}
	return out
}

// Node returns a copy of one local node.
func (s *Session) Node(nodeID string) (api.Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[nodeID]
	if !ok {
		return api.Node{}, false
	}
	return cloneNode(s.nodes[i]), true
}

// Edges returns the edges derived from the local connection lists.
func (s *Session) Edges() []api.Edge {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]api.Edge(nil), s.edges...)
}

// State returns the gesture state of a node.
func (s *Session) State(nodeID string) (NodeState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[nodeID]
	if !ok {
		return StateIdle, ErrUnknownNode
	}
	return st.state, nil
}

// Selected returns the selected node id.
func (s *Session) Selected() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected, s.selected != ""
}

// Select makes nodeID the only selected node.
func (s *Session) Select(nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[nodeID]; !ok {
		return ErrUnknownNode
	}
	s.selected = nodeID
	return nil
}

// ClearSelection handles a background click.
func (s *Session) ClearSelection() {
	s.mu.Lock()
	s.selected = ""
	s.mu.Unlock()
}

// DragStart begins a drag on an idle node.
func (s *Session) DragStart(nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, st, err := s.lookupLocked(nodeID)
	if err != nil {
		return err
	}
	if err := st.require(nodeID, "start dragging", StateIdle); err != nil {
		return err
	}
	st.state = StateDragging
	st.dragOriginX, st.dragOriginY = node.PositionX, node.PositionY
	return nil
}

// DragMove updates the local position of a dragging node. Nothing is
// persisted until DragEnd.
func (s *Session) DragMove(nodeID string, x, y float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, st, err := s.lookupLocked(nodeID)
	if err != nil {
		return err
	}
	if err := st.require(nodeID, "drag", StateDragging); err != nil {
		return err
	}
	node.PositionX, node.PositionY = x, y
	return nil
}

// DragEnd returns the node to idle and queues the position write. A drag
// that ends where it started writes nothing.
func (s *Session) DragEnd(nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, st, err := s.lookupLocked(nodeID)
	if err != nil {
		return err
	}
	if err := st.require(nodeID, "end dragging", StateDragging); err != nil {
		return err
	}
	st.state = StateIdle
	if node.PositionX == st.dragOriginX && node.PositionY == st.dragOriginY {
		return nil
	}
	x, y := node.PositionX, node.PositionY
	return s.enqueueLocked(nodeID, "updatePosition", func(ctx context.Context) error {
		_, err := s.store.UpdatePosition(ctx, s.ideaID, nodeID, x, y)
		return err
	})
}

// BeginEdit opens the edit form for an idle node.
func (s *Session) BeginEdit(nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, st, err := s.lookupLocked(nodeID)
	if err != nil {
		return err
	}
	if err := st.require(nodeID, "edit", StateIdle); err != nil {
		return err
	}
	st.state = StateEditing
	return nil
}

// DoubleClick selects a node and opens its edit form.
func (s *Session) DoubleClick(nodeID string) error {
	if err := s.BeginEdit(nodeID); err != nil {
		return err
	}
	return s.Select(nodeID)
}

// EditSelected opens the edit form for the selected node.
func (s *Session) EditSelected() error {
	s.mu.Lock()
	selected := s.selected
	s.mu.Unlock()
	if selected == "" {
		return ErrNoSelection
	}
	return s.BeginEdit(selected)
}

// SubmitEdit applies the non-nil fields locally, returns the node to idle
// and queues the field update.
func (s *Session) SubmitEdit(nodeID string, fields api.UpdateNodeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, st, err := s.lookupLocked(nodeID)
	if err != nil {
		return err
	}
	if err := st.require(nodeID, "submit edit for", StateEditing); err != nil {
		return err
	}
	st.state = StateIdle
	applyFields(node, fields)
	fields.ExpectedVersion = nil
	return s.enqueueLocked(nodeID, "updateFields", func(ctx context.Context) error {
		_, err := s.store.UpdateFields(ctx, s.ideaID, nodeID, fields)
		return err
	})
}

// CancelEdit closes the edit form without a write.
func (s *Session) CancelEdit(nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, st, err := s.lookupLocked(nodeID)
	if err != nil {
		return err
	}
	if err := st.require(nodeID, "cancel edit for", StateEditing); err != nil {
		return err
	}
	st.state = StateIdle
	return nil
}

// AddNode creates a node and adds it locally. Unlike the gestures it waits
// for the server, which assigns the id and fills defaults, including a
// random position when none is given.
func (s *Session) AddNode(ctx context.Context, fields api.CreateNodeRequest) (api.Node, error) {
	if s.isClosed() {
		return api.Node{}, ErrClosed
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	created, err := s.store.Create(ctx, s.ideaID, fields)
	if err != nil {
		s.logger.Error("Failed to create node", zap.Error(err))
		return api.Node{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[created.ID]; !ok {
		s.nodes = append(s.nodes, cloneNode(*created))
		s.states[created.ID] = &nodeState{}
		s.reindexLocked()
	}
	return cloneNode(*created), nil
}

// Connect draws an edge from source to target. The source's connection
// list is updated locally and the full list is queued for persistence.
func (s *Session) Connect(sourceID, targetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, st, err := s.lookupLocked(sourceID)
	if err != nil {
		return err
	}
	if _, ok := s.index[targetID]; !ok {
		return ErrUnknownNode
	}
	if err := st.require(sourceID, "connect", StateIdle); err != nil {
		return err
	}

	appendTarget := connections.Append[string]
	if s.dedupe {
		appendTarget = connections.AppendUnique[string]
	}
	next := appendTarget(node.Connections, targetID)
	if len(next) == len(node.Connections) {
		return nil
	}
	node.Connections = next
	s.edges = DeriveEdges(s.nodes)

	persisted := connections.Clone(next)
	return s.enqueueLocked(sourceID, "updateConnections", func(ctx context.Context) error {
		_, err := s.store.UpdateConnections(ctx, s.ideaID, sourceID, persisted)
		return err
	})
}

// DeleteSelected removes the selected node locally, clears the selection
// and queues the delete behind any pending writes for that node.
func (s *Session) DeleteSelected() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == "" {
		return ErrNoSelection
	}
	nodeID := s.selected
	_, st, err := s.lookupLocked(nodeID)
	if err != nil {
		return err
	}
	if err := st.require(nodeID, "delete", StateIdle); err != nil {
		return err
	}

	i := s.index[nodeID]
	s.nodes = append(s.nodes[:i], s.nodes[i+1:]...)
	delete(s.states, nodeID)
	if s.scrub {
		for j := range s.nodes {
			if connections.Contains(s.nodes[j].Connections, nodeID) {
				s.nodes[j].Connections = connections.Remove(s.nodes[j].Connections, nodeID)
			}
		}
	}
	s.selected = ""
	s.reindexLocked()

	return s.enqueueLocked(nodeID, "delete", func(ctx context.Context) error {
		return s.store.Delete(ctx, s.ideaID, nodeID)
	})
}

// Flush waits until every queued write has completed or ctx is done.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.inflight == 0 {
		s.mu.Unlock()
		return nil
	}
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the session. In-flight writes are cancelled, queued writes
// are dropped and every writer goroutine has exited when Close returns.
// Call Flush first to persist pending gestures.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	return nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) lookupLocked(nodeID string) (*api.Node, *nodeState, error) {
	if s.closed {
		return nil, nil, ErrClosed
	}
	i, ok := s.index[nodeID]
	if !ok {
		return nil, nil, ErrUnknownNode
	}
	return &s.nodes[i], s.states[nodeID], nil
}

// reindexLocked rebuilds the id index and the derived edges after the
// node collection changed.
func (s *Session) reindexLocked() {
	s.index = make(map[string]int, len(s.nodes))
	for i, n := range s.nodes {
		s.index[n.ID] = i
	}
	s.edges = DeriveEdges(s.nodes)
}

// DeriveEdges flattens the nodes' connection lists into edges, in node
// order then connection order.
func DeriveEdges(nodes []api.Node) []api.Edge {
	vertices := make([]graph.Vertex, len(nodes))
	for i, n := range nodes {
		vertices[i] = graph.Vertex{ID: n.ID, Connections: n.Connections}
	}
	derived := graph.DeriveEdges(vertices)
	edges := make([]api.Edge, len(derived))
	for i, e := range derived {
		edges[i] = api.Edge{ID: e.ID(), Source: e.Source, Target: e.Target, Ordinal: e.Ordinal}
	}
	return edges
}

func applyFields(n *api.Node, f api.UpdateNodeRequest) {
	if f.Title != nil {
		n.Title = *f.Title
	}
	if f.Content != nil {
		n.Content = *f.Content
	}
	if f.Type != nil {
		n.Type = *f.Type
	}
	if f.Color != nil {
		if *f.Color == "" {
			n.Color = nil
		} else {
			color := *f.Color
			n.Color = &color
		}
	}
	if f.Width != nil {
		n.Width = *f.Width
	}
	if f.Height != nil {
		n.Height = *f.Height
	}
	if f.Visible != nil {
		n.Visible = *f.Visible
	}
}

func cloneNode(n api.Node) api.Node {
	n.Connections = append(make([]string, 0, len(n.Connections)), n.Connections...)
	if n.Color != nil {
		color := *n.Color
		n.Color = &color
	}
	return n
}
