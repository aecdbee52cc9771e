// Package memory is an in-process NodeRepository used for local
// development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/woragis/woragis-sub002/application/ports"
	"github.com/woragis/woragis-sub002/domain/core/entities"
	"github.com/woragis/woragis-sub002/domain/core/valueobjects"
	pkgerrors "github.com/woragis/woragis-sub002/pkg/errors"

	"go.uber.org/zap"
)

var (
	_ ports.NodeRepository = (*NodeRepository)(nil)
	_ ports.HealthChecker  = (*NodeRepository)(nil)
)

type storedNode struct {
	seq      uint64
	snapshot entities.NodeSnapshot
}

// ideaBucket holds the nodes of one idea and an index of who points at
// whom, so a delete scrub only visits the nodes that reference the target.
type ideaBucket struct {
	nodes    map[string]*storedNode
	incoming map[string]map[string]int // target -> source -> occurrences
}

func newIdeaBucket() *ideaBucket {
	return &ideaBucket{
		nodes:    make(map[string]*storedNode),
		incoming: make(map[string]map[string]int),
	}
}

func (b *ideaBucket) index(source string, targets []string) {
	for _, t := range targets {
		sources, ok := b.incoming[t]
		if !ok {
			sources = make(map[string]int)
			b.incoming[t] = sources
		}
		sources[source]++
	}
}

func (b *ideaBucket) unindex(source string, targets []string) {
	for _, t := range targets {
		sources := b.incoming[t]
		if sources == nil {
			continue
		}
		sources[source]--
		if sources[source] <= 0 {
			delete(sources, source)
		}
		if len(sources) == 0 {
			delete(b.incoming, t)
		}
	}
}

// NodeRepository keeps nodes in memory. It is safe for concurrent use.
type NodeRepository struct {
	mu     sync.RWMutex
	ideas  map[string]*ideaBucket
	seq    uint64
	logger *zap.Logger
}

// NewNodeRepository creates an empty repository.
func NewNodeRepository(logger *zap.Logger) *NodeRepository {
	return &NodeRepository{
		ideas:  make(map[string]*ideaBucket),
		logger: logger,
	}
}

func (r *NodeRepository) Save(ctx context.Context, node *entities.IdeaNode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := node.Snapshot()
	bucket, ok := r.ideas[snapshot.IdeaID]
	if !ok {
		bucket = newIdeaBucket()
		r.ideas[snapshot.IdeaID] = bucket
	}

	existing, exists := bucket.nodes[snapshot.ID]
	switch {
	case node.PersistedVersion() == 0 && exists:
		return pkgerrors.NewConflictError("node already exists").WithCode(pkgerrors.CodeAlreadyExists)
	case node.PersistedVersion() != 0 && !exists:
		return pkgerrors.NewNotFoundError("node")
	case exists && existing.snapshot.Version != node.PersistedVersion():
		return pkgerrors.NewVersionConflictError("node", node.PersistedVersion(), existing.snapshot.Version)
	}

	if exists {
		bucket.unindex(snapshot.ID, existing.snapshot.Connections)
		existing.snapshot = snapshot
	} else {
		r.seq++
		bucket.nodes[snapshot.ID] = &storedNode{seq: r.seq, snapshot: snapshot}
	}
	bucket.index(snapshot.ID, snapshot.Connections)
	node.MarkPersisted()
	return nil
}

func (r *NodeRepository) GetByID(ctx context.Context, ideaID valueobjects.IdeaID, id valueobjects.NodeID) (*entities.IdeaNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	bucket, ok := r.ideas[ideaID.String()]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("node")
	}
	stored, ok := bucket.nodes[id.String()]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("node")
	}
	return entities.ReconstructIdeaNode(stored.snapshot)
}

func (r *NodeRepository) ListByIdea(ctx context.Context, ideaID valueobjects.IdeaID) ([]*entities.IdeaNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	bucket, ok := r.ideas[ideaID.String()]
	if !ok {
		return []*entities.IdeaNode{}, nil
	}
	ordered := bucket.ordered()
	nodes := make([]*entities.IdeaNode, 0, len(ordered))
	for _, stored := range ordered {
		node, err := entities.ReconstructIdeaNode(stored.snapshot)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func (r *NodeRepository) CountByIdea(ctx context.Context, ideaID valueobjects.IdeaID) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	bucket, ok := r.ideas[ideaID.String()]
	if !ok {
		return 0, nil
	}
	return len(bucket.nodes), nil
}

func (r *NodeRepository) Delete(ctx context.Context, ideaID valueobjects.IdeaID, id valueobjects.NodeID, expectedVersion int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket, stored, err := r.lookupExpected(ideaID, id, expectedVersion)
	if err != nil {
		return err
	}
	bucket.unindex(id.String(), stored.snapshot.Connections)
	delete(bucket.nodes, id.String())
	return nil
}

func (r *NodeRepository) DeleteAndScrub(ctx context.Context, ideaID valueobjects.IdeaID, id valueobjects.NodeID, expectedVersion int) ([]*entities.IdeaNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket, stored, err := r.lookupExpected(ideaID, id, expectedVersion)
	if err != nil {
		return nil, err
	}

	// Rewrite every referencing sibling before touching the bucket so a
	// failure leaves storage unchanged.
	var sources []*storedNode
	for source := range bucket.incoming[id.String()] {
		if source == id.String() {
			continue
		}
		if s, ok := bucket.nodes[source]; ok {
			sources = append(sources, s)
		}
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].seq < sources[j].seq })

	scrubbed := make([]*entities.IdeaNode, 0, len(sources))
	for _, s := range sources {
		sibling, err := entities.ReconstructIdeaNode(s.snapshot)
		if err != nil {
			return nil, err
		}
		if sibling.RemoveConnectionsTo(id) {
			scrubbed = append(scrubbed, sibling)
		}
	}

	for _, sibling := range scrubbed {
		s := bucket.nodes[sibling.ID().String()]
		bucket.unindex(s.snapshot.ID, s.snapshot.Connections)
		s.snapshot = sibling.Snapshot()
		bucket.index(s.snapshot.ID, s.snapshot.Connections)
		sibling.MarkPersisted()
	}
	bucket.unindex(id.String(), stored.snapshot.Connections)
	delete(bucket.nodes, id.String())

	r.logger.Debug("Deleted node with scrub",
		zap.String("idea_id", ideaID.String()),
		zap.String("node_id", id.String()),
		zap.Int("scrubbed", len(scrubbed)),
	)
	return scrubbed, nil
}

// Ping always succeeds.
func (r *NodeRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

// lookupExpected is lookup plus a version check. Zero skips the check.
func (r *NodeRepository) lookupExpected(ideaID valueobjects.IdeaID, id valueobjects.NodeID, expectedVersion int) (*ideaBucket, *storedNode, error) {
	bucket, stored, err := r.lookup(ideaID, id)
	if err != nil {
		return nil, nil, err
	}
	if expectedVersion != 0 && stored.snapshot.Version != expectedVersion {
		return nil, nil, pkgerrors.NewVersionConflictError("node", expectedVersion, stored.snapshot.Version)
	}
	return bucket, stored, nil
}

func (r *NodeRepository) lookup(ideaID valueobjects.IdeaID, id valueobjects.NodeID) (*ideaBucket, *storedNode, error) {
	bucket, ok := r.ideas[ideaID.String()]
	if !ok {
		return nil, nil, pkgerrors.NewNotFoundError("node")
	}
	stored, ok := bucket.nodes[id.String()]
	if !ok {
		return nil, nil, pkgerrors.NewNotFoundError("node")
	}
	return bucket, stored, nil
}

func (b *ideaBucket) ordered() []*storedNode {
	out := make([]*storedNode, 0, len(b.nodes))
	for _, n := range b.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}
