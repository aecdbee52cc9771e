package entities_test

import (
	"strings"
	"testing"

	"github.com/woragis/woragis-sub002/domain/config"
	"github.com/woragis/woragis-sub002/domain/core/entities"
	"github.com/woragis/woragis-sub002/domain/core/valueobjects"
	"github.com/woragis/woragis-sub002/domain/events"
	"github.com/woragis/woragis-sub002/internal/fixtures"
	pkgerrors "github.com/woragis/woragis-sub002/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }
func boolPtr(b bool) *bool        { return &b }

func TestNewIdeaNode_Defaults(t *testing.T) {
	// Arrange
	cfg := config.DefaultDomainConfig()
	pos := fixtures.MustPosition(100, 100)

	// Act
	node, err := entities.NewIdeaNode(fixtures.MustIdeaID("idea-1"), entities.NewNodeSpec{Position: pos}, cfg)

	// Assert
	require.NoError(t, err)
	assert.False(t, node.ID().IsZero())
	assert.Equal(t, "idea-1", node.IdeaID().String())
	assert.Equal(t, cfg.DefaultTitle, node.Title())
	assert.Equal(t, cfg.DefaultContent, node.Content())
	assert.Equal(t, 200.0, node.Size().Width())
	assert.Equal(t, 100.0, node.Size().Height())
	assert.True(t, node.Visible())
	assert.Empty(t, node.Connections())
	assert.NotNil(t, node.Connections())
	assert.Equal(t, 1, node.Version())
	assert.Equal(t, 0, node.PersistedVersion())
	assert.True(t, node.IsDirty())
	_, hasColor := node.Color()
	assert.False(t, hasColor)

	require.Len(t, node.GetUncommittedEvents(), 1)
	assert.Equal(t, events.TypeNodeCreated, node.GetUncommittedEvents()[0].GetEventType())
}

func TestNewIdeaNode_Validation(t *testing.T) {
	cfg := config.DefaultDomainConfig()
	pos := fixtures.MustPosition(0, 0)

	tests := []struct {
		name   string
		spec   entities.NewNodeSpec
		errMsg string
	}{
		{"title too long", entities.NewNodeSpec{Title: strPtr(strings.Repeat("a", cfg.MaxTitleLength+1)), Position: pos}, "title exceeds"},
		{"zero width", entities.NewNodeSpec{Width: floatPtr(0), Position: pos}, "invalid size"},
		{"long color", entities.NewNodeSpec{Color: strPtr(strings.Repeat("c", entities.MaxColorLength+1)), Position: pos}, "color exceeds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := entities.NewIdeaNode(fixtures.MustIdeaID("idea-1"), tt.spec, cfg)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsValidation(err))
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestReconstructIdeaNode_RoundTrip(t *testing.T) {
	target := valueobjects.NewNodeID().String()
	snapshot := fixtures.NewNodeBuilder().
		WithColor("#ff0000").
		WithConnections(target, target).
		WithVersion(7).
		Snapshot()

	node, err := entities.ReconstructIdeaNode(snapshot)
	require.NoError(t, err)

	assert.Equal(t, snapshot, node.Snapshot())
	assert.Equal(t, 7, node.PersistedVersion())
	assert.False(t, node.IsDirty())
	assert.Empty(t, node.GetUncommittedEvents())
}

func TestReconstructIdeaNode_RejectsBadData(t *testing.T) {
	_, err := entities.ReconstructIdeaNode(fixtures.NewNodeBuilder().WithConnections("not-a-uuid").Snapshot())
	assert.Error(t, err)

	_, err = entities.ReconstructIdeaNode(fixtures.NewNodeBuilder().WithVersion(0).Snapshot())
	assert.Error(t, err)
}

func TestIdeaNode_ApplyPatch(t *testing.T) {
	node := fixtures.NewNodeBuilder().WithColor("#fff").MustBuild()

	changed, err := node.ApplyPatch(entities.FieldPatch{
		Title:  strPtr("Renamed"),
		Color:  strPtr(""),
		Height: floatPtr(150),
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"title", "color", "height"}, changed)
	assert.Equal(t, "Renamed", node.Title())
	assert.Equal(t, 150.0, node.Size().Height())
	assert.Equal(t, 200.0, node.Size().Width())
	_, hasColor := node.Color()
	assert.False(t, hasColor, "empty color clears it")
	assert.Equal(t, 2, node.Version())
	assert.True(t, node.IsDirty())
}

func TestIdeaNode_ApplyPatch_NoChangeKeepsVersion(t *testing.T) {
	node := fixtures.NewNodeBuilder().WithTitle("Same").MustBuild()

	changed, err := node.ApplyPatch(entities.FieldPatch{Title: strPtr("Same"), Visible: boolPtr(true)}, nil)

	require.NoError(t, err)
	assert.Empty(t, changed)
	assert.Equal(t, 1, node.Version())
	assert.Empty(t, node.GetUncommittedEvents())
}

func TestIdeaNode_ApplyPatch_InvalidLeavesNodeUntouched(t *testing.T) {
	cfg := config.DefaultDomainConfig()
	cfg.MaxContentLength = 5
	node := fixtures.NewNodeBuilder().WithTitle("Before").MustBuild()

	_, err := node.ApplyPatch(entities.FieldPatch{Title: strPtr("After"), Content: strPtr("far too long")}, cfg)

	assert.Error(t, err)
	assert.Equal(t, "Before", node.Title())
	assert.Equal(t, 1, node.Version())
}

func TestIdeaNode_MoveTo(t *testing.T) {
	node := fixtures.NewNodeBuilder().WithPosition(10, 10).MustBuild()

	assert.False(t, node.MoveTo(fixtures.MustPosition(10, 10)))
	assert.True(t, node.MoveTo(fixtures.MustPosition(300, 100)))

	assert.Equal(t, 300.0, node.Position().X())
	assert.Equal(t, 100.0, node.Position().Y())
	assert.Equal(t, 2, node.Version())
	require.Len(t, node.GetUncommittedEvents(), 1)
	moved := node.GetUncommittedEvents()[0].(events.NodeMoved)
	assert.Equal(t, 10.0, moved.FromX)
	assert.Equal(t, 300.0, moved.ToX)
}

func TestIdeaNode_ConnectTo(t *testing.T) {
	target := valueobjects.NewNodeID()

	t.Run("duplicates are kept by default", func(t *testing.T) {
		node := fixtures.NewNodeBuilder().MustBuild()

		_, err := node.ConnectTo(target, config.DefaultDomainConfig())
		require.NoError(t, err)
		_, err = node.ConnectTo(target, config.DefaultDomainConfig())
		require.NoError(t, err)

		assert.Equal(t, []valueobjects.NodeID{target, target}, node.Connections())
		assert.Equal(t, 3, node.Version())
	})

	t.Run("dedupe makes reconnect a no-op", func(t *testing.T) {
		cfg := config.DefaultDomainConfig()
		cfg.DedupeConnections = true
		node := fixtures.NewNodeBuilder().MustBuild()

		changed, err := node.ConnectTo(target, cfg)
		require.NoError(t, err)
		assert.True(t, changed)
		changed, err = node.ConnectTo(target, cfg)
		require.NoError(t, err)
		assert.False(t, changed)

		assert.Equal(t, []valueobjects.NodeID{target}, node.Connections())
	})

	t.Run("self connection rejected when disallowed", func(t *testing.T) {
		cfg := config.DefaultDomainConfig()
		cfg.AllowSelfConnections = false
		node := fixtures.NewNodeBuilder().MustBuild()

		_, err := node.ConnectTo(node.ID(), cfg)
		assert.True(t, pkgerrors.IsValidation(err))
	})

	t.Run("limit enforced", func(t *testing.T) {
		cfg := config.DefaultDomainConfig()
		cfg.MaxConnectionsPerNode = 1
		node := fixtures.NewNodeBuilder().WithConnections(target.String()).MustBuild()

		_, err := node.ConnectTo(valueobjects.NewNodeID(), cfg)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "maximum connections reached")
	})
}

func TestIdeaNode_ReplaceConnections(t *testing.T) {
	a, b := valueobjects.NewNodeID(), valueobjects.NewNodeID()
	node := fixtures.NewNodeBuilder().WithConnections(a.String()).MustBuild()

	changed, err := node.ReplaceConnections([]valueobjects.NodeID{b, a, b}, nil)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []valueobjects.NodeID{b, a, b}, node.Connections())

	cfg := config.DefaultDomainConfig()
	cfg.DedupeConnections = true
	_, err = node.ReplaceConnections([]valueobjects.NodeID{b, a, b}, cfg)
	require.NoError(t, err)
	assert.Equal(t, []valueobjects.NodeID{b, a}, node.Connections())

	replaced := node.GetUncommittedEvents()[len(node.GetUncommittedEvents())-1].(events.NodeConnectionsReplaced)
	assert.Equal(t, []string{b.String(), a.String(), b.String()}, replaced.Previous)
	assert.Equal(t, []string{b.String(), a.String()}, replaced.Current)
}

func TestIdeaNode_ConnectionsIsACopy(t *testing.T) {
	a := valueobjects.NewNodeID()
	node := fixtures.NewNodeBuilder().WithConnections(a.String()).MustBuild()

	conns := node.Connections()
	conns[0] = valueobjects.NewNodeID()

	assert.True(t, node.HasConnectionTo(a))
}

func TestIdeaNode_RemoveConnectionsTo(t *testing.T) {
	a, b := valueobjects.NewNodeID(), valueobjects.NewNodeID()
	node := fixtures.NewNodeBuilder().WithConnections(a.String(), b.String(), a.String()).MustBuild()

	assert.True(t, node.RemoveConnectionsTo(a))
	assert.Equal(t, []valueobjects.NodeID{b}, node.Connections())
	assert.False(t, node.RemoveConnectionsTo(a))
}

func TestIdeaNode_VertexAndEvents(t *testing.T) {
	a := valueobjects.NewNodeID()
	node := fixtures.NewNodeBuilder().WithConnections(a.String()).MustBuild()

	vertex := node.Vertex()
	assert.Equal(t, node.ID().String(), vertex.ID)
	assert.Equal(t, []string{a.String()}, vertex.Connections)

	node.MarkDeleted([]valueobjects.NodeID{a})
	deleted := node.GetUncommittedEvents()[0].(events.NodeDeleted)
	assert.Equal(t, []string{a.String()}, deleted.ScrubbedNodeIDs)

	node.MarkEventsAsCommitted()
	assert.Empty(t, node.GetUncommittedEvents())
}
