package logging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/woragis/woragis-sub002/domain/core/valueobjects"
	"github.com/woragis/woragis-sub002/domain/events"
	"github.com/woragis/woragis-sub002/internal/fixtures"
)

func TestPublisher_LogsEachEvent(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	p := NewPublisher(zap.New(core))
	nodeID := valueobjects.NewNodeID()

	err := p.Publish(context.Background(), []events.DomainEvent{
		events.NewNodeCreated(nodeID, fixtures.MustIdeaID("idea-1"), "t", "default", fixtures.MustPosition(1, 2), time.Now()),
		events.NewNodeDeleted(nodeID, fixtures.MustIdeaID("idea-1"), nil, 2, time.Now()),
	})
	require.NoError(t, err)

	entries := logs.FilterMessage("Domain event").All()
	require.Len(t, entries, 2)
	assert.Equal(t, events.TypeNodeCreated, entries[0].ContextMap()["event_type"])
	assert.Equal(t, events.TypeNodeDeleted, entries[1].ContextMap()["event_type"])
	assert.Equal(t, nodeID.String(), entries[1].ContextMap()["node_id"])
}
