package eventbridge

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/woragis/woragis-sub002/domain/core/valueobjects"
	"github.com/woragis/woragis-sub002/domain/events"
	"github.com/woragis/woragis-sub002/internal/fixtures"
	pkgerrors "github.com/woragis/woragis-sub002/pkg/errors"
)

type MockEventBridge struct {
	mock.Mock
}

func (m *MockEventBridge) PutEvents(ctx context.Context, in *eventbridge.PutEventsInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*eventbridge.PutEventsOutput)
	return out, args.Error(1)
}

func movedEvents(n int) []events.DomainEvent {
	ideaID := fixtures.MustIdeaID("idea-1")
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	out := make([]events.DomainEvent, n)
	for i := range out {
		out[i] = events.NewNodeMoved(valueobjects.NewNodeID(), ideaID,
			fixtures.MustPosition(0, 0), fixtures.MustPosition(float64(i), 1), 2, at)
	}
	return out
}

func TestPublish_BatchesByTen(t *testing.T) {
	client := &MockEventBridge{}
	client.On("PutEvents", mock.Anything, mock.MatchedBy(func(in *eventbridge.PutEventsInput) bool {
		return len(in.Entries) == 10
	})).Return(&eventbridge.PutEventsOutput{}, nil).Twice()
	client.On("PutEvents", mock.Anything, mock.MatchedBy(func(in *eventbridge.PutEventsInput) bool {
		return len(in.Entries) == 3
	})).Return(&eventbridge.PutEventsOutput{}, nil).Once()

	p := NewPublisher(client, "bus", zap.NewNop())
	require.NoError(t, p.Publish(context.Background(), movedEvents(23)))
	client.AssertExpectations(t)
}

func TestPublish_EntryShape(t *testing.T) {
	client := &MockEventBridge{}
	var captured *eventbridge.PutEventsInput
	client.On("PutEvents", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(*eventbridge.PutEventsInput) }).
		Return(&eventbridge.PutEventsOutput{}, nil)

	evts := movedEvents(1)
	p := NewPublisher(client, "bus", zap.NewNop())
	require.NoError(t, p.Publish(context.Background(), evts))

	require.Len(t, captured.Entries, 1)
	entry := captured.Entries[0]
	assert.Equal(t, "bus", aws.ToString(entry.EventBusName))
	assert.Equal(t, Source, aws.ToString(entry.Source))
	assert.Equal(t, events.TypeNodeMoved, aws.ToString(entry.DetailType))

	var detail map[string]any
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(entry.Detail)), &detail))
	assert.Equal(t, evts[0].GetAggregateID(), detail["aggregate_id"])
	assert.Equal(t, "idea-1", detail["idea_id"])
}

func TestPublish_Failures(t *testing.T) {
	t.Run("transport", func(t *testing.T) {
		client := &MockEventBridge{}
		client.On("PutEvents", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

		err := NewPublisher(client, "bus", zap.NewNop()).Publish(context.Background(), movedEvents(2))
		assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeExternal))
	})

	t.Run("partial", func(t *testing.T) {
		client := &MockEventBridge{}
		client.On("PutEvents", mock.Anything, mock.Anything).Return(&eventbridge.PutEventsOutput{
			FailedEntryCount: 1,
			Entries: []types.PutEventsResultEntry{
				{EventId: aws.String("1")},
				{ErrorCode: aws.String("InternalFailure"), ErrorMessage: aws.String("try again")},
			},
		}, nil)

		err := NewPublisher(client, "bus", zap.NewNop()).Publish(context.Background(), movedEvents(2))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "eventbridge")
	})
}

func TestPublish_NothingToSend(t *testing.T) {
	client := &MockEventBridge{}
	require.NoError(t, NewPublisher(client, "bus", zap.NewNop()).Publish(context.Background(), nil))
	client.AssertNotCalled(t, "PutEvents", mock.Anything, mock.Anything)
}
