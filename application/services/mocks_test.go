package services

import (
	"context"

	"github.com/woragis/woragis-sub002/domain/core/entities"
	"github.com/woragis/woragis-sub002/domain/core/valueobjects"
	"github.com/woragis/woragis-sub002/domain/events"

	"github.com/stretchr/testify/mock"
)

type MockNodeRepository struct {
	mock.Mock
}

func (m *MockNodeRepository) Save(ctx context.Context, node *entities.IdeaNode) error {
	args := m.Called(ctx, node)
	return args.Error(0)
}

func (m *MockNodeRepository) GetByID(ctx context.Context, ideaID valueobjects.IdeaID, id valueobjects.NodeID) (*entities.IdeaNode, error) {
	args := m.Called(ctx, ideaID, id)
	if node, ok := args.Get(0).(*entities.IdeaNode); ok {
		return node, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockNodeRepository) ListByIdea(ctx context.Context, ideaID valueobjects.IdeaID) ([]*entities.IdeaNode, error) {
	args := m.Called(ctx, ideaID)
	if nodes, ok := args.Get(0).([]*entities.IdeaNode); ok {
		return nodes, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockNodeRepository) CountByIdea(ctx context.Context, ideaID valueobjects.IdeaID) (int, error) {
	args := m.Called(ctx, ideaID)
	return args.Int(0), args.Error(1)
}

func (m *MockNodeRepository) Delete(ctx context.Context, ideaID valueobjects.IdeaID, id valueobjects.NodeID, expectedVersion int) error {
	args := m.Called(ctx, ideaID, id, expectedVersion)
	return args.Error(0)
}

func (m *MockNodeRepository) DeleteAndScrub(ctx context.Context, ideaID valueobjects.IdeaID, id valueobjects.NodeID, expectedVersion int) ([]*entities.IdeaNode, error) {
	args := m.Called(ctx, ideaID, id, expectedVersion)
	if nodes, ok := args.Get(0).([]*entities.IdeaNode); ok {
		return nodes, args.Error(1)
	}
	return nil, args.Error(1)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, evts []events.DomainEvent) error {
	args := m.Called(ctx, evts)
	return args.Error(0)
}
