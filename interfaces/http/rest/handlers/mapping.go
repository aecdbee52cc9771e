package handlers

import (
	"github.com/woragis/woragis-sub002/domain/core/entities"
	"github.com/woragis/woragis-sub002/pkg/api"
)

// ToAPINode converts a node to its JSON form.
func ToAPINode(n *entities.IdeaNode) api.Node {
	s := n.Snapshot()
	conns := s.Connections
	if conns == nil {
		conns = []string{}
	}
	return api.Node{
		ID:          s.ID,
		IdeaID:      s.IdeaID,
		Title:       s.Title,
		Content:     s.Content,
		Type:        s.Type,
		PositionX:   s.PositionX,
		PositionY:   s.PositionY,
		Width:       s.Width,
		Height:      s.Height,
		Color:       s.Color,
		Connections: conns,
		Visible:     s.Visible,
		Version:     s.Version,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}
