// Package commands defines the write requests accepted by the node service.
package commands

import (
	"github.com/woragis/woragis-sub002/pkg/utils"
)

// CreateNodeCommand is the "add node" action. Nil fields fall back to the
// domain defaults; a missing position is randomized.
type CreateNodeCommand struct {
	IdeaID    string   `json:"ideaId" validate:"required,max=128"`
	Title     *string  `json:"title,omitempty"`
	Content   *string  `json:"content,omitempty"`
	Type      *string  `json:"type,omitempty"`
	PositionX *float64 `json:"positionX,omitempty"`
	PositionY *float64 `json:"positionY,omitempty"`
	Width     *float64 `json:"width,omitempty" validate:"omitempty,gt=0"`
	Height    *float64 `json:"height,omitempty" validate:"omitempty,gt=0"`
	Color     *string  `json:"color,omitempty"`
	Visible   *bool    `json:"visible,omitempty"`
	Actor     string   `json:"-"`
}

func (c CreateNodeCommand) Validate() error {
	return utils.ValidateStruct(c)
}

// UpdateNodeFieldsCommand merges the non-nil fields into the node.
type UpdateNodeFieldsCommand struct {
	IdeaID          string   `json:"ideaId" validate:"required,max=128"`
	NodeID          string   `json:"nodeId" validate:"required,uuid"`
	Title           *string  `json:"title,omitempty"`
	Content         *string  `json:"content,omitempty"`
	Type            *string  `json:"type,omitempty"`
	Color           *string  `json:"color,omitempty"`
	Width           *float64 `json:"width,omitempty" validate:"omitempty,gt=0"`
	Height          *float64 `json:"height,omitempty" validate:"omitempty,gt=0"`
	Visible         *bool    `json:"visible,omitempty"`
	ExpectedVersion *int     `json:"expectedVersion,omitempty" validate:"omitempty,min=1"`
	Actor           string   `json:"-"`
}

func (c UpdateNodeFieldsCommand) Validate() error {
	return utils.ValidateStruct(c)
}

// UpdateNodePositionCommand persists the position a drag ended at.
type UpdateNodePositionCommand struct {
	IdeaID          string  `json:"ideaId" validate:"required,max=128"`
	NodeID          string  `json:"nodeId" validate:"required,uuid"`
	X               float64 `json:"positionX"`
	Y               float64 `json:"positionY"`
	ExpectedVersion *int    `json:"expectedVersion,omitempty" validate:"omitempty,min=1"`
	Actor           string  `json:"-"`
}

func (c UpdateNodePositionCommand) Validate() error {
	return utils.ValidateStruct(c)
}

// UpdateNodeConnectionsCommand replaces the full connection list.
type UpdateNodeConnectionsCommand struct {
	IdeaID          string   `json:"ideaId" validate:"required,max=128"`
	NodeID          string   `json:"nodeId" validate:"required,uuid"`
	Connections     []string `json:"connections" validate:"dive,uuid"`
	ExpectedVersion *int     `json:"expectedVersion,omitempty" validate:"omitempty,min=1"`
	Actor           string   `json:"-"`
}

func (c UpdateNodeConnectionsCommand) Validate() error {
	return utils.ValidateStruct(c)
}

// ConnectNodesCommand appends TargetID to SourceID's connection list on
// the server, performing the read-modify-write there.
type ConnectNodesCommand struct {
	IdeaID   string `json:"ideaId" validate:"required,max=128"`
	SourceID string `json:"sourceId" validate:"required,uuid"`
	TargetID string `json:"targetId" validate:"required,uuid"`
	Actor    string `json:"-"`
}

func (c ConnectNodesCommand) Validate() error {
	return utils.ValidateStruct(c)
}

// DeleteNodeCommand removes a node.
type DeleteNodeCommand struct {
	IdeaID          string `json:"ideaId" validate:"required,max=128"`
	NodeID          string `json:"nodeId" validate:"required,uuid"`
	ExpectedVersion *int   `json:"expectedVersion,omitempty" validate:"omitempty,min=1"`
	Actor           string `json:"-"`
}

func (c DeleteNodeCommand) Validate() error {
	return utils.ValidateStruct(c)
}
