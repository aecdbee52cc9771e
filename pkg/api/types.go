// Package api holds the JSON types exchanged over the REST interface. It is
// shared by the HTTP handlers and the Go client.
package api

import "time"

// Node is the JSON form of an idea node.
type Node struct {
	ID          string    `json:"id"`
	IdeaID      string    `json:"ideaId"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Type        string    `json:"type"`
	PositionX   float64   `json:"positionX"`
	PositionY   float64   `json:"positionY"`
	Width       float64   `json:"width"`
	Height      float64   `json:"height"`
	Color       *string   `json:"color,omitempty"`
	Connections []string  `json:"connections"`
	Visible     bool      `json:"visible"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Edge is a derived, read-only connection between two nodes. Ordinal
// distinguishes repeated connections to the same target.
type Edge struct {
	ID      string `json:"id"`
	Source  string `json:"source"`
	Target  string `json:"target"`
	Ordinal int    `json:"ordinal"`
}

// ListNodesResponse is returned by GET /ideas/{ideaID}/nodes.
type ListNodesResponse struct {
	Nodes []Node `json:"nodes"`
}

// ListEdgesResponse is returned by GET /ideas/{ideaID}/edges.
type ListEdgesResponse struct {
	Edges []Edge `json:"edges"`
}

// CreateNodeRequest is the body of POST /ideas/{ideaID}/nodes. Every field
// is optional.
type CreateNodeRequest struct {
	Title     *string  `json:"title,omitempty"`
	Content   *string  `json:"content,omitempty"`
	Type      *string  `json:"type,omitempty"`
	PositionX *float64 `json:"positionX,omitempty"`
	PositionY *float64 `json:"positionY,omitempty"`
	Width     *float64 `json:"width,omitempty" validate:"omitempty,gt=0"`
	Height    *float64 `json:"height,omitempty" validate:"omitempty,gt=0"`
	Color     *string  `json:"color,omitempty"`
	Visible   *bool    `json:"visible,omitempty"`
}

// UpdateNodeRequest is the body of PATCH /ideas/{ideaID}/nodes/{nodeID}.
// Only the fields present are changed. An empty color clears it.
type UpdateNodeRequest struct {
	Title           *string  `json:"title,omitempty"`
	Content         *string  `json:"content,omitempty"`
	Type            *string  `json:"type,omitempty"`
	Color           *string  `json:"color,omitempty"`
	Width           *float64 `json:"width,omitempty" validate:"omitempty,gt=0"`
	Height          *float64 `json:"height,omitempty" validate:"omitempty,gt=0"`
	Visible         *bool    `json:"visible,omitempty"`
	ExpectedVersion *int     `json:"expectedVersion,omitempty" validate:"omitempty,min=1"`
}

// UpdatePositionRequest is the body of PUT .../position.
type UpdatePositionRequest struct {
	PositionX       *float64 `json:"positionX" validate:"required"`
	PositionY       *float64 `json:"positionY" validate:"required"`
	ExpectedVersion *int     `json:"expectedVersion,omitempty" validate:"omitempty,min=1"`
}

// UpdateConnectionsRequest is the body of PUT .../connections. The list
// replaces the stored one; an empty list clears it.
type UpdateConnectionsRequest struct {
	Connections     []string `json:"connections" validate:"required,dive,uuid"`
	ExpectedVersion *int     `json:"expectedVersion,omitempty" validate:"omitempty,min=1"`
}

// ConnectRequest is the body of POST .../connections.
type ConnectRequest struct {
	TargetID string `json:"targetId" validate:"required,uuid"`
}

// HealthResponse is returned by /health and /ready.
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}
