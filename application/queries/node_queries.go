// Package queries defines the read requests accepted by the node service.
package queries

import (
	"github.com/woragis/woragis-sub002/pkg/utils"
)

// ListNodesQuery lists every node of an idea.
type ListNodesQuery struct {
	IdeaID string `validate:"required,max=128"`
}

func (q ListNodesQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// GetNodeQuery fetches a single node.
type GetNodeQuery struct {
	IdeaID string `validate:"required,max=128"`
	NodeID string `validate:"required,uuid"`
}

func (q GetNodeQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// ListEdgesQuery derives the edges of an idea. With DanglingOnly only
// edges pointing at missing nodes are returned.
type ListEdgesQuery struct {
	IdeaID       string `validate:"required,max=128"`
	DanglingOnly bool
}

func (q ListEdgesQuery) Validate() error {
	return utils.ValidateStruct(q)
}
