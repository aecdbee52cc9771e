package valueobjects

import (
	"encoding/json"

	pkgerrors "github.com/woragis/woragis-sub002/pkg/errors"

	"github.com/google/uuid"
)

// NodeID identifies an idea node. Values are UUID strings assigned by the
// server.
type NodeID struct {
	value string
}

// NewNodeID creates a random NodeID.
func NewNodeID() NodeID {
	return NodeID{value: uuid.New().String()}
}

// NewNodeIDFromString parses an existing identifier.
func NewNodeIDFromString(id string) (NodeID, error) {
	if id == "" {
		return NodeID{}, pkgerrors.NewValidationError("node ID cannot be empty")
	}
	if _, err := uuid.Parse(id); err != nil {
		return NodeID{}, pkgerrors.NewValidationError("node ID must be a valid UUID").WithDetail("node_id", id)
	}
	return NodeID{value: id}, nil
}

// NodeIDsFromStrings parses a list of identifiers, keeping order and
// duplicates.
func NodeIDsFromStrings(ids []string) ([]NodeID, error) {
	out := make([]NodeID, 0, len(ids))
	for _, raw := range ids {
		id, err := NewNodeIDFromString(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// NodeIDStrings is the inverse of NodeIDsFromStrings.
func NodeIDStrings(ids []NodeID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.value
	}
	return out
}

func (id NodeID) String() string {
	return id.value
}

func (id NodeID) Equals(other NodeID) bool {
	return id.value == other.value
}

func (id NodeID) IsZero() bool {
	return id.value == ""
}

func (id NodeID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.value)
}

func (id *NodeID) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return pkgerrors.NewValidationError("node ID must be a string")
	}
	if raw == "" {
		*id = NodeID{}
		return nil
	}
	parsed, err := NewNodeIDFromString(raw)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
