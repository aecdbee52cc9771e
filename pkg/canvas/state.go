package canvas

import (
	"errors"
	"fmt"
)

// NodeState is the gesture state of one node.
type NodeState int

const (
	StateIdle NodeState = iota
	StateDragging
	StateEditing
)

func (s NodeState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDragging:
		return "dragging"
	case StateEditing:
		return "editing"
	default:
		return fmt.Sprintf("NodeState(%d)", int(s))
	}
}

var (
	// ErrUnknownNode is returned for gestures on a node that is not loaded.
	ErrUnknownNode = errors.New("canvas: unknown node")
	// ErrNoSelection is returned by selection actions with nothing selected.
	ErrNoSelection = errors.New("canvas: no node selected")
	// ErrClosed is returned once the session has been closed.
	ErrClosed = errors.New("canvas: session closed")
	// ErrInvalidTransition wraps gestures not allowed in the node's state.
	ErrInvalidTransition = errors.New("canvas: invalid transition")
)

// TransitionError reports a gesture rejected by the node's state machine.
type TransitionError struct {
	NodeID  string
	Gesture string
	State   NodeState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("canvas: cannot %s node %s while %s", e.Gesture, e.NodeID, e.State)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// nodeState tracks a node's gesture state and, while dragging, where the
// drag began.
type nodeState struct {
	state       NodeState
	dragOriginX float64
	dragOriginY float64
}

func (n *nodeState) require(nodeID, gesture string, want NodeState) error {
	if n.state != want {
		return &TransitionError{NodeID: nodeID, Gesture: gesture, State: n.state}
	}
	return nil
}
