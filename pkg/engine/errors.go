package engine

import (
	"errors"
	"fmt"
)

// Engine execution errors. Each one fails the instance it occurred in; none
// of them crashes the drive loop for other instances.
var (
	// ErrStepLimitExceeded marks a drive pass that ran more iterations than
	// the configured bound allows. Definitions are validated acyclic, so
	// hitting the bound means a graph larger than anything the product
	// supports, and the instance fails rather than spinning.
	ErrStepLimitExceeded = errors.New("step limit exceeded")
	// ErrUnknownNodeType is returned by the executor's dispatch switch for a
	// node type outside the closed set.
	ErrUnknownNodeType = errors.New("unknown node type")
	// ErrMissingNode means an instance points at a node id absent from its
	// definition.
	ErrMissingNode = errors.New("node not found in definition")
	// ErrInstanceNotCancellable is returned when cancelling an instance that
	// already reached a terminal status.
	ErrInstanceNotCancellable = errors.New("instance is not cancellable")
)

// NodeError wraps a failure with the node it happened on.
type NodeError struct {
	InstanceID string
	NodeID     string
	Err        error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("instance %s node %s: %v", e.InstanceID, e.NodeID, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

func newNodeError(instanceID, nodeID string, err error) *NodeError {
	return &NodeError{InstanceID: instanceID, NodeID: nodeID, Err: err}
}
