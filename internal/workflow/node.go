package workflow

import (
	"fmt"
	"sync"
	"time"
)

// NodeStatus is the lifecycle state of one node within a run.
type NodeStatus string

const (
	NodeStatusPending   NodeStatus = "pending"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusSucceeded NodeStatus = "succeeded"
	NodeStatusFailed    NodeStatus = "failed"
)

// Node tracks one graph node entered during a run.
type Node struct {
	mu          sync.RWMutex
	id          string
	status      NodeStatus
	output      any
	err         error
	startedAt   time.Time
	completedAt time.Time
	now         func() time.Time
}

// NodeSnapshot is a point-in-time copy of a node.
type NodeSnapshot struct {
	ID          string        `json:"id"`
	Status      NodeStatus    `json:"status"`
	Output      any           `json:"output,omitempty"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"started_at,omitempty"`
	CompletedAt time.Time     `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// NewNode returns a pending node.
func NewNode(id string) *Node {
	return &Node{id: id, status: NodeStatusPending, now: time.Now}
}

func (n *Node) ID() string {
	return n.id
}

// Start moves a pending node to running.
func (n *Node) Start() (NodeSnapshot, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.status != NodeStatusPending {
		return NodeSnapshot{}, fmt.Errorf("node %q cannot start from %s", n.id, n.status)
	}
	n.status = NodeStatusRunning
	n.startedAt = n.now()
	return n.snapshotLocked(), nil
}

// CompleteSuccess moves a running node to succeeded, keeping output.
func (n *Node) CompleteSuccess(output any) (NodeSnapshot, error) {
	return n.complete(NodeStatusSucceeded, output, nil)
}

// CompleteFailure moves a running node to failed.
func (n *Node) CompleteFailure(err error) (NodeSnapshot, error) {
	if err == nil {
		err = fmt.Errorf("node %q failed", n.id)
	}
	return n.complete(NodeStatusFailed, nil, err)
}

func (n *Node) complete(status NodeStatus, output any, err error) (NodeSnapshot, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.status != NodeStatusRunning {
		return NodeSnapshot{}, fmt.Errorf("node %q cannot complete from %s", n.id, n.status)
	}
	n.status = status
	n.output = output
	n.err = err
	n.completedAt = n.now()
	return n.snapshotLocked(), nil
}

// Snapshot returns the node's current view.
func (n *Node) Snapshot() NodeSnapshot {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.snapshotLocked()
}

func (n *Node) snapshotLocked() NodeSnapshot {
	snap := NodeSnapshot{
		ID:          n.id,
		Status:      n.status,
		Output:      n.output,
		StartedAt:   n.startedAt,
		CompletedAt: n.completedAt,
	}
	if n.err != nil {
		snap.Error = n.err.Error()
	}
	switch {
	case !n.completedAt.IsZero():
		snap.Duration = n.completedAt.Sub(n.startedAt)
	case !n.startedAt.IsZero():
		snap.Duration = n.now().Sub(n.startedAt)
	}
	return snap
}
