// Package workflow tracks the node lifecycle of a single triage run.
package workflow

import (
	"fmt"
	"sync"
	"time"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/logging"
)

// Phase represents the aggregate state of a run.
type Phase string

const (
	// PhasePending indicates no nodes have started.
	PhasePending Phase = "pending"
	// PhaseRunning indicates at least one node is executing and none have failed.
	PhaseRunning Phase = "running"
	// PhaseSucceeded indicates every entered node completed successfully.
	PhaseSucceeded Phase = "succeeded"
	// PhaseFailed indicates at least one node failed.
	PhaseFailed Phase = "failed"
)

// Run tracks the nodes entered during one graph invocation. Nodes are
// registered as the graph reaches them, so Order is the path actually taken.
type Run struct {
	mu        sync.RWMutex
	id        string
	nodes     map[string]*Node
	order     []string
	logger    logging.Logger
	listeners []Listener
}

// Snapshot captures a consistent view of the run for reporting.
type Snapshot struct {
	ID          string           `json:"id"`
	Phase       Phase            `json:"phase"`
	Order       []string         `json:"order"`
	Nodes       []NodeSnapshot   `json:"nodes"`
	StartedAt   time.Time        `json:"started_at,omitempty"`
	CompletedAt time.Time        `json:"completed_at,omitempty"`
	Duration    time.Duration    `json:"duration"`
	Summary     map[string]int64 `json:"summary"`
}

// Visited reports whether node was entered during the run.
func (s Snapshot) Visited(node string) bool {
	for _, id := range s.Order {
		if id == node {
			return true
		}
	}
	return false
}

// EventType enumerates run lifecycle signals emitted to listeners.
type EventType string

const (
	EventNodeStarted   EventType = "node_started"
	EventNodeSucceeded EventType = "node_succeeded"
	EventNodeFailed    EventType = "node_failed"
	// EventRunUpdated carries the full snapshot after any transition.
	EventRunUpdated EventType = "run_updated"
)

// Event represents a run lifecycle notification.
type Event struct {
	Type      EventType     `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	Run       string        `json:"run"`
	Phase     Phase         `json:"phase,omitempty"`
	Node      *NodeSnapshot `json:"node,omitempty"`
	Snapshot  *Snapshot     `json:"snapshot,omitempty"`
}

// Listener receives run lifecycle events.
type Listener interface {
	OnRunEvent(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

func (f ListenerFunc) OnRunEvent(e Event) { f(e) }

// NewRun creates an empty run with the provided identifier.
func NewRun(id string, logger logging.Logger) *Run {
	return &Run{
		id:     id,
		nodes:  make(map[string]*Node),
		logger: logging.OrNop(logger),
	}
}

// ID returns the run identifier.
func (r *Run) ID() string {
	return r.id
}

// AddListener attaches a listener for lifecycle events.
func (r *Run) AddListener(listener Listener) {
	if listener == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, listener)
	r.mu.Unlock()
}

// Node returns an entered node by id.
func (r *Run) Node(id string) (*Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	node, ok := r.nodes[id]
	return node, ok
}

// StartNode registers id and moves it to running. A node can be entered
// once per run.
func (r *Run) StartNode(id string) (NodeSnapshot, Snapshot, error) {
	if id == "" {
		return NodeSnapshot{}, Snapshot{}, fmt.Errorf("node id is required")
	}
	r.mu.Lock()
	if _, exists := r.nodes[id]; exists {
		r.mu.Unlock()
		return NodeSnapshot{}, Snapshot{}, fmt.Errorf("node %q already entered", id)
	}
	r.nodes[id] = NewNode(id)
	r.order = append(r.order, id)
	r.mu.Unlock()

	return r.transitionNode(id, func(node *Node) (NodeSnapshot, error) {
		return node.Start()
	}, EventNodeStarted)
}

// CompleteNodeSuccess moves id to succeeded.
func (r *Run) CompleteNodeSuccess(id string, output any) (NodeSnapshot, Snapshot, error) {
	return r.transitionNode(id, func(node *Node) (NodeSnapshot, error) {
		return node.CompleteSuccess(output)
	}, EventNodeSucceeded)
}

// CompleteNodeFailure moves id to failed.
func (r *Run) CompleteNodeFailure(id string, err error) (NodeSnapshot, Snapshot, error) {
	return r.transitionNode(id, func(node *Node) (NodeSnapshot, error) {
		return node.CompleteFailure(err)
	}, EventNodeFailed)
}

// Snapshot returns a deterministic snapshot of the run and its nodes.
func (r *Run) Snapshot() Snapshot {
	r.mu.RLock()
	order := append([]string(nil), r.order...)
	nodes := make([]NodeSnapshot, 0, len(order))
	for _, id := range order {
		nodes = append(nodes, r.nodes[id].Snapshot())
	}
	r.mu.RUnlock()

	phase, startedAt, completedAt := evaluatePhase(nodes)
	duration := time.Duration(0)
	if !startedAt.IsZero() {
		end := completedAt
		if end.IsZero() {
			end = time.Now()
		}
		duration = end.Sub(startedAt)
	}

	return Snapshot{
		ID:          r.id,
		Phase:       phase,
		Order:       order,
		Nodes:       nodes,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Duration:    duration,
		Summary:     summarize(nodes),
	}
}

func (r *Run) transitionNode(id string, transition func(*Node) (NodeSnapshot, error), eventType EventType) (NodeSnapshot, Snapshot, error) {
	r.mu.RLock()
	node, ok := r.nodes[id]
	r.mu.RUnlock()
	if !ok {
		return NodeSnapshot{}, Snapshot{}, fmt.Errorf("node %q not found", id)
	}

	nodeSnapshot, err := transition(node)
	if err != nil {
		return NodeSnapshot{}, Snapshot{}, err
	}

	snapshot := r.Snapshot()
	r.logger.Debug("run %s node %s -> %s (phase=%s)", r.id, id, nodeSnapshot.Status, snapshot.Phase)

	ts := time.Now()
	r.emit(Event{Type: eventType, Run: r.id, Phase: snapshot.Phase, Node: &nodeSnapshot, Snapshot: &snapshot, Timestamp: ts})
	r.emit(Event{Type: EventRunUpdated, Run: r.id, Phase: snapshot.Phase, Snapshot: &snapshot, Timestamp: ts})

	return nodeSnapshot, snapshot, nil
}

func (r *Run) emit(event Event) {
	r.mu.RLock()
	listeners := append([]Listener(nil), r.listeners...)
	r.mu.RUnlock()

	for _, listener := range listeners {
		listener.OnRunEvent(event)
	}
}

// Completed runs are judged on the nodes actually entered; a pending node
// never exists because nodes are registered on entry.
func evaluatePhase(nodes []NodeSnapshot) (Phase, time.Time, time.Time) {
	if len(nodes) == 0 {
		return PhasePending, time.Time{}, time.Time{}
	}

	var startedAt, completedAt time.Time
	failed := false
	running := false
	for _, node := range nodes {
		switch node.Status {
		case NodeStatusFailed:
			failed = true
		case NodeStatusRunning, NodeStatusPending:
			running = true
		}
		if !node.StartedAt.IsZero() && (startedAt.IsZero() || node.StartedAt.Before(startedAt)) {
			startedAt = node.StartedAt
		}
		if !node.CompletedAt.IsZero() && node.CompletedAt.After(completedAt) {
			completedAt = node.CompletedAt
		}
	}

	switch {
	case failed:
		return PhaseFailed, startedAt, completedAt
	case running:
		return PhaseRunning, startedAt, time.Time{}
	default:
		return PhaseSucceeded, startedAt, completedAt
	}
}

func summarize(nodes []NodeSnapshot) map[string]int64 {
	summary := map[string]int64{
		string(NodeStatusPending):   0,
		string(NodeStatusRunning):   0,
		string(NodeStatusSucceeded): 0,
		string(NodeStatusFailed):    0,
	}
	for _, node := range nodes {
		summary[string(node.Status)]++
	}
	return summary
}
