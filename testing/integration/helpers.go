package integration

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/pollz"
)

// Ledger is the actor driven by TestRuntime.
type Ledger struct {
	Entries []string
}

// Mailbox is the Ledger's execution context.
type Mailbox struct {
	Handled int
}

// Future is the future shape TestRuntime drives.
type Future = pollz.ActorFuture[*Ledger, *Mailbox, string]

// MockCollector wraps a real collector with test utilities.
// Provides synchronous collection and verification helpers.
//
//nolint:govet // Field alignment optimized for test helper readability
type MockCollector struct {
	exported []pollz.Span
	*pollz.Collector
	t  *testing.T
	mu sync.Mutex
}

// NewMockCollector creates a synchronous collector attached to tracer.
func NewMockCollector(t *testing.T, tracer *pollz.Tracer, name string) *MockCollector {
	collector := pollz.NewCollector(name, 1000)
	collector.SetSyncMode(true)
	tracer.AddCollector(collector)
	t.Cleanup(collector.Close)
	return &MockCollector{
		Collector: collector,
		t:         t,
		exported:  make([]pollz.Span, 0),
	}
}

// GetAll returns every span collected so far without losing earlier exports.
func (m *MockCollector) GetAll() []pollz.Span {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current := m.Collector.Export(); len(current) > 0 {
		m.exported = append(m.exported, current...)
	}

	all := make([]pollz.Span, len(m.exported))
	copy(all, m.exported)
	return all
}

// AssertSpanNamed checks if a span with given name exists.
func (m *MockCollector) AssertSpanNamed(name string) *pollz.Span {
	m.t.Helper()
	spans := m.GetAll()
	for i := range spans {
		if spans[i].Name == name {
			return &spans[i]
		}
	}
	m.t.Errorf("Span named '%s' not found", name)
	return nil
}

// AssertParentChild verifies parent-child relationship.
func (m *MockCollector) AssertParentChild(parentName, childName string) {
	m.t.Helper()
	parent := m.AssertSpanNamed(parentName)
	child := m.AssertSpanNamed(childName)
	if parent == nil || child == nil {
		return
	}

	if child.ParentID != parent.SpanID {
		m.t.Errorf("Parent-child relationship broken: %s is not parent of %s. Child ParentID=%s, Parent SpanID=%s",
			parentName, childName, child.ParentID, parent.SpanID)
	}
	if child.TraceID != parent.TraceID {
		m.t.Errorf("Trace ID mismatch: parent=%s, child=%s", parent.TraceID, child.TraceID)
	}
}

// SpanTree represents a hierarchical view of spans.
type SpanTree struct {
	Span     pollz.Span
	Children []*SpanTree
}

// BuildSpanTree constructs a tree from flat span list.
func BuildSpanTree(spans []pollz.Span) []*SpanTree {
	nodes := make(map[string]*SpanTree, len(spans))
	roots := make([]*SpanTree, 0)

	for i := range spans {
		nodes[spans[i].SpanID] = &SpanTree{Span: spans[i]}
	}
	for i := range spans {
		node := nodes[spans[i].SpanID]
		if parent, ok := nodes[spans[i].ParentID]; ok {
			parent.Children = append(parent.Children, node)
		} else {
			roots = append(roots, node)
		}
	}
	return roots
}

// PrintSpanTree formats span tree for debugging.
func PrintSpanTree(trees []*SpanTree) string {
	var sb strings.Builder
	for _, tree := range trees {
		printTreeNode(&sb, tree, 0)
	}
	return sb.String()
}

func printTreeNode(sb *strings.Builder, node *SpanTree, depth int) {
	fmt.Fprintf(sb, "%s%s (%.2fms)\n",
		strings.Repeat("  ", depth), node.Span.Name, node.Span.Duration.Seconds()*1000)
	for _, child := range node.Children {
		printTreeNode(sb, child, depth+1)
	}
}

// TestRuntime is a single-writer actor loop: it owns one Ledger and polls
// the futures spawned on it one at a time, re-polling only those that woke.
type TestRuntime struct {
	ctx     context.Context
	actor   *Ledger
	actx    *Mailbox
	slots   []*slot
	results []string
}

type slot struct {
	fut   Future
	task  *pollz.Task
	woken bool
}

// NewTestRuntime creates a runtime whose tasks carry ctx as ambient context.
func NewTestRuntime(ctx context.Context) *TestRuntime {
	return &TestRuntime{
		ctx:   ctx,
		actor: &Ledger{},
		actx:  &Mailbox{},
	}
}

// Spawn schedules fut for its first poll.
func (r *TestRuntime) Spawn(fut Future) {
	s := &slot{fut: fut, woken: true}
	s.task = pollz.NewTask(r.ctx, func() { s.woken = true })
	r.slots = append(r.slots, s)
}

// Tick polls every woken future once, in spawn order, and returns how many
// futures are still pending.
func (r *TestRuntime) Tick() int {
	live := r.slots[:0]
	for _, s := range r.slots {
		if !s.woken {
			live = append(live, s)
			continue
		}
		s.woken = false
		r.actx.Handled++
		if v, ok := s.fut.Poll(r.actor, r.actx, s.task).Value(); ok {
			r.results = append(r.results, v)
			continue
		}
		live = append(live, s)
	}
	r.slots = live
	return len(r.slots)
}

// Run ticks until every future completes or timeout elapses.
func (r *TestRuntime) Run(timeout time.Duration) []string {
	deadline := time.Now().Add(timeout)
	for r.Tick() > 0 && time.Now().Before(deadline) {
	}
	return r.results
}

// Stop drops every pending future without polling it again.
func (r *TestRuntime) Stop() {
	for _, s := range r.slots {
		if d, ok := s.fut.(pollz.Dropper); ok {
			d.Drop()
		}
	}
	r.slots = nil
}

// Ledger returns the actor owned by the runtime.
func (r *TestRuntime) Ledger() *Ledger {
	return r.actor
}

// Polls returns the total number of polls performed.
func (r *TestRuntime) Polls() int {
	return r.actx.Handled
}
