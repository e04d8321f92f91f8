package stream

import (
	"sync"

	"github.com/feedsift/feedsift/internal/verdict"
)

// FakeNode is an in-memory Node used across the pipeline's tests.
type FakeNode struct {
	mu sync.Mutex

	ID       string
	text     string
	author   string
	url      string
	parentID string

	alive     bool
	state     verdict.Verdict
	shownText string
	distilled bool

	// Hollow simulates a node whose text extraction returns empty, e.g.
	// after an aggressive hide by the host.
	Hollow bool
}

// NewFakeNode returns a live node with the given content.
func NewFakeNode(id, text, author, parentID string) *FakeNode {
	return &FakeNode{ID: id, text: text, author: author, parentID: parentID, alive: true, shownText: text}
}

func (n *FakeNode) Alive() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.alive
}

// Invalidate simulates the host recycling or removing the node.
func (n *FakeNode) Invalidate() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alive = false
}

func (n *FakeNode) Content() (Content, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.alive || n.Hollow {
		return Content{}, false
	}
	return Content{Text: n.text, Author: n.author, URL: n.url}, true
}

func (n *FakeNode) State() verdict.Verdict {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *FakeNode) SetState(v verdict.Verdict) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.state = v
}

// ClearState simulates the host stripping presentation markers on navigation.
func (n *FakeNode) ClearState() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.state = ""
}

func (n *FakeNode) ReplaceText(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.shownText = text
}

// ShownText returns what the user would currently see.
func (n *FakeNode) ShownText() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.shownText
}

func (n *FakeNode) Distilled() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.distilled
}

func (n *FakeNode) MarkDistilled() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.distilled = true
}

func (n *FakeNode) ParentID() string { return n.parentID }

// FakeHost is an in-memory Host with a mutation-count probe for reorder tests.
type FakeHost struct {
	mu sync.Mutex

	added      chan []Node
	pauseDepth int

	CurrentView    View
	visible        bool
	order          []Node // document order within the single fake container
	viewport       map[Node]int
	MoveCount      int // mutation probe: structural moves performed
	terminateCalls int
}

// NewFakeHost returns a visible host in feed view with no nodes.
func NewFakeHost() *FakeHost {
	return &FakeHost{
		added:       make(chan []Node, 16),
		CurrentView: View{Kind: ViewFeed},
		visible:     true,
		viewport:    make(map[Node]int),
	}
}

// Emit pushes newly-added nodes through the subscription and appends them to
// the document order.
func (h *FakeHost) Emit(nodes ...Node) {
	h.mu.Lock()
	h.order = append(h.order, nodes...)
	h.mu.Unlock()
	h.added <- nodes
}

func (h *FakeHost) Added() <-chan []Node { return h.added }

func (h *FakeHost) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pauseDepth++
}

func (h *FakeHost) Resume() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pauseDepth > 0 {
		h.pauseDepth--
	}
}

// PauseDepth exposes the reference-counted pause depth to tests.
func (h *FakeHost) PauseDepth() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pauseDepth
}

func (h *FakeHost) View() View {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.CurrentView
}

// SetView changes the current view.
func (h *FakeHost) SetView(v View) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.CurrentView = v
}

func (h *FakeHost) Visible() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.visible
}

// SetVisible toggles foreground visibility.
func (h *FakeHost) SetVisible(v bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.visible = v
}

func (h *FakeHost) SuppressedNodes() []Node {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Node
	for _, n := range h.order {
		if !n.State().Visible() && n.State() != "" {
			out = append(out, n)
		}
	}
	return out
}

func (h *FakeHost) MoveBefore(n, ref Node) {
	h.mu.Lock()
	defer h.mu.Unlock()

	src, dst := -1, -1
	for i, x := range h.order {
		if x == n {
			src = i
		}
		if x == ref {
			dst = i
		}
	}
	if src < 0 || dst < 0 || src == dst || src == dst-1 {
		// already immediately before ref: structurally a no-op
		return
	}
	h.MoveCount++
	h.order = append(h.order[:src], h.order[src+1:]...)
	// recompute ref index after removal
	dst = -1
	for i, x := range h.order {
		if x == ref {
			dst = i
		}
	}
	rest := append([]Node{n}, h.order[dst:]...)
	h.order = append(h.order[:dst:dst], rest...)
}

// Order returns the current document order.
func (h *FakeHost) Order() []Node {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Node, len(h.order))
	copy(out, h.order)
	return out
}

func (h *FakeHost) ViewportOffset(n Node) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.viewport[n]
}

func (h *FakeHost) SetViewportOffset(n Node, offset int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.viewport[n] = offset
}

func (h *FakeHost) Terminate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.terminateCalls++
}

// Terminated returns how many times Terminate has been called.
func (h *FakeHost) Terminated() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.terminateCalls
}
