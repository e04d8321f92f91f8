// Package stream abstracts the rendering host that owns the mutating item
// stream. The pipeline borrows node handles, never owns them: a handle can be
// recycled, reordered, or removed by the host at any moment, and the core
// re-derives identity via content fingerprint when a handle goes stale.
package stream

import "github.com/feedsift/feedsift/internal/verdict"

// Content is the normalized text extracted from one node: primary body,
// author, quoted content and link-preview text concatenated in a fixed order
// by the host.
type Content struct {
	Text   string
	Author string
	URL    string
}

// Node is an opaque, possibly-invalidated handle into the host's stream.
type Node interface {
	// Alive reports whether the handle still points at a live node.
	Alive() bool
	// Content extracts the normalized content. ok is false when extraction
	// is impossible (node gone, or already hollowed out by the host).
	Content() (c Content, ok bool)

	// State returns the presentation state currently marked on the node, or
	// "" when unmarked.
	State() verdict.Verdict
	// SetState marks the node: pending/filter/unclassified render hidden,
	// nourish/show/distill render visible with their style.
	SetState(v verdict.Verdict)

	// ReplaceText swaps the displayed text for a rewrite.
	ReplaceText(text string)
	// Distilled reports whether the rewrite indicator is already present.
	Distilled() bool
	// MarkDistilled attaches the rewrite indicator.
	MarkDistilled()

	// ParentID identifies the node's presentation container, "" if unknown.
	ParentID() string
}

// ViewKind classifies the host's current view.
type ViewKind int

const (
	ViewOther ViewKind = iota
	ViewFeed
	ViewThread
)

// View describes what the user is currently looking at.
type View struct {
	Kind ViewKind
	// AnchorAuthor is the author the view is anchored to (thread view only).
	AnchorAuthor string
}

// Host is the full contract the pipeline requires from its rendering host.
type Host interface {
	// Added yields batches of newly-appeared nodes from the subtree-change
	// subscription.
	Added() <-chan []Node
	// Pause suspends structural-change observation. Calls nest; observation
	// resumes when Resume has been called as many times as Pause.
	Pause()
	Resume()

	// View reports the current view and its anchor identity.
	View() View
	// Visible reports whether the surface is foreground/visible. Quota
	// liveness ticks only count while visible.
	Visible() bool

	// SuppressedNodes lists nodes currently in a hidden presentation state,
	// used to re-resolve a stale handle by fingerprint.
	SuppressedNodes() []Node

	// MoveBefore reorders n immediately before ref within their shared
	// container.
	MoveBefore(n, ref Node)
	// ViewportOffset and SetViewportOffset capture/restore the reading
	// position anchor around a reorder.
	ViewportOffset(n Node) int
	SetViewportOffset(n Node, offset int)

	// Terminate forcibly closes this surface; called after the lockout
	// grace delay.
	Terminate()
}
