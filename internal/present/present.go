// Package present turns verdict records into presentation state transitions.
// Transitions are idempotent per node, so batches resolving out of order can
// never corrupt what the user sees.
package present

import (
	"github.com/feedsift/feedsift/internal/metrics"
	"github.com/feedsift/feedsift/internal/stream"
	"github.com/feedsift/feedsift/internal/verdict"
)

// Policy holds the presentation decisions that are configuration rather than
// hard-coded behavior.
type Policy struct {
	// ThreadAuthorOverride upgrades a filter verdict to show when the item's
	// author matches the thread view's anchor author, so a first-person
	// narrative is not riddled with gaps. It never touches nourish or
	// distill, and never applies outside thread view.
	ThreadAuthorOverride bool
}

// DefaultPolicy matches shipped behavior.
func DefaultPolicy() Policy {
	return Policy{ThreadAuthorOverride: true}
}

// Resolve computes the effective verdict for an item with the given author
// under the current view.
func Resolve(v verdict.Verdict, author string, view stream.View, pol Policy) verdict.Verdict {
	if pol.ThreadAuthorOverride &&
		v == verdict.Filter &&
		view.Kind == stream.ViewThread &&
		author != "" && author == view.AnchorAuthor {
		return verdict.Show
	}
	return v
}

// Apply resolves rec against the view and marks the node. Returns the state
// actually applied. Reapplying the same record is a no-op in effect: the
// distill indicator is attached at most once.
func Apply(n stream.Node, rec verdict.Record, author string, view stream.View, pol Policy) verdict.Verdict {
	v := Resolve(rec.Verdict, author, view, pol)

	if v == verdict.Distill {
		// A distill without rewrite text degrades to showing the original
		// text with the distilled indicator; it must never crash.
		if rec.RewrittenText != "" {
			n.ReplaceText(rec.RewrittenText)
		}
		if !n.Distilled() {
			n.MarkDistilled()
		}
	}

	n.SetState(v)
	metrics.ItemsClassifiedTotal.WithLabelValues(string(v)).Inc()
	return v
}
