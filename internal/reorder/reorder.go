// Package reorder re-sequences a flushed batch's presentation order by
// verdict priority while preserving the user's reading position.
package reorder

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/feedsift/feedsift/internal/stream"
	"github.com/feedsift/feedsift/internal/verdict"
)

// Pair is one resolved item of a flushed batch, in document order.
type Pair struct {
	Node    stream.Node
	Verdict verdict.Verdict
}

// Apply stable-sorts pairs by verdict priority (then original position) and
// moves the host's containers into that order. Returns true when any
// structural mutation happened.
//
// It bails out entirely when reordering is disabled, the view is not the
// primary feed, fewer than two eligible items are present, or the candidates
// do not share a single parent container.
func Apply(host stream.Host, pairs []Pair, enabled bool, log zerolog.Logger) bool {
	if !enabled {
		return false
	}
	if host.View().Kind != stream.ViewFeed {
		return false
	}

	eligible := make([]Pair, 0, len(pairs))
	for _, p := range pairs {
		if p.Node != nil && p.Node.Alive() {
			eligible = append(eligible, p)
		}
	}
	if len(eligible) < 2 {
		return false
	}

	parent := eligible[0].Node.ParentID()
	for _, p := range eligible[1:] {
		if p.Node.ParentID() != parent || parent == "" {
			log.Debug().Msg("reorder skipped: candidates span containers")
			return false
		}
	}

	desired := make([]Pair, len(eligible))
	copy(desired, eligible)
	sort.SliceStable(desired, func(i, j int) bool {
		return verdict.Priority(desired[i].Verdict) < verdict.Priority(desired[j].Verdict)
	})

	same := true
	for i := range desired {
		if desired[i].Node != eligible[i].Node {
			same = false
			break
		}
	}
	if same {
		// already in priority order: not a single mutation
		return false
	}

	// pause observation so our own moves do not echo back as change events
	host.Pause()
	defer host.Resume()

	anchor := eligible[0].Node
	offset := host.ViewportOffset(anchor)

	// repeated insert-before, back to front, settles the final order
	for i := len(desired) - 2; i >= 0; i-- {
		host.MoveBefore(desired[i].Node, desired[i+1].Node)
	}

	host.SetViewportOffset(anchor, offset)
	return true
}
