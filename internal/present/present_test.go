package present

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/feedsift/feedsift/internal/stream"
	"github.com/feedsift/feedsift/internal/verdict"
)

func TestThreadAuthorOverride(t *testing.T) {
	threadView := stream.View{Kind: stream.ViewThread, AnchorAuthor: "alice"}
	pol := DefaultPolicy()

	// anchored author's filtered item is upgraded
	require.Equal(t, verdict.Show, Resolve(verdict.Filter, "alice", threadView, pol))
	// another author's filtered item is not
	require.Equal(t, verdict.Filter, Resolve(verdict.Filter, "bob", threadView, pol))
	// never applies outside thread view
	feedView := stream.View{Kind: stream.ViewFeed}
	require.Equal(t, verdict.Filter, Resolve(verdict.Filter, "alice", feedView, pol))
	// never downgrades nourish or distill
	require.Equal(t, verdict.Nourish, Resolve(verdict.Nourish, "alice", threadView, pol))
	require.Equal(t, verdict.Distill, Resolve(verdict.Distill, "alice", threadView, pol))
}

func TestOverrideIsPolicyControlled(t *testing.T) {
	threadView := stream.View{Kind: stream.ViewThread, AnchorAuthor: "alice"}
	off := Policy{ThreadAuthorOverride: false}
	require.Equal(t, verdict.Filter, Resolve(verdict.Filter, "alice", threadView, off))
}

func TestDistillAppliedTwiceSingleIndicator(t *testing.T) {
	n := stream.NewFakeNode("n1", "hot take!!!", "carol", "feed")
	rec := verdict.Record{Verdict: verdict.Distill, RewrittenText: "X"}
	view := stream.View{Kind: stream.ViewFeed}

	Apply(n, rec, "carol", view, DefaultPolicy())
	Apply(n, rec, "carol", view, DefaultPolicy())

	require.Equal(t, "X", n.ShownText())
	require.True(t, n.Distilled())
	require.Equal(t, verdict.Distill, n.State())
}

func TestDistillWithoutRewriteDegradesGracefully(t *testing.T) {
	n := stream.NewFakeNode("n1", "original", "carol", "feed")
	Apply(n, verdict.Record{Verdict: verdict.Distill}, "carol", stream.View{Kind: stream.ViewFeed}, DefaultPolicy())

	require.Equal(t, "original", n.ShownText(), "missing rewrite must keep the original text")
	require.True(t, n.Distilled())
	require.Equal(t, verdict.Distill, n.State())
}

func TestHiddenStates(t *testing.T) {
	view := stream.View{Kind: stream.ViewFeed}
	for _, v := range []verdict.Verdict{verdict.Filter, verdict.Pending, verdict.Unclassified} {
		n := stream.NewFakeNode("n", "text", "a", "feed")
		got := Apply(n, verdict.Record{Verdict: v}, "a", view, DefaultPolicy())
		require.False(t, got.Visible(), "%s must stay hidden", v)
		require.Equal(t, v, n.State())
	}
}
