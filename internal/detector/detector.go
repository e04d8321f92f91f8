// Package detector watches the mutating item stream, extracts normalized
// content for each newly-appeared node, and routes it to a cache
// short-circuit or the batch scheduler. Nothing it touches ever becomes
// visible before a verdict: the pending mark goes on before anything else.
package detector

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/feedsift/feedsift/internal/batch"
	"github.com/feedsift/feedsift/internal/cache"
	"github.com/feedsift/feedsift/internal/fingerprint"
	"github.com/feedsift/feedsift/internal/history"
	"github.com/feedsift/feedsift/internal/present"
	"github.com/feedsift/feedsift/internal/stream"
	"github.com/feedsift/feedsift/internal/verdict"
)

// Detector processes structural add events from the host.
type Detector struct {
	cache  *cache.Cache
	sched  *batch.Scheduler
	host   stream.Host
	policy present.Policy
	hist   *history.Logger
	log    zerolog.Logger
	now    func() time.Time
}

// New wires a detector. hist may be nil.
func New(vc *cache.Cache, sched *batch.Scheduler, host stream.Host, policy present.Policy, hist *history.Logger, log zerolog.Logger) *Detector {
	return &Detector{
		cache:  vc,
		sched:  sched,
		host:   host,
		policy: policy,
		hist:   hist,
		log:    log,
		now:    time.Now,
	}
}

// OnAdded handles one batch of newly-observed nodes.
func (d *Detector) OnAdded(nodes []stream.Node) {
	for _, n := range nodes {
		d.process(n)
	}
}

func (d *Detector) process(n stream.Node) {
	// idempotency guard: duplicate observation events for a node that is
	// already in-flight or terminal are dropped
	if n.State() != "" {
		return
	}

	// extract before suppressing; some hide mechanisms hollow out the text
	c, ok := n.Content()

	// fail-closed default at the UI boundary, independent of the oracle's
	// own fail-closed contract
	n.SetState(verdict.Pending)

	if !ok || c.Text == "" {
		d.log.Debug().Msg("node yielded no content, left suppressed")
		return
	}

	fp := fingerprint.Hash(c.Text)
	if rec, hit := d.cache.Get(fp); hit {
		applied := present.Apply(n, rec, c.Author, d.host.View(), d.policy)
		if d.hist != nil {
			d.hist.Record(history.Entry{
				Timestamp:     d.now(),
				Fingerprint:   fp,
				Text:          c.Text,
				URL:           c.URL,
				Verdict:       applied,
				Reason:        rec.Reason,
				RewrittenText: rec.RewrittenText,
				FromCache:     true,
			})
		}
		return
	}

	d.sched.Enqueue(batch.Item{
		TrackingID:  d.mintTrackingID(fp),
		Text:        c.Text,
		URL:         c.URL,
		Author:      c.Author,
		Fingerprint: fp,
		Node:        n,
	})
}

// mintTrackingID returns a process-unique id. The random suffix keeps two
// observations of identical content from aliasing each other across
// reprocessing.
func (d *Detector) mintTrackingID(fp string) string {
	return fmt.Sprintf("%s-%d-%s", fp, d.now().UnixMilli(), uuid.NewString()[:8])
}

// DiscardView drops all in-flight work on a view navigation. Presentation
// markers are stripped by the host, so recycled containers reprocess cleanly.
func (d *Detector) DiscardView() {
	d.sched.Discard()
}
