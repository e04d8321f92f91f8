// Package batch accumulates detected items up to a size or time bound,
// flushes them to the classification oracle, and reconciles the verdicts
// back onto live node handles.
package batch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/feedsift/feedsift/internal/fingerprint"
	"github.com/feedsift/feedsift/internal/history"
	"github.com/feedsift/feedsift/internal/metrics"
	"github.com/feedsift/feedsift/internal/oracle"
	"github.com/feedsift/feedsift/internal/present"
	"github.com/feedsift/feedsift/internal/reorder"
	"github.com/feedsift/feedsift/internal/stream"
	"github.com/feedsift/feedsift/internal/verdict"
)

// Item is one tracked unit awaiting classification.
type Item struct {
	TrackingID  string
	Text        string
	URL         string
	Author      string
	Fingerprint string
	Node        stream.Node
}

// Classifier is the oracle boundary the scheduler flushes to.
type Classifier interface {
	Classify(ctx context.Context, in []oracle.Input) []verdict.Record
}

// Config bounds batch assembly.
type Config struct {
	Size           int           // flush when the queue reaches this many items
	Timeout        time.Duration // flush whatever is queued when this elapses
	ReorderEnabled bool
	Policy         present.Policy
}

// Scheduler maintains a single pending queue and one timer. The first enqueue
// arms the timer; reaching Size flushes immediately and cancels it; the timer
// firing flushes whatever is queued, even a single item.
type Scheduler struct {
	mu    sync.Mutex
	queue []Item
	timer *time.Timer

	cfg        Config
	classifier Classifier
	host       stream.Host
	hist       *history.Logger
	log        zerolog.Logger

	flushWG sync.WaitGroup
}

// New constructs a scheduler. hist may be nil.
func New(cfg Config, classifier Classifier, host stream.Host, hist *history.Logger, log zerolog.Logger) *Scheduler {
	if cfg.Size <= 0 {
		cfg.Size = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	return &Scheduler{cfg: cfg, classifier: classifier, host: host, hist: hist, log: log}
}

// Enqueue adds one item. Flushes asynchronously when the size bound is hit.
func (s *Scheduler) Enqueue(it Item) {
	s.mu.Lock()
	s.queue = append(s.queue, it)

	if len(s.queue) >= s.cfg.Size {
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
		batch := s.queue
		s.queue = nil
		s.flushWG.Add(1)
		s.mu.Unlock()

		go func() {
			defer s.flushWG.Done()
			s.resolve(context.Background(), batch, "size")
		}()
		return
	}

	if len(s.queue) == 1 {
		s.timer = time.AfterFunc(s.cfg.Timeout, s.onTimer)
	}
	s.mu.Unlock()
}

func (s *Scheduler) onTimer() {
	s.mu.Lock()
	s.timer = nil
	batch := s.queue
	s.queue = nil
	if len(batch) > 0 {
		// register under the lock so a concurrent Flush cannot observe an
		// empty queue and return before this flush lands
		s.flushWG.Add(1)
	}
	s.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	defer s.flushWG.Done()
	s.resolve(context.Background(), batch, "timeout")
}

// Flush synchronously classifies whatever is queued. Used at teardown and in
// tests.
func (s *Scheduler) Flush(ctx context.Context) {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	batch := s.queue
	s.queue = nil
	s.mu.Unlock()

	if len(batch) > 0 {
		s.resolve(ctx, batch, "manual")
	}
	s.flushWG.Wait()
}

// Discard drops the pending queue and timer without classifying. Called on
// view navigation so no partial batch is ever sent for a superseded view.
func (s *Scheduler) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	dropped := len(s.queue)
	s.queue = nil
	if dropped > 0 {
		s.log.Debug().Int("dropped", dropped).Msg("pending batch discarded on navigation")
	}
}

// Pending returns the current queue length.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// resolve runs one batch through the oracle and reconciles the results.
func (s *Scheduler) resolve(ctx context.Context, batch []Item, trigger string) {
	metrics.BatchesFlushedTotal.WithLabelValues(trigger).Inc()

	in := make([]oracle.Input, len(batch))
	for i, it := range batch {
		in[i] = oracle.Input{Fingerprint: it.Fingerprint, Text: it.Text}
	}
	recs := s.classifier.Classify(ctx, in)
	if len(recs) != len(batch) {
		// classifier contract violation; keep everything suppressed
		s.log.Error().Int("in", len(batch)).Int("out", len(recs)).Msg("classifier returned wrong arity, leaving batch pending")
		return
	}

	view := s.host.View()
	pairs := make([]reorder.Pair, 0, len(batch))
	for i, rec := range recs {
		it := batch[i]
		if rec.Verdict == verdict.Pending {
			// no verdict for this position: stays in the fail-closed
			// default state; the cache holds nothing for it either
			continue
		}

		n := s.resolveNode(it)
		if n == nil {
			// handle gone and no fingerprint match among suppressed nodes;
			// the verdict is already cached for the next appearance
			s.log.Debug().Str("fp", it.Fingerprint).Msg("no handle for verdict, cached only")
			continue
		}

		applied := present.Apply(n, rec, it.Author, view, s.cfg.Policy)
		pairs = append(pairs, reorder.Pair{Node: n, Verdict: applied})

		if s.hist != nil {
			s.hist.Record(history.Entry{
				Timestamp:     rec.Timestamp,
				Fingerprint:   it.Fingerprint,
				Text:          it.Text,
				URL:           it.URL,
				Verdict:       applied,
				Reason:        rec.Reason,
				RewrittenText: rec.RewrittenText,
				FromCache:     false,
			})
		}
	}

	reorder.Apply(s.host, pairs, s.cfg.ReorderEnabled, s.log)
}

// resolveNode returns a live node for the item, re-deriving identity by
// fingerprint among currently-suppressed nodes when the original handle has
// been recycled by the host. Returns nil when nothing matches.
func (s *Scheduler) resolveNode(it Item) stream.Node {
	if n := it.Node; n != nil && n.Alive() {
		return n
	}
	for _, n := range s.host.SuppressedNodes() {
		c, ok := n.Content()
		if !ok {
			continue
		}
		if fingerprint.Hash(c.Text) == it.Fingerprint {
			return n
		}
	}
	return nil
}
