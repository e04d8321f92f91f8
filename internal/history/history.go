// Package history keeps a best-effort record of classification events: a
// capped in-memory ring for debugging, and optional durable persistence.
// Recording never blocks the classify-to-present path.
package history

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/feedsift/feedsift/internal/store"
	"github.com/feedsift/feedsift/internal/verdict"
)

// StoreKey is the KV key persisted entries are appended under.
const StoreKey = "history/log"

// Entry is one classification event.
type Entry struct {
	Timestamp     time.Time       `json:"timestamp"`
	Fingerprint   string          `json:"fingerprint"`
	Text          string          `json:"text"`
	URL           string          `json:"url,omitempty"`
	Verdict       verdict.Verdict `json:"verdict"`
	Reason        string          `json:"reason,omitempty"`
	RewrittenText string          `json:"rewrittenText,omitempty"`
	FromCache     bool            `json:"fromCache"`
}

// Logger buffers entries and flushes them on a fixed cadence when enabled.
type Logger struct {
	mu       sync.Mutex
	ring     []Entry // capped debug ring, newest last
	ringCap  int
	pending  []Entry // awaiting durable flush
	enabled  bool
	maxBatch int

	kv  store.KV
	log zerolog.Logger
}

// New returns a logger with the given debug-ring capacity. kv may be nil;
// persistence is then a no-op even when enabled.
func New(ringCap int, kv store.KV, log zerolog.Logger) *Logger {
	if ringCap <= 0 {
		ringCap = 200
	}
	return &Logger{ringCap: ringCap, maxBatch: 1000, kv: kv, log: log}
}

// SetEnabled toggles durable persistence. Disabling discards anything queued
// for persistence rather than growing it unbounded; the debug ring is kept.
func (l *Logger) SetEnabled(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = on
	if !on {
		l.pending = nil
	}
}

// Enabled reports whether durable persistence is on.
func (l *Logger) Enabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// Record buffers one event. It never blocks and never errors.
func (l *Logger) Record(e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.ring = append(l.ring, e)
	if len(l.ring) > l.ringCap {
		l.ring = l.ring[len(l.ring)-l.ringCap:]
	}
	if l.enabled {
		l.pending = append(l.pending, e)
		if len(l.pending) > l.maxBatch {
			// drop oldest rather than grow without bound
			l.pending = l.pending[len(l.pending)-l.maxBatch:]
		}
	}
}

// Recent returns up to n newest entries, newest first.
func (l *Logger) Recent(n int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > len(l.ring) {
		n = len(l.ring)
	}
	out := make([]Entry, 0, n)
	for i := len(l.ring) - 1; i >= len(l.ring)-n; i-- {
		out = append(out, l.ring[i])
	}
	return out
}

// Reset clears the ring and any pending entries (daily stat reset).
func (l *Logger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ring = nil
	l.pending = nil
}

// Flush appends pending entries to the durable log. Best-effort: on store
// failure the batch is requeued for the next cadence.
func (l *Logger) Flush(ctx context.Context) {
	l.mu.Lock()
	if !l.enabled || l.kv == nil || len(l.pending) == 0 {
		l.mu.Unlock()
		return
	}
	batch := l.pending
	l.pending = nil
	l.mu.Unlock()

	raw, _, err := l.kv.Get(ctx, StoreKey)
	if err != nil {
		l.requeue(batch)
		l.log.Error().Err(err).Msg("history flush: read failed")
		return
	}
	var persisted []Entry
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &persisted); err != nil {
			// corrupted log: start over rather than losing new entries
			persisted = nil
		}
	}
	persisted = append(persisted, batch...)
	out, err := json.Marshal(persisted)
	if err != nil {
		l.log.Error().Err(err).Msg("history flush: marshal failed")
		return
	}
	if err := l.kv.Set(ctx, StoreKey, out); err != nil {
		l.requeue(batch)
		l.log.Error().Err(err).Msg("history flush: write failed")
	}
}

func (l *Logger) requeue(batch []Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabled {
		return
	}
	l.pending = append(batch, l.pending...)
}

// StartFlusher flushes on a fixed cadence until ctx is cancelled, with a
// final flush on shutdown.
func (l *Logger) StartFlusher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			l.Flush(context.Background())
			return
		case <-ticker.C:
			l.Flush(ctx)
		}
	}
}
