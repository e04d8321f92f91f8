// Package quota tracks daily usage against a fixed time budget and raises the
// lockout broadcast once the budget is exhausted. All read-modify-write access
// to the state goes through one mutex: concurrent liveness ticks from multiple
// observers of the same state must never double-count or miss the threshold.
package quota

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/feedsift/feedsift/internal/bus"
	"github.com/feedsift/feedsift/internal/metrics"
	"github.com/feedsift/feedsift/internal/store"
)

// StoreKey is the KV key the tracker persists its state under.
const StoreKey = "quota/state"

// State is the persisted daily quota record.
type State struct {
	Date         string `json:"date"` // local calendar day, 2006-01-02
	UsedSeconds  int    `json:"usedSeconds"`
	LimitSeconds int    `json:"limitSeconds"`
	Locked       bool   `json:"locked"`
}

// TickResult is returned to the liveness driver after each tick.
type TickResult struct {
	RemainingSeconds int  `json:"remainingSeconds"`
	Locked           bool `json:"locked"`
}

// Tracker is the quota state machine. Construct once at process start.
type Tracker struct {
	mu          sync.Mutex
	st          State
	tickSeconds int
	notices     *bus.Bus
	kv          store.KV
	onRollover  []func(ctx context.Context)
	log         zerolog.Logger
	now         func() time.Time
}

// New restores persisted state (if any) and returns a ready tracker.
// notices and kv may be nil.
func New(limitSeconds, tickSeconds int, notices *bus.Bus, kv store.KV, log zerolog.Logger) *Tracker {
	t := &Tracker{
		st:          State{LimitSeconds: limitSeconds},
		tickSeconds: tickSeconds,
		notices:     notices,
		kv:          kv,
		log:         log,
		now:         time.Now,
	}
	t.load()
	if t.st.Date == "" {
		t.st.Date = t.now().Format("2006-01-02")
	}
	// configured limit wins over a persisted one
	t.st.LimitSeconds = limitSeconds
	return t
}

func (t *Tracker) load() {
	if t.kv == nil {
		return
	}
	raw, ok, err := t.kv.Get(context.Background(), StoreKey)
	if err != nil || !ok {
		if err != nil {
			t.log.Error().Err(err).Msg("quota restore failed")
		}
		return
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		t.log.Error().Err(err).Msg("quota restore: malformed state, starting fresh")
		return
	}
	t.st = st
}

func (t *Tracker) persistLocked() {
	if t.kv == nil {
		return
	}
	raw, err := json.Marshal(t.st)
	if err != nil {
		return
	}
	if err := t.kv.Set(context.Background(), StoreKey, raw); err != nil {
		t.log.Error().Err(err).Msg("quota persist failed")
	}
}

// OnRollover registers a callback fired as part of the daily reset, under the
// tracker's serialization so the reset is atomic from the caller's view.
func (t *Tracker) OnRollover(fn func(ctx context.Context)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onRollover = append(t.onRollover, fn)
}

// rollOverLocked resets counters when the calendar day changed.
// Returns true when a rollover happened.
func (t *Tracker) rollOverLocked(today string) bool {
	if t.st.Date == today {
		return false
	}
	t.st.Date = today
	t.st.UsedSeconds = 0
	t.st.Locked = false
	return true
}

// Tick records one liveness interval of usage. Called by the host on its
// fixed cadence only while the surface is foreground/visible.
func (t *Tracker) Tick() TickResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollOverLocked(t.now().Format("2006-01-02"))

	if t.st.Locked {
		return TickResult{RemainingSeconds: 0, Locked: true}
	}

	t.st.UsedSeconds += t.tickSeconds
	if t.st.UsedSeconds >= t.st.LimitSeconds {
		// locked is monotonic within a day; only rollover clears it
		t.st.Locked = true
		metrics.QuotaLockoutsTotal.Inc()
		t.log.Info().Int("used_s", t.st.UsedSeconds).Int("limit_s", t.st.LimitSeconds).Msg("daily quota exhausted, locking out")
		if t.notices != nil {
			t.notices.Publish(bus.Notice{Kind: bus.Lockout, Detail: "daily time budget exhausted"})
		}
	}
	t.persistLocked()

	remaining := t.st.LimitSeconds - t.st.UsedSeconds
	if remaining < 0 {
		remaining = 0
	}
	return TickResult{RemainingSeconds: remaining, Locked: t.st.Locked}
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.st
}

// Rollover performs the daily reset regardless of whether a tick has observed
// the date change yet. Registered callbacks (cache sweep, stat resets) run
// under the same serialization point.
func (t *Tracker) Rollover(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollOverLocked(t.now().Format("2006-01-02"))
	// even when the date string is unchanged (alarm fired exactly at
	// midnight boundary already observed by a tick) the reset still applies
	t.st.UsedSeconds = 0
	t.st.Locked = false
	t.persistLocked()

	for _, fn := range t.onRollover {
		fn(ctx)
	}
	t.log.Info().Str("date", t.st.Date).Msg("daily quota rollover")
}

// StartMidnightAlarm triggers Rollover once per local midnight until ctx ends.
func (t *Tracker) StartMidnightAlarm(ctx context.Context) {
	for {
		now := t.now()
		next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).Add(24 * time.Hour)
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			t.Rollover(ctx)
		}
	}
}
