// Package pipeline assembles the moderation pipeline around one rendering
// host: store, cache, quota, history, oracle client, batch scheduler and
// detector, plus the background loops that keep them running.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/feedsift/feedsift/internal/batch"
	"github.com/feedsift/feedsift/internal/bus"
	"github.com/feedsift/feedsift/internal/cache"
	"github.com/feedsift/feedsift/internal/config"
	"github.com/feedsift/feedsift/internal/detector"
	"github.com/feedsift/feedsift/internal/history"
	"github.com/feedsift/feedsift/internal/oracle"
	"github.com/feedsift/feedsift/internal/present"
	"github.com/feedsift/feedsift/internal/quota"
	"github.com/feedsift/feedsift/internal/store"
	"github.com/feedsift/feedsift/internal/stream"
)

// Pipeline owns the per-surface moderation machinery.
type Pipeline struct {
	cfg  *config.Config
	host stream.Host
	log  zerolog.Logger

	kv      store.KV
	closer  interface{ Close() error }
	notices *bus.Bus
	cache   *cache.Cache
	quota   *quota.Tracker
	hist    *history.Logger
	sched   *batch.Scheduler
	det     *detector.Detector

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds the pipeline. An empty DBPath keeps all state in memory.
func New(cfg *config.Config, host stream.Host, log zerolog.Logger) (*Pipeline, error) {
	p := &Pipeline{cfg: cfg, host: host, log: log}

	if cfg.DBPath != "" {
		sq, err := store.OpenSQLite(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		p.kv = sq
		p.closer = sq
	} else {
		p.kv = store.NewMemory()
	}

	p.notices = bus.New(8)
	p.cache = cache.New(cfg.CacheMaxEntries, cfg.CacheTTL(), p.kv, log)

	p.quota = quota.New(cfg.QuotaLimitSeconds, cfg.QuotaTickSeconds, p.notices, p.kv, log)

	p.hist = history.New(cfg.HistorySize, p.kv, log)
	p.hist.SetEnabled(cfg.LoggingEnabled)

	// the daily reset sweeps expired verdicts and clears history stats together
	p.quota.OnRollover(p.cache.SweepExpired)
	p.quota.OnRollover(func(context.Context) { p.hist.Reset() })

	oc := oracle.New(oracle.Config{
		BaseURL:          cfg.RelayURL(),
		MaxRetryAttempts: cfg.MaxRetryAttempts,
		RetryDelay:       cfg.RetryDelay(),
		Timeout:          cfg.OracleTimeout(),
	}, p.cache, log)

	policy := present.Policy{ThreadAuthorOverride: cfg.ThreadAuthorOverride}
	p.sched = batch.New(batch.Config{
		Size:           cfg.BatchSize,
		Timeout:        cfg.BatchTimeout(),
		ReorderEnabled: cfg.ReorderEnabled,
		Policy:         policy,
	}, oc, host, p.hist, log)

	p.det = detector.New(p.cache, p.sched, host, policy, p.hist, log)
	return p, nil
}

// Start launches the background loops. They run until ctx is cancelled or
// Stop is called.
func (p *Pipeline) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	// activation sweep so the first cache lookups never hit expired entries
	p.cache.SweepExpired(ctx)

	p.spawn(func() { p.cache.StartFlusher(ctx, p.cfg.CacheFlushInterval()) })
	p.spawn(func() { p.hist.StartFlusher(ctx, p.cfg.CacheFlushInterval()) })
	p.spawn(func() { p.quota.StartMidnightAlarm(ctx) })
	p.spawn(func() { p.addedLoop(ctx) })
	p.spawn(func() { p.livenessLoop(ctx) })
	p.spawn(func() { p.lockoutLoop(ctx) })

	p.log.Info().Msg("pipeline started")
}

func (p *Pipeline) spawn(fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		fn()
	}()
}

// addedLoop feeds structural add events from the host into the detector.
func (p *Pipeline) addedLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case nodes, ok := <-p.host.Added():
			if !ok {
				return
			}
			p.det.OnAdded(nodes)
		}
	}
}

// livenessLoop counts foreground time against the daily quota.
func (p *Pipeline) livenessLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(p.cfg.QuotaTickSeconds) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.host.Visible() {
				p.quota.Tick()
			}
		}
	}
}

// lockoutLoop terminates the surface a grace interval after a lockout notice,
// giving the host time to show the notice first.
func (p *Pipeline) lockoutLoop(ctx context.Context) {
	notices, cancel := p.notices.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-notices:
			if n.Kind != bus.Lockout {
				continue
			}
			timer := time.NewTimer(p.cfg.LockoutGrace())
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				p.host.Terminate()
			}
		}
	}
}

// DiscardView drops all in-flight classification work on a view navigation.
func (p *Pipeline) DiscardView() {
	p.det.DiscardView()
}

// Flush forces any queued batch through classification synchronously.
func (p *Pipeline) Flush(ctx context.Context) {
	p.sched.Flush(ctx)
}

// Quota exposes the tracker for host-facing surfaces (countdown display).
func (p *Pipeline) Quota() *quota.Tracker { return p.quota }

// History exposes the classification log.
func (p *Pipeline) History() *history.Logger { return p.hist }

// Cache exposes the verdict cache.
func (p *Pipeline) Cache() *cache.Cache { return p.cache }

// Notices exposes the notice bus for host-facing surfaces.
func (p *Pipeline) Notices() *bus.Bus { return p.notices }

// Stop cancels the background loops, flushes durable state and closes the
// store. The pipeline cannot be restarted.
func (p *Pipeline) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	p.sched.Discard()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p.cache.Flush(ctx)
	p.hist.Flush(ctx)

	if p.closer != nil {
		if err := p.closer.Close(); err != nil {
			p.log.Error().Err(err).Msg("store close failed")
		}
	}
	p.log.Info().Msg("pipeline stopped")
}
