// Package oracle is the client side of the classification boundary. Its one
// inviolable contract: no failure mode may ever yield a visible verdict by
// omission. Failures come back as explicit fail-closed filter records.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/feedsift/feedsift/internal/cache"
	"github.com/feedsift/feedsift/internal/metrics"
	"github.com/feedsift/feedsift/internal/verdict"
)

// Input is one item position in a batch. The fingerprint is the cache key;
// it never travels to the oracle.
type Input struct {
	Fingerprint string
	Text        string
}

// Config tunes the transport.
type Config struct {
	BaseURL          string
	MaxRetryAttempts int           // retries after the first attempt
	RetryDelay       time.Duration // fixed backoff between attempts
	Timeout          time.Duration // overall ceiling for one Classify call
}

// Client batches requests to the external classifier.
type Client struct {
	http  *resty.Client
	cache *cache.Cache
	cfg   Config
	log   zerolog.Logger
	now   func() time.Time
}

// New builds a client. cache may be nil (results are then not memoized).
func New(cfg Config, vc *cache.Cache, log zerolog.Logger) *Client {
	if cfg.MaxRetryAttempts < 0 {
		cfg.MaxRetryAttempts = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	c := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Content-Type", "application/json")
	return &Client{http: c, cache: vc, cfg: cfg, log: log, now: time.Now}
}

// wire format for POST /classify
type wireItem struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type wireVerdict struct {
	ID        string `json:"id"`
	Verdict   string `json:"verdict"`
	Reason    string `json:"reason,omitempty"`
	Distilled string `json:"distilled,omitempty"`
}

type wireResponse struct {
	Verdicts []wireVerdict `json:"verdicts"`
}

// Classify sends one batch and returns a record per input position, in input
// order. It never returns an error: batch-level failures produce filter
// records for every position, and positions the oracle did not answer stay
// pending so the caller's fail-closed default holds.
func (c *Client) Classify(ctx context.Context, in []Input) []verdict.Record {
	if len(in) == 0 {
		return nil
	}

	// Positional ids are synthetic and independent of anything externally
	// visible, so a spoofed or colliding identifier in the oracle's own
	// output cannot redirect a verdict to the wrong item.
	req := make([]wireItem, len(in))
	for i, item := range in {
		req[i] = wireItem{ID: fmt.Sprintf("p%d", i), Text: item.Text}
	}

	cctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var wr wireResponse
	attempt := func() error {
		resp, err := c.http.R().SetContext(cctx).SetBody(req).Post("/classify")
		if err != nil {
			return fmt.Errorf("transport: %w", err)
		}
		if !resp.IsSuccess() {
			return fmt.Errorf("protocol: status %d", resp.StatusCode())
		}
		var decoded wireResponse
		if err := json.Unmarshal(resp.Body(), &decoded); err != nil {
			return fmt.Errorf("decode: %w", err)
		}
		if decoded.Verdicts == nil {
			return fmt.Errorf("decode: missing verdicts array")
		}
		wr = decoded
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.cfg.RetryDelay), uint64(c.cfg.MaxRetryAttempts)),
		cctx,
	)
	if err := backoff.Retry(attempt, policy); err != nil {
		metrics.OracleFailuresTotal.Inc()
		c.log.Error().Err(err).Int("batch", len(in)).Msg("oracle call failed, failing closed")
		return c.failClosed(in, err)
	}

	// Index by position id; duplicate entries for the same id: last one wins.
	byID := make(map[string]wireVerdict, len(wr.Verdicts))
	for _, v := range wr.Verdicts {
		byID[v.ID] = v
	}

	out := make([]verdict.Record, len(in))
	ts := c.now()
	for i, item := range in {
		wv, ok := byID[fmt.Sprintf("p%d", i)]
		if !ok {
			// leaf-level fail-closed: the caller leaves this position in
			// its default suppressed state
			out[i] = verdict.Record{Verdict: verdict.Pending, Reason: "no verdict returned", Timestamp: ts}
			continue
		}
		rec := verdict.Record{
			Verdict:       verdict.Normalize(wv.Verdict),
			Reason:        wv.Reason,
			RewrittenText: wv.Distilled,
			Timestamp:     ts,
		}
		out[i] = rec
		// cache before returning so the verdict survives even if the source
		// item has vanished by the time the caller reconciles
		if c.cache != nil {
			c.cache.Put(item.Fingerprint, rec)
		}
	}
	return out
}

// failClosed builds the batch-level failure result: every position filtered.
// Transient-failure records are deliberately not cached, so the next batch
// containing the same content gets a fresh chance at a real verdict.
func (c *Client) failClosed(in []Input, cause error) []verdict.Record {
	ts := c.now()
	out := make([]verdict.Record, len(in))
	for i := range in {
		out[i] = verdict.Record{
			Verdict:   verdict.Filter,
			Reason:    fmt.Sprintf("classification unavailable: %v", cause),
			Timestamp: ts,
		}
	}
	return out
}

// Health probes the relay's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/health")
	if err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("relay status %d", resp.StatusCode())
	}
	return nil
}
