package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/feedsift/feedsift/internal/metrics"
)

// classifyItem is one request entry: POST /classify takes [{id, text}].
type classifyItem struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// classifyVerdict is one subprocess output entry.
type classifyVerdict struct {
	ID        string `json:"id"`
	Verdict   string `json:"verdict"`
	Reason    string `json:"reason,omitempty"`
	Distilled string `json:"distilled,omitempty"`
}

type classifyResponse struct {
	Verdicts []classifyVerdict `json:"verdicts"`
}

// limiterIdleTTL bounds the per-client limiter map: entries idle this long
// are dropped on the next lookup.
const limiterIdleTTL = 10 * time.Minute

type clientLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

// Handler serves the relay's HTTP surface.
type Handler struct {
	pool         *Pool
	maxBodyBytes int64
	log          zerolog.Logger

	limMu    sync.Mutex
	limiters map[string]*clientLimiter
	rps      rate.Limit
	burst    int
	now      func() time.Time

	healthy atomic.Int32
}

// NewHandler wires the handler around a subprocess pool.
func NewHandler(pool *Pool, maxBodyBytes int64, rps, burst int, log zerolog.Logger) *Handler {
	h := &Handler{
		pool:         pool,
		maxBodyBytes: maxBodyBytes,
		log:          log,
		limiters:     make(map[string]*clientLimiter),
		rps:          rate.Limit(rps),
		burst:        burst,
		now:          time.Now,
	}
	h.healthy.Store(0)
	return h
}

// StartHealthMonitor keeps the health flag in sync with pool warmth.
func (h *Handler) StartHealthMonitor(ctx context.Context, interval time.Duration) {
	probe := func() {
		if h.pool.WarmCount() >= 1 {
			h.healthy.Store(1)
		} else {
			h.healthy.Store(0)
		}
	}
	probe()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probe()
			}
		}
	}()
}

func (h *Handler) limiterFor(remoteAddr string) *rate.Limiter {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	now := h.now()
	h.limMu.Lock()
	defer h.limMu.Unlock()
	for k, c := range h.limiters {
		if now.Sub(c.seen) > limiterIdleTTL {
			delete(h.limiters, k)
		}
	}
	c, ok := h.limiters[host]
	if !ok {
		c = &clientLimiter{lim: rate.NewLimiter(h.rps, h.burst)}
		h.limiters[host] = c
	}
	c.seen = now
	return c.lim
}

// Classify handles POST /classify.
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	if !h.limiterFor(r.RemoteAddr).Allow() {
		metrics.RelayRequestsTotal.WithLabelValues("rate_limited").Inc()
		WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	var items []classifyItem
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			metrics.RelayRequestsTotal.WithLabelValues("oversize").Inc()
			WriteError(w, http.StatusRequestEntityTooLarge, "request body exceeds limit")
			return
		}
		metrics.RelayRequestsTotal.WithLabelValues("bad_request").Inc()
		WriteError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if len(items) == 0 {
		WriteJSON(w, http.StatusOK, classifyResponse{Verdicts: []classifyVerdict{}})
		return
	}

	payload, err := json.Marshal(items)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "request re-encode failed")
		return
	}

	proc, err := h.pool.Acquire()
	if err != nil {
		metrics.RelayRequestsTotal.WithLabelValues("pool_error").Inc()
		h.log.Error().Err(err).Msg("classifier acquire failed")
		WriteError(w, http.StatusBadGateway, "classifier unavailable")
		return
	}

	out, err := proc.Run(r.Context(), payload)
	if err != nil {
		metrics.RelayRequestsTotal.WithLabelValues("classifier_error").Inc()
		h.log.Error().Err(err).Msg("classifier run failed")
		WriteError(w, http.StatusBadGateway, "classifier failed")
		return
	}

	var verdicts []classifyVerdict
	if err := json.Unmarshal(out, &verdicts); err != nil {
		metrics.RelayRequestsTotal.WithLabelValues("classifier_error").Inc()
		h.log.Error().Err(err).Msg("classifier emitted malformed output")
		WriteError(w, http.StatusBadGateway, "classifier output malformed")
		return
	}

	metrics.RelayRequestsTotal.WithLabelValues("ok").Inc()
	WriteJSON(w, http.StatusOK, classifyResponse{Verdicts: verdicts})
}

// Health handles GET /health: 200 while the classifier pool is warm.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	if h.healthy.Load() == 1 {
		WriteJSON(w, http.StatusOK, map[string]any{
			"status":    "UP",
			"warm":      h.pool.WarmCount(),
			"timestamp": time.Now().Format(time.RFC3339),
		})
		return
	}
	WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
		"status":    "DOWN",
		"message":   "classifier pool is cold",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// NewRouter builds the relay's route table.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(Recover, RequestLog)
	r.HandleFunc("/classify", h.Classify).Methods("POST")
	r.HandleFunc("/health", h.Health).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	return r
}
