package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// echoScript consumes stdin and emits a fixed verdict array, standing in for
// a real classifier subprocess.
const echoScript = `cat >/dev/null; echo '[{"id":"p0","verdict":"show"},{"id":"p1","verdict":"filter","reason":"manipulative"}]'`

func newTestServer(t *testing.T, pool *Pool, maxBody int64) *httptest.Server {
	t.Helper()
	h := NewHandler(pool, maxBody, 1000, 1000, zerolog.Nop())
	h.StartHealthMonitor(context.Background(), time.Hour)
	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	return srv
}

func TestClassifyEndToEnd(t *testing.T) {
	pool := NewPool("sh", []string{"-c", echoScript}, 2, zerolog.Nop())
	defer pool.Close()
	srv := newTestServer(t, pool, 1<<20)

	body := `[{"id":"p0","text":"first"},{"id":"p1","text":"second"}]`
	resp, err := http.Post(srv.URL+"/classify", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Verdicts []struct {
			ID      string `json:"id"`
			Verdict string `json:"verdict"`
			Reason  string `json:"reason"`
		} `json:"verdicts"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Verdicts, 2)
	require.Equal(t, "show", out.Verdicts[0].Verdict)
	require.Equal(t, "manipulative", out.Verdicts[1].Reason)
}

func TestOversizeBodyRejected(t *testing.T) {
	pool := NewPool("cat", nil, 1, zerolog.Nop())
	defer pool.Close()
	srv := newTestServer(t, pool, 128)

	big := bytes.Repeat([]byte("x"), 4096)
	payload, _ := json.Marshal([]map[string]string{{"id": "p0", "text": string(big)}})
	resp, err := http.Post(srv.URL+"/classify", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestMalformedBodyRejected(t *testing.T) {
	pool := NewPool("cat", nil, 1, zerolog.Nop())
	defer pool.Close()
	srv := newTestServer(t, pool, 1<<20)

	resp, err := http.Post(srv.URL+"/classify", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEmptyBatchOK(t *testing.T) {
	pool := NewPool("cat", nil, 1, zerolog.Nop())
	defer pool.Close()
	srv := newTestServer(t, pool, 1<<20)

	resp, err := http.Post(srv.URL+"/classify", "application/json", strings.NewReader("[]"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthReflectsPoolWarmth(t *testing.T) {
	pool := NewPool("sh", []string{"-c", echoScript}, 2, zerolog.Nop())
	defer pool.Close()
	srv := newTestServer(t, pool, 1<<20)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthDownWhenPoolCold(t *testing.T) {
	pool := NewPool("feedsift-no-such-binary", nil, 2, zerolog.Nop())
	defer pool.Close()
	srv := newTestServer(t, pool, 1<<20)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	pool := NewPool("sh", []string{"-c", echoScript}, 2, zerolog.Nop())
	defer pool.Close()
	h := NewHandler(pool, 1<<20, 1, 1, zerolog.Nop())
	h.StartHealthMonitor(context.Background(), time.Hour)
	srv := httptest.NewServer(NewRouter(h))
	defer srv.Close()

	// burst of 1: first request passes, immediate second is limited
	r1 := httptest.NewRequest(http.MethodPost, "/classify", strings.NewReader(`[{"id":"p0","text":"a"}]`))
	r1.RemoteAddr = "10.0.0.1:1234"
	w1 := httptest.NewRecorder()
	NewRouter(h).ServeHTTP(w1, r1)
	require.Equal(t, http.StatusOK, w1.Code)

	r2 := httptest.NewRequest(http.MethodPost, "/classify", strings.NewReader(`[{"id":"p0","text":"b"}]`))
	r2.RemoteAddr = "10.0.0.1:5678"
	w2 := httptest.NewRecorder()
	NewRouter(h).ServeHTTP(w2, r2)
	require.Equal(t, http.StatusTooManyRequests, w2.Code)
}

func TestPoolReplenishesAfterAcquire(t *testing.T) {
	pool := NewPool("cat", nil, 3, zerolog.Nop())
	defer pool.Close()
	require.Equal(t, 3, pool.WarmCount())

	proc, err := pool.Acquire()
	require.NoError(t, err)
	out, err := proc.Run(context.Background(), []byte(`[{"id":"p0","text":"hi"}]`))
	require.NoError(t, err)
	require.JSONEq(t, `[{"id":"p0","text":"hi"}]`, string(out))

	require.Eventually(t, func() bool { return pool.WarmCount() == 3 }, 2*time.Second, 20*time.Millisecond,
		"pool must replenish asynchronously after each use")
}

func TestPoolSpawnsOnDemandWhenExhausted(t *testing.T) {
	pool := NewPool("cat", nil, 1, zerolog.Nop())
	defer pool.Close()

	a, err := pool.Acquire()
	require.NoError(t, err)
	b, err := pool.Acquire() // may or may not catch the replenished one
	require.NoError(t, err)
	c, err := pool.Acquire()
	require.NoError(t, err, "exhaustion must spawn on demand, not block or fail")

	for _, p := range []*Proc{a, b, c} {
		p.Kill()
	}
}

func TestPoolRefillsAfterExhaustion(t *testing.T) {
	pool := NewPool("cat", nil, 2, zerolog.Nop())
	defer pool.Close()

	// drain well past the warm set so later acquires hit the on-demand path
	var procs []*Proc
	for i := 0; i < 5; i++ {
		p, err := pool.Acquire()
		require.NoError(t, err)
		procs = append(procs, p)
	}
	for _, p := range procs {
		p.Kill()
	}

	require.Eventually(t, func() bool { return pool.WarmCount() == 2 }, 2*time.Second, 20*time.Millisecond,
		"on-demand acquires must also refill the warm set")
}

func TestLimiterMapEvictsIdleClients(t *testing.T) {
	h := NewHandler(nil, 1<<20, 5, 5, zerolog.Nop())
	base := time.Now()
	h.now = func() time.Time { return base }

	for i := 0; i < 40; i++ {
		h.limiterFor(fmt.Sprintf("10.0.0.%d:1234", i))
	}
	require.Len(t, h.limiters, 40)

	// a lookup past the idle window drops every stale entry
	h.now = func() time.Time { return base.Add(limiterIdleTTL + time.Second) }
	h.limiterFor("10.0.1.1:9999")
	require.Len(t, h.limiters, 1)
}
