package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/feedsift/feedsift/internal/cache"
	"github.com/feedsift/feedsift/internal/verdict"
)

func testClient(t *testing.T, url string, vc *cache.Cache) *Client {
	t.Helper()
	return New(Config{
		BaseURL:          url,
		MaxRetryAttempts: 2,
		RetryDelay:       time.Millisecond,
		Timeout:          5 * time.Second,
	}, vc, zerolog.Nop())
}

func inputs(texts ...string) []Input {
	in := make([]Input, len(texts))
	for i, s := range texts {
		in[i] = Input{Fingerprint: s + "-fp", Text: s}
	}
	return in
}

func TestClassify_HappyPathPreservesOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req []struct {
			ID   string `json:"id"`
			Text string `json:"text"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req, 3)
		require.Equal(t, "p0", req[0].ID)

		// answer out of order on purpose
		resp := map[string]any{"verdicts": []map[string]string{
			{"id": "p2", "verdict": "promote"},
			{"id": "p0", "verdict": "allow"},
			{"id": "p1", "verdict": "rewrite", "distilled": "neutral text"},
		}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	recs := testClient(t, srv.URL, nil).Classify(context.Background(), inputs("a", "b", "c"))
	require.Len(t, recs, 3)
	require.Equal(t, verdict.Show, recs[0].Verdict)
	require.Equal(t, verdict.Distill, recs[1].Verdict)
	require.Equal(t, "neutral text", recs[1].RewrittenText)
	require.Equal(t, verdict.Nourish, recs[2].Verdict)
}

func TestClassify_TransportFailureFailsClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from now on

	recs := testClient(t, srv.URL, nil).Classify(context.Background(), inputs("a", "b", "c", "d", "e"))
	require.Len(t, recs, 5)
	for i, r := range recs {
		require.Equal(t, verdict.Filter, r.Verdict, "position %d", i)
		require.NotEmpty(t, r.Reason)
	}
}

func TestClassify_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"verdicts": []map[string]string{
			{"id": "p0", "verdict": "show"},
		}})
	}))
	defer srv.Close()

	recs := testClient(t, srv.URL, nil).Classify(context.Background(), inputs("a"))
	require.Equal(t, int32(3), calls.Load(), "two retries after the first attempt")
	require.Equal(t, verdict.Show, recs[0].Verdict)
}

func TestClassify_MalformedBodyFailsClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json at all"))
	}))
	defer srv.Close()

	recs := testClient(t, srv.URL, nil).Classify(context.Background(), inputs("a", "b"))
	for _, r := range recs {
		require.Equal(t, verdict.Filter, r.Verdict)
	}
}

func TestClassify_PartialResponseLeavesUnmatchedPending(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"verdicts": []map[string]string{
			{"id": "p0", "verdict": "show"},
			{"id": "p2", "verdict": "filter"},
			{"id": "p4", "verdict": "nourish"},
			{"id": "p9", "verdict": "show"},    // unknown position: ignored
			{"id": "bogus", "verdict": "show"}, // unknown id: ignored
		}})
	}))
	defer srv.Close()

	recs := testClient(t, srv.URL, nil).Classify(context.Background(), inputs("a", "b", "c", "d", "e"))
	require.Equal(t, verdict.Show, recs[0].Verdict)
	require.Equal(t, verdict.Pending, recs[1].Verdict)
	require.Equal(t, verdict.Filter, recs[2].Verdict)
	require.Equal(t, verdict.Pending, recs[3].Verdict)
	require.Equal(t, verdict.Nourish, recs[4].Verdict)
}

func TestClassify_DuplicateIDLastOneWins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"verdicts": []map[string]string{
			{"id": "p0", "verdict": "filter"},
			{"id": "p0", "verdict": "show"},
		}})
	}))
	defer srv.Close()

	recs := testClient(t, srv.URL, nil).Classify(context.Background(), inputs("a"))
	require.Equal(t, verdict.Show, recs[0].Verdict)
}

func TestClassify_ResultsCachedEvenIfConsumerVanishes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"verdicts": []map[string]string{
			{"id": "p0", "verdict": "block"},
		}})
	}))
	defer srv.Close()

	vc := cache.New(10, 24*time.Hour, nil, zerolog.Nop())
	testClient(t, srv.URL, vc).Classify(context.Background(), []Input{{Fingerprint: "deadbeef", Text: "a"}})

	rec, ok := vc.Get("deadbeef")
	require.True(t, ok, "normalized record must be cached before returning")
	require.Equal(t, verdict.Filter, rec.Verdict)
}

func TestClassify_TransientFailureNotCached(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	vc := cache.New(10, 24*time.Hour, nil, zerolog.Nop())
	testClient(t, srv.URL, vc).Classify(context.Background(), []Input{{Fingerprint: "deadbeef", Text: "a"}})

	_, ok := vc.Get("deadbeef")
	require.False(t, ok, "fail-closed records must stay retryable, not poison the cache")
}

func TestClassify_EmptyBatch(t *testing.T) {
	require.Nil(t, testClient(t, "http://127.0.0.1:0", nil).Classify(context.Background(), nil))
}
