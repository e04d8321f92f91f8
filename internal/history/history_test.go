package history

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/feedsift/feedsift/internal/store"
	"github.com/feedsift/feedsift/internal/verdict"
)

func TestRingIsCapped(t *testing.T) {
	l := New(3, nil, zerolog.Nop())
	for i := 0; i < 10; i++ {
		l.Record(Entry{Fingerprint: fmt.Sprintf("fp%d", i), Verdict: verdict.Show})
	}
	recent := l.Recent(0)
	require.Len(t, recent, 3)
	require.Equal(t, "fp9", recent[0].Fingerprint, "newest first")
	require.Equal(t, "fp7", recent[2].Fingerprint)
}

func TestDisabledDiscardsPending(t *testing.T) {
	kv := store.NewMemory()
	l := New(10, kv, zerolog.Nop())

	// disabled: entries go to the ring but never to the store
	l.Record(Entry{Fingerprint: "a", Verdict: verdict.Filter})
	l.Flush(context.Background())
	_, ok, _ := kv.Get(context.Background(), StoreKey)
	require.False(t, ok)

	// enable, record, then disable before the flush cadence
	l.SetEnabled(true)
	l.Record(Entry{Fingerprint: "b", Verdict: verdict.Show})
	l.SetEnabled(false)
	l.SetEnabled(true)
	l.Flush(context.Background())
	_, ok, _ = kv.Get(context.Background(), StoreKey)
	require.False(t, ok, "disabling must discard buffered entries, not keep them")
}

func TestFlushAppends(t *testing.T) {
	kv := store.NewMemory()
	l := New(10, kv, zerolog.Nop())
	l.SetEnabled(true)

	l.Record(Entry{Fingerprint: "a", Verdict: verdict.Show})
	l.Flush(context.Background())
	l.Record(Entry{Fingerprint: "b", Verdict: verdict.Filter, FromCache: true})
	l.Flush(context.Background())

	raw, ok, err := kv.Get(context.Background(), StoreKey)
	require.NoError(t, err)
	require.True(t, ok)

	var persisted []Entry
	require.NoError(t, json.Unmarshal(raw, &persisted))
	require.Len(t, persisted, 2)
	require.Equal(t, "a", persisted[0].Fingerprint)
	require.Equal(t, "b", persisted[1].Fingerprint)
	require.True(t, persisted[1].FromCache)
}

func TestResetClears(t *testing.T) {
	l := New(10, nil, zerolog.Nop())
	l.Record(Entry{Fingerprint: "a"})
	l.Reset()
	require.Empty(t, l.Recent(0))
}
