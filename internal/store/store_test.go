package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemory_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", []byte("v1")))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v1"), v)

	require.NoError(t, s.Set(ctx, "k", []byte("v2")))
	v, _, _ = s.Get(ctx, "k")
	require.Equal(t, []byte("v2"), v)

	require.NoError(t, s.Delete(ctx, "k"))
	_, ok, _ = s.Get(ctx, "k")
	require.False(t, ok)
}

func TestSQLite_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Set(ctx, "quota/state", []byte(`{"used":10}`)))
	v, ok, err := s.Get(ctx, "quota/state")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"used":10}`, string(v))

	// overwrite keeps single-key atomicity semantics
	require.NoError(t, s.Set(ctx, "quota/state", []byte(`{"used":20}`)))
	v, _, _ = s.Get(ctx, "quota/state")
	require.JSONEq(t, `{"used":20}`, string(v))

	require.NoError(t, s.Delete(ctx, "quota/state"))
	_, ok, _ = s.Get(ctx, "quota/state")
	require.False(t, ok)

	require.NoError(t, s.HealthPing(ctx))
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "cache/verdicts", []byte("payload")))
	require.NoError(t, s.Close())

	s2, err := OpenSQLite(path)
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()
	v, ok, err := s2.Get(ctx, "cache/verdicts")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("payload"), v)
}
