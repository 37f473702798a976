package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStore_DisabledIsNoop(t *testing.T) {
	ctx := context.Background()
	s, err := Connect(ctx, "", "")
	require.NoError(t, err)
	require.False(t, s.Enabled())

	require.NoError(t, s.SetObject(ctx, "k", map[string]int{"a": 1}, time.Minute))

	var out map[string]int
	hit, err := s.GetObject(ctx, "k", &out)
	require.NoError(t, err)
	require.False(t, hit)

	release, err := s.Obtain(ctx, "lock:k", time.Second)
	require.NoError(t, err)
	require.NotNil(t, release)
	release()

	require.NoError(t, s.Delete(ctx, "k"))
	require.NoError(t, s.Close())
}

func TestStore_NilReceiver(t *testing.T) {
	var s *Store
	require.False(t, s.Enabled())
	hit, err := s.GetObject(context.Background(), "k", &struct{}{})
	require.NoError(t, err)
	require.False(t, hit)
}
