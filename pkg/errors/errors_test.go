package errors

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindError_WrapsCause(t *testing.T) {
	err := E(KindTimeout, "geocode", context.DeadlineExceeded)

	require.Equal(t, KindTimeout, KindOf(err))
	require.True(t, Is(err, context.DeadlineExceeded))
	require.Contains(t, err.Error(), "geocode: timeout")

	wrapped := fmt.Errorf("outer: %w", err)
	require.Equal(t, KindTimeout, KindOf(wrapped))
}

func TestKindOf_PlainError(t *testing.T) {
	require.Equal(t, Kind(""), KindOf(ErrNotFound))
	require.Equal(t, Kind(""), KindOf(nil))
}
