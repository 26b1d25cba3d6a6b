package google_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellmind/agentcore/runtime/gateway/providers/google"
)

func TestKeyRingRotatesRoundRobin(t *testing.T) {
	ring, err := google.NewKeyRing([]string{"a", "b", "c"}, time.Minute)
	require.NoError(t, err)

	seen := make([]string, 3)
	for i := range seen {
		_, k, err := ring.Acquire()
		require.NoError(t, err)
		seen[i] = k
	}
	assert.Equal(t, []string{"a", "b", "c"}, seen)
}

func TestKeyRingSkipsCoolingDownKeys(t *testing.T) {
	ring, err := google.NewKeyRing([]string{"a", "b"}, time.Minute)
	require.NoError(t, err)

	idx, _, err := ring.Acquire()
	require.NoError(t, err)
	ring.MarkFailed(idx)

	_, k2, err := ring.Acquire()
	require.NoError(t, err)
	assert.Equal(t, "b", k2)

	_, k3, err := ring.Acquire()
	require.NoError(t, err)
	assert.Equal(t, "b", k3)
}

func TestKeyRingReturnsErrorWhenAllCoolingDown(t *testing.T) {
	ring, err := google.NewKeyRing([]string{"a"}, time.Minute)
	require.NoError(t, err)

	idx, _, err := ring.Acquire()
	require.NoError(t, err)
	ring.MarkFailed(idx)

	_, _, err = ring.Acquire()
	assert.ErrorIs(t, err, google.ErrAllKeysCoolingDown)
}

func TestKeyRingMarkSucceededClearsCooldown(t *testing.T) {
	ring, err := google.NewKeyRing([]string{"a"}, time.Minute)
	require.NoError(t, err)

	idx, _, err := ring.Acquire()
	require.NoError(t, err)
	ring.MarkFailed(idx)
	ring.MarkSucceeded(idx)

	_, _, err = ring.Acquire()
	assert.NoError(t, err)
}
