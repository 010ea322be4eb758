package notifications

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubRegisterAndUnregister(t *testing.T) {
	t.Parallel()
	hub := NewHub()

	a, err := hub.Register(1, nil)
	require.NoError(t, err)
	_, err = hub.Register(1, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, hub.Connections(1))

	hub.UnregisterClient(a)
	hub.UnregisterClient(a)
	assert.Equal(t, 1, hub.Connections(1))

	_, open := <-a.Send
	assert.False(t, open, "send channel is closed on unregister")
}

func TestHubPerUserLimit(t *testing.T) {
	t.Parallel()
	hub := NewHub()
	for i := 0; i < maxConnsPerUser; i++ {
		_, err := hub.Register(7, nil)
		require.NoError(t, err)
	}
	_, err := hub.Register(7, nil)
	assert.ErrorIs(t, err, ErrUserLimit)

	_, err = hub.Register(8, nil)
	assert.NoError(t, err)
}

func TestHubDeliverTargetsUser(t *testing.T) {
	t.Parallel()
	hub := NewHub()
	a1, _ := hub.Register(1, nil)
	a2, _ := hub.Register(1, nil)
	b, _ := hub.Register(2, nil)

	hub.Deliver(1, []byte("hi"))
	assert.Len(t, a1.Send, 1)
	assert.Len(t, a2.Send, 1)
	assert.Empty(t, b.Send)

	hub.Deliver(99, []byte("nobody"))
}

func TestClientTrySendDropsWhenFull(t *testing.T) {
	t.Parallel()
	hub := NewHub()
	c, err := hub.Register(1, nil)
	require.NoError(t, err)

	for i := 0; i < sendBufferSize+5; i++ {
		c.TrySend([]byte("event"))
	}
	assert.Len(t, c.Send, sendBufferSize)
}

func TestClientTrySendAfterCloseDoesNotPanic(t *testing.T) {
	t.Parallel()
	hub := NewHub()
	c, err := hub.Register(1, nil)
	require.NoError(t, err)
	hub.UnregisterClient(c)

	assert.NotPanics(t, func() { c.TrySend([]byte("late")) })
}

func TestHubShutdown(t *testing.T) {
	t.Parallel()
	hub := NewHub()
	c, err := hub.Register(1, nil)
	require.NoError(t, err)

	require.NoError(t, hub.Shutdown(context.Background()))
	require.NoError(t, hub.Shutdown(context.Background()))

	_, open := <-c.Send
	assert.False(t, open)
	assert.Equal(t, 0, hub.Connections(1))

	_, err = hub.Register(1, nil)
	assert.ErrorIs(t, err, ErrHubShutdown)

	// unregistering after shutdown must not double-close
	assert.NotPanics(t, func() { hub.UnregisterClient(c) })
}
