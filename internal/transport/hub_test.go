package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_PublishReachesAllSubscribers(t *testing.T) {
	hub := NewHub[int]()

	first, cancelFirst := hub.Subscribe(4)
	defer cancelFirst()
	second, cancelSecond := hub.Subscribe(4)
	defer cancelSecond()

	hub.Publish(7)

	assert.Equal(t, 7, <-first)
	assert.Equal(t, 7, <-second)
}

func TestHub_NoReplayForLateSubscribers(t *testing.T) {
	hub := NewHub[string]()
	hub.Publish("before")

	sub, cancel := hub.Subscribe(4)
	defer cancel()

	hub.Publish("after")
	assert.Equal(t, "after", <-sub)
	assert.Empty(t, sub)
}

func TestHub_DropsWhenSubscriberIsFull(t *testing.T) {
	hub := NewHub[int]()

	slow, cancel := hub.Subscribe(1)
	defer cancel()

	hub.Publish(1)
	hub.Publish(2) // dropped, buffer full
	hub.Publish(3) // dropped

	assert.Equal(t, 1, <-slow)
	assert.Empty(t, slow)

	// a drained subscriber receives again
	hub.Publish(4)
	assert.Equal(t, 4, <-slow)
}

func TestHub_CancelStopsDelivery(t *testing.T) {
	hub := NewHub[int]()

	sub, cancel := hub.Subscribe(4)
	cancel()
	cancel() // idempotent

	_, open := <-sub
	assert.False(t, open)

	// publishing after cancel must not panic
	hub.Publish(1)
}

func TestHub_Close(t *testing.T) {
	hub := NewHub[int]()

	sub, cancel := hub.Subscribe(4)
	defer cancel()

	hub.Close()
	_, open := <-sub
	assert.False(t, open)

	hub.Publish(1) // no-op

	late, lateCancel := hub.Subscribe(4)
	defer lateCancel()
	_, open = <-late
	require.False(t, open)
}
