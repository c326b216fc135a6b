package notify

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesSubscribers(t *testing.T) {
	bus := NewBus()
	var mu sync.Mutex
	var got []interface{}

	for i := 0; i < 2; i++ {
		_, err := bus.Subscribe("vis-interaction", func(payload interface{}) {
			mu.Lock()
			got = append(got, payload)
			mu.Unlock()
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, bus.Subscribers("vis-interaction"))

	bus.Publish("vis-interaction", map[string]string{"type": "interaction"})
	bus.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, got, 2)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	bus := NewBus()
	assert.NotPanics(t, func() {
		bus.Publish("nobody", "payload")
		bus.Publish("nobody", nil)
	})
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()
	calls := 0
	var mu sync.Mutex
	cancel, err := bus.Subscribe("topic", func(interface{}) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	require.NoError(t, err)

	bus.Publish("topic", 1)
	bus.Wait()
	cancel()
	cancel()
	bus.Publish("topic", 2)
	bus.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
	assert.Zero(t, bus.Subscribers("topic"))
}

func TestSubscriberPanicIsContained(t *testing.T) {
	bus := NewBus()
	_, err := bus.Subscribe("topic", func(interface{}) { panic("broken observer") })
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		bus.Publish("topic", "payload")
		bus.Wait()
	})

	_, err = bus.Subscribe("topic", nil)
	assert.Error(t, err)
}
