// Package notify is the in-process broadcast used to push interactions and
// evaluation outcomes to live observers.
package notify

import (
	"sync"

	evbus "github.com/asaskevich/EventBus"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Handler receives the payload of one publish.
type Handler func(payload interface{})

// Bus fire-and-forget publish/subscribe over asaskevich/EventBus. Each topic
// has one async EventBus callback fanning out to the registered handlers, so
// Publish never waits for them.
type Bus struct {
	bus evbus.Bus

	mu       sync.RWMutex
	handlers map[string][]*subscription
}

type subscription struct {
	h Handler
}

func NewBus() *Bus {
	return &Bus{
		bus:      evbus.New(),
		handlers: make(map[string][]*subscription),
	}
}

// Publish delivers payload to the subscribers of topic, at most once. A topic
// nobody listens to drops the payload.
func (b *Bus) Publish(topic string, payload interface{}) {
	if payload == nil || b.Subscribers(topic) == 0 {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("notification publish failed",
				zap.String("namespace", "notify"),
				zap.String("topic", topic),
				zap.Any("panic", r))
		}
	}()
	b.bus.Publish(topic, payload)
}

// Subscribe registers h on topic and returns the function that removes it.
func (b *Bus) Subscribe(topic string, h Handler) (func(), error) {
	if h == nil {
		return nil, errors.New("nil handler")
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.handlers[topic]; !ok {
		if err := b.bus.SubscribeAsync(topic, b.dispatcher(topic), false); err != nil {
			return nil, errors.Wrapf(err, "subscribe %s", topic)
		}
		b.handlers[topic] = nil
	}
	sub := &subscription{h: h}
	b.handlers[topic] = append(b.handlers[topic], sub)

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(topic, sub) })
	}, nil
}

func (b *Bus) dispatcher(topic string) func(interface{}) {
	return func(payload interface{}) {
		b.mu.RLock()
		subs := make([]*subscription, len(b.handlers[topic]))
		copy(subs, b.handlers[topic])
		b.mu.RUnlock()

		for _, sub := range subs {
			deliver(topic, sub.h, payload)
		}
	}
}

func deliver(topic string, h Handler, payload interface{}) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("notification subscriber panic",
				zap.String("namespace", "notify"),
				zap.String("topic", topic),
				zap.Any("panic", r))
		}
	}()
	h(payload)
}

func (b *Bus) unsubscribe(topic string, sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.handlers[topic]
	for i, s := range subs {
		if s == sub {
			b.handlers[topic] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Subscribers returns the number of handlers registered on topic.
func (b *Bus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[topic])
}

// Wait blocks until every delivery in flight has returned.
func (b *Bus) Wait() {
	b.bus.WaitAsync()
}
