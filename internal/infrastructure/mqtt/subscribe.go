package mqtt

import (
	"fmt"
	"sync"
)

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// registry remembers subscriptions so they survive a reconnect with a
// clean session.
type registry struct {
	mu   sync.RWMutex
	byID map[string]subscription
}

func newRegistry() *registry {
	return &registry{byID: make(map[string]subscription)}
}

func (r *registry) put(s subscription) {
	r.mu.Lock()
	r.byID[s.topic] = s
	r.mu.Unlock()
}

func (r *registry) drop(topic string) {
	r.mu.Lock()
	delete(r.byID, topic)
	r.mu.Unlock()
}

func (r *registry) each(fn func(subscription)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.byID {
		fn(s)
	}
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Subscribe registers handler for topic, which may contain + and #
// wildcards.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case handler == nil:
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	case !c.IsConnected():
		return ErrNotConnected
	}

	c.subs.put(subscription{topic: topic, qos: qos, handler: handler})
	if err := await(c.client.Subscribe(topic, qos, c.wrapHandler(handler)), defaultPublishTimeout, ErrSubscribeFailed); err != nil {
		c.subs.drop(topic)
		return err
	}
	return nil
}

// Unsubscribe removes the subscription for the exact topic pattern.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	c.subs.drop(topic)
	return await(c.client.Unsubscribe(topic), defaultPublishTimeout, ErrUnsubscribeFailed)
}

// SubscriptionCount returns the number of tracked subscriptions.
func (c *Client) SubscriptionCount() int {
	return c.subs.len()
}
