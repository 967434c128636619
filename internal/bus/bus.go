// Package bus is the in-process publish/subscribe dispatcher between the
// transport adapters and the topic listeners.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ibs-source/iot-router/internal/log"
	"github.com/ibs-source/iot-router/internal/message"
	"github.com/ibs-source/iot-router/internal/topic"
	"github.com/ibs-source/iot-router/internal/worker"
)

// Handler consumes one delivered message. tpl is the template the
// message topic resolved to.
type Handler func(ctx context.Context, msg message.DeviceMessage, tpl *topic.Template) error

// Subscriber declares interest in one template for one consumer group.
type Subscriber struct {
	Kind    topic.Kind
	Group   string
	Handler Handler
}

// Submitter is the part of the worker pool the bus needs.
type Submitter interface {
	Submit(worker.Task) error
}

type subscriptionKey struct {
	kind  topic.Kind
	group string
}

// Bus fans every published message out to all subscribers of its template.
type Bus struct {
	registry *topic.Registry
	pool     Submitter
	log      *log.Logger

	mu   sync.RWMutex
	subs map[topic.Kind][]Subscriber
	keys map[subscriptionKey]struct{}
}

// New creates a bus delivering on pool.
func New(registry *topic.Registry, pool Submitter, logger *log.Logger) *Bus {
	return &Bus{
		registry: registry,
		pool:     pool,
		log:      logger,
		subs:     make(map[topic.Kind][]Subscriber),
		keys:     make(map[subscriptionKey]struct{}),
	}
}

// Register adds a subscriber. A second registration for the same kind
// and group is ignored.
func (b *Bus) Register(sub Subscriber) error {
	if sub.Handler == nil {
		return fmt.Errorf("subscriber %s/%s has no handler", sub.Kind, sub.Group)
	}
	if sub.Group == "" {
		return fmt.Errorf("subscriber for %s has no group", sub.Kind)
	}
	if _, err := b.registry.Lookup(sub.Kind); err != nil {
		return err
	}

	key := subscriptionKey{kind: sub.Kind, group: sub.Group}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.keys[key]; exists {
		b.log.Debug("Subscriber %s/%s already registered", sub.Kind, sub.Group)
		return nil
	}
	b.keys[key] = struct{}{}
	b.subs[sub.Kind] = append(b.subs[sub.Kind], sub)
	return nil
}

// Subscribers returns how many subscribers are registered for kind.
func (b *Bus) Subscribers(kind topic.Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[kind])
}

// Publish schedules one delivery per subscriber and returns the number
// scheduled. It never blocks: an unrecognized topic is dropped, and a
// delivery that finds the pool queue full is dropped and logged.
func (b *Bus) Publish(msg message.DeviceMessage) int {
	tpl := b.registry.Match(msg.Topic)
	if tpl == nil {
		b.log.DebugWithFields(log.MessageFields(msg.ID, msg.Topic), "Dropping message: %v", topic.ErrUnrecognizedTopic)
		return 0
	}

	b.mu.RLock()
	subs := b.subs[tpl.Kind]
	b.mu.RUnlock()

	scheduled := 0
	for _, sub := range subs {
		task := b.delivery(sub, msg, tpl)
		if err := b.pool.Submit(task); err != nil {
			b.log.WarnWithFields(log.MessageFields(msg.ID, msg.Topic), "Delivery to %s dropped: %v", sub.Group, err)
			continue
		}
		scheduled++
	}
	return scheduled
}

// delivery wraps one subscriber invocation. Errors and panics stop here.
func (b *Bus) delivery(sub Subscriber, msg message.DeviceMessage, tpl *topic.Template) worker.Task {
	return worker.Task{
		Name: fmt.Sprintf("%s/%s", sub.Kind, sub.Group),
		Run: func(ctx context.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("subscriber %s panicked: %v", sub.Group, r)
				}
				if err != nil && !errors.Is(err, context.Canceled) {
					b.log.ErrorWithFields(log.MessageFields(msg.ID, msg.Topic), "Subscriber %s failed: %v", sub.Group, err)
				}
			}()
			return sub.Handler(ctx, msg, tpl)
		},
	}
}
