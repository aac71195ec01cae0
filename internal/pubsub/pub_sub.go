// Package pubsub implements a small typed publish-subscribe broker used to fan IO events
// (frontier advancement, failures, shutdown) out to the components that react to them.
package pubsub

import (
	"log"
	"sync"
	"sync/atomic"
)

// EventType is the type of event subscribers are listening for. This is a base type; each
// package defines its own constants.
type EventType int

// SubscriberID is a unique identifier for a single subscription instance. It is returned upon
// subscribing and is required to unsubscribe.
type SubscriberID uint64

// nextSubscriberID is used to provide a unique ID for each subscriber.
var nextSubscriberID uint64

// SubscriptionOptions configures the behavior of a subscription.
type SubscriptionOptions struct {
	// If true, the broker blocks to deliver an event to this subscriber's channel when it is
	// full. This guarantees delivery but lets a slow subscriber stall the whole bus, so it
	// should generally be false.
	IsBlocking bool
}

// Event is a generic event with compile-time type safety for payloads.
type Event[T any] struct {
	Type    EventType
	Payload T
}

// NewEvent constructs an Event of the given type carrying the given payload.
func NewEvent[T any](eventType EventType, payload T) *Event[T] {
	return &Event[T]{Type: eventType, Payload: payload}
}

// subscriber holds the type-erased delivery closures for a single subscription. Channels of
// different Event[T] instantiations cannot live in one map, so we store closures that capture
// the typed channel instead; the type assertion happens once, inside sendFunc.
type subscriber struct {
	sendFunc  func(eventType EventType, payload any) bool
	closeFunc func()

	Options    SubscriptionOptions
	NumDropped uint64 // atomically updated
}

// PubSubClient implements the publish-subscribe pattern and is safe for concurrent use.
type PubSubClient struct {
	mu sync.RWMutex
	// Used to wait for the run() goroutine to finish
	wg sync.WaitGroup

	// registry maps an EventType to the subscribers listening for it
	registry map[EventType]map[SubscriberID]*subscriber

	// publishChan decouples Publish from the broadcasting run() loop. The buffer lets Publish
	// return immediately and lets in-flight events be drained during GracefulShutdown.
	publishChan chan publishedEvent

	// shuttingDown tracks whether a shutdown has begun.
	shuttingDown atomic.Bool
}

type publishedEvent struct {
	eventType EventType
	payload   any
}

// NewPubSub creates a broker and starts its broadcasting goroutine.
func NewPubSub() *PubSubClient {
	p := &PubSubClient{
		registry:    make(map[EventType]map[SubscriberID]*subscriber),
		publishChan: make(chan publishedEvent, 100),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// Subscribe registers ch to receive events of the given type. The caller creates and owns the
// channel, so it controls the buffer size. Returns a SubscriberID for unsubscribing.
//
// Subscribe is a free function rather than a method because Go does not support methods that
// declare their own type parameters.
func Subscribe[T any](p *PubSubClient, eventType EventType, ch chan *Event[T], opts SubscriptionOptions) SubscriberID {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := SubscriberID(atomic.AddUint64(&nextSubscriberID, 1))

	sub := &subscriber{
		Options: opts,
		sendFunc: func(evType EventType, payload any) bool {
			typedPayload, ok := payload.(T)
			if !ok {
				log.Printf("[PubSubClient] Warning: Type mismatch for event %v. Expected %T, got %T",
					evType, *new(T), payload)
				return false
			}

			event := &Event[T]{Type: evType, Payload: typedPayload}
			if opts.IsBlocking {
				ch <- event
				return true
			}
			select {
			case ch <- event:
				return true
			default:
				// Drop rather than stall the broker on a slow subscriber.
				return false
			}
		},
		closeFunc: func() {
			close(ch)
		},
	}

	if _, ok := p.registry[eventType]; !ok {
		p.registry[eventType] = make(map[SubscriberID]*subscriber)
	}
	p.registry[eventType][id] = sub
	return id
}

// Unsubscribe removes a subscriber for a given event type and closes its channel.
func (p *PubSubClient) Unsubscribe(eventType EventType, id SubscriberID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	subscribers, ok := p.registry[eventType]
	if !ok {
		return
	}
	sub, ok := subscribers[id]
	if !ok {
		return
	}

	delete(subscribers, id)
	sub.closeFunc()
	if len(subscribers) == 0 {
		delete(p.registry, eventType)
	}
}

// Publish broadcasts an event via the broker. Events published during shutdown are dropped.
//
// Publish is a free function for the same reason Subscribe is.
func Publish[T any](p *PubSubClient, event *Event[T]) {
	// Holding the read lock guarantees a shutdown cannot close publishChan under our feet:
	// closing requires the write lock.
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.shuttingDown.Load() {
		log.Printf("[PubSubClient] Warning: Dropping published event %v because PubSubClient is shutting down.", event.Type)
		return
	}

	p.publishChan <- publishedEvent{eventType: event.Type, payload: event.Payload}
}

// ForceShutdown immediately stops accepting new publishes and closes the publish channel.
// It returns without waiting for the buffer to drain.
func (p *PubSubClient) ForceShutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shuttingDown.Load() {
		return
	}
	p.shuttingDown.Store(true)
	close(p.publishChan)
}

// GracefulShutdown stops accepting new publishes, drains all buffered events and waits for the
// broadcasting goroutine to exit.
func (p *PubSubClient) GracefulShutdown() {
	p.mu.Lock()
	if p.shuttingDown.Load() {
		p.mu.Unlock()
		p.wg.Wait()
		return
	}

	p.shuttingDown.Store(true)
	close(p.publishChan)
	// Unlock before waiting: run() takes the read lock while broadcasting.
	p.mu.Unlock()

	p.wg.Wait()
}

// run is the central goroutine that performs the broadcasting.
func (p *PubSubClient) run() {
	defer p.wg.Done()

	for msg := range p.publishChan {
		p.mu.RLock()
		if subscribers, ok := p.registry[msg.eventType]; ok {
			for id, sub := range subscribers {
				sent := sub.sendFunc(msg.eventType, msg.payload)
				if !sent && !sub.Options.IsBlocking {
					atomic.AddUint64(&sub.NumDropped, 1)
					log.Printf("[PubSubClient] Dropped event %v for subscriber %d (channel blocked). Total dropped: %d",
						msg.eventType, id, atomic.LoadUint64(&sub.NumDropped))
				}
			}
		}
		p.mu.RUnlock()
	}
}
