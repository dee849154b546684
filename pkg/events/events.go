package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	queueSize      = 100
	subscriberSize = 50
)

// EventType names what happened to a subdomain or its certificate
type EventType string

const (
	EventSubdomainDefined      EventType = "subdomain.defined"
	EventSubdomainDefineFailed EventType = "subdomain.define_failed"
	EventSubdomainUndefined    EventType = "subdomain.undefined"
	EventCertificateRenewed    EventType = "certificate.renewed"
	EventCertificateRenewFail  EventType = "certificate.renew_failed"
)

// Failure reports whether t records an operation that did not complete
func (t EventType) Failure() bool {
	return t == EventSubdomainDefineFailed || t == EventCertificateRenewFail
}

// Event is one provisioning outcome. Metadata carries label, domain and
// similar log fields.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Message   string
	Metadata  map[string]string
}

// Publisher accepts events; a nil *Broker is a valid no-op Publisher
type Publisher interface {
	Publish(event *Event)
}

// Subscriber receives events until it is unsubscribed
type Subscriber chan *Event

// Broker fans published events out to subscribers. Slow subscribers lose
// events instead of stalling the reconciler.
type Broker struct {
	mu      sync.RWMutex
	subs    map[Subscriber]struct{}
	queue   chan *Event
	done    chan struct{}
	stop    sync.Once
	dropped atomic.Uint64
}

func NewBroker() *Broker {
	return &Broker{
		subs:  make(map[Subscriber]struct{}),
		queue: make(chan *Event, queueSize),
		done:  make(chan struct{}),
	}
}

// Start runs the fan-out loop in its own goroutine
func (b *Broker) Start() {
	go b.loop()
}

// Stop ends the fan-out loop. Safe to call more than once.
func (b *Broker) Stop() {
	b.stop.Do(func() { close(b.done) })
}

func (b *Broker) Subscribe() Subscriber {
	sub := make(Subscriber, subscriberSize)

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unsubscribe closes sub; unknown or already removed subscribers are ignored
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub)
}

// Publish stamps event with an ID and time when missing and queues it.
// It returns without queueing once the broker is stopped.
func (b *Broker) Publish(event *Event) {
	if b == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.queue <- event:
	case <-b.done:
	}
}

func (b *Broker) loop() {
	for {
		select {
		case ev := <-b.queue:
			b.deliver(ev)
		case <-b.done:
			return
		}
	}
}

func (b *Broker) deliver(ev *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		select {
		case sub <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped counts deliveries skipped because a subscriber was full
func (b *Broker) Dropped() uint64 {
	return b.dropped.Load()
}
