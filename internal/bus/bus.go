package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultHistorySize is the number of recent events kept for replay.
	DefaultHistorySize = 500

	// DefaultChannelBuffer is the buffer size of each subscriber channel.
	DefaultChannelBuffer = 100
)

// ErrClosed is returned by operations on a closed bus.
var ErrClosed = errors.New("bus is closed")

// SubscriptionID identifies a subscription.
type SubscriptionID string

// Subscription is a single registered handler.
type Subscription struct {
	ID        SubscriptionID
	EventType EventType
	Handler   func(Event)
	Channel   chan Event
	done      chan struct{}
}

// Bus is a thread-safe pub/sub hub with wildcard subscriptions and
// bounded event history. Each subscriber runs on its own goroutine; a
// subscriber that falls behind loses events rather than blocking Publish.
type Bus struct {
	subsMu       sync.RWMutex
	subs         map[SubscriptionID]*Subscription
	typedSubs    map[EventType]map[SubscriptionID]*Subscription
	wildcardSubs map[SubscriptionID]*Subscription
	subCounter   atomic.Uint64
	dropped      atomic.Uint64

	historyMu   sync.RWMutex
	history     []Event
	historySize int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// New creates a bus with the default history size.
func New() *Bus {
	return NewWithHistory(DefaultHistorySize)
}

// NewWithHistory creates a bus retaining up to historySize events.
func NewWithHistory(historySize int) *Bus {
	if historySize < 0 {
		historySize = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		subs:         make(map[SubscriptionID]*Subscription),
		typedSubs:    make(map[EventType]map[SubscriptionID]*Subscription),
		wildcardSubs: make(map[SubscriptionID]*Subscription),
		history:      make([]Event, 0, historySize),
		historySize:  historySize,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Subscribe registers handler for eventType. An empty event type receives
// every event. It returns an empty ID when the bus is closed.
func (b *Bus) Subscribe(eventType EventType, handler func(Event)) SubscriptionID {
	id := SubscriptionID(fmt.Sprintf("sub_%d", b.subCounter.Add(1)))
	sub := &Subscription{
		ID:        id,
		EventType: eventType,
		Handler:   handler,
		Channel:   make(chan Event, DefaultChannelBuffer),
		done:      make(chan struct{}),
	}

	// closed is checked and wg grown under subsMu, which Close also takes
	// before waiting.
	b.subsMu.Lock()
	if b.closed.Load() {
		b.subsMu.Unlock()
		return ""
	}
	b.subs[id] = sub
	if eventType == "" {
		b.wildcardSubs[id] = sub
	} else {
		if b.typedSubs[eventType] == nil {
			b.typedSubs[eventType] = make(map[SubscriptionID]*Subscription)
		}
		b.typedSubs[eventType][id] = sub
	}
	b.wg.Add(1)
	b.subsMu.Unlock()

	go b.run(sub)

	return id
}

func (b *Bus) run(sub *Subscription) {
	defer b.wg.Done()
	for {
		select {
		case event := <-sub.Channel:
			b.deliver(sub, event)
		case <-sub.done:
			return
		case <-b.ctx.Done():
			for {
				select {
				case event := <-sub.Channel:
					b.deliver(sub, event)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) deliver(sub *Subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("subscription", string(sub.ID)).
				Str("event", string(event.Type)).Msg("bus subscriber panicked")
		}
	}()
	sub.Handler(event)
}

// Unsubscribe removes a subscription.
func (b *Bus) Unsubscribe(id SubscriptionID) error {
	if b.closed.Load() {
		return ErrClosed
	}

	b.subsMu.Lock()
	sub, ok := b.subs[id]
	if !ok {
		b.subsMu.Unlock()
		return fmt.Errorf("subscription %s not found", id)
	}
	delete(b.subs, id)
	if sub.EventType == "" {
		delete(b.wildcardSubs, id)
	} else if typed, ok := b.typedSubs[sub.EventType]; ok {
		delete(typed, id)
		if len(typed) == 0 {
			delete(b.typedSubs, sub.EventType)
		}
	}
	b.subsMu.Unlock()

	close(sub.done)
	return nil
}

// Publish records event in the history and hands it to every matching
// subscriber.
func (b *Bus) Publish(event Event) error {
	if b.closed.Load() {
		return ErrClosed
	}

	b.addToHistory(event)

	b.subsMu.RLock()
	defer b.subsMu.RUnlock()
	for _, sub := range b.wildcardSubs {
		b.offer(sub, event)
	}
	for _, sub := range b.typedSubs[event.Type] {
		b.offer(sub, event)
	}
	return nil
}

func (b *Bus) offer(sub *Subscription, event Event) {
	select {
	case sub.Channel <- event:
	default:
		b.dropped.Add(1)
	}
}

func (b *Bus) addToHistory(event Event) {
	if b.historySize == 0 {
		return
	}
	b.historyMu.Lock()
	defer b.historyMu.Unlock()

	b.history = append(b.history, event)
	if len(b.history) > b.historySize {
		b.history = b.history[len(b.history)-b.historySize:]
	}
}

// History returns a copy of the retained events, oldest first.
func (b *Bus) History() []Event {
	return b.Recent(-1)
}

// Recent returns the last n retained events. A negative n returns all.
func (b *Bus) Recent(n int) []Event {
	b.historyMu.RLock()
	defer b.historyMu.RUnlock()

	if n < 0 || n > len(b.history) {
		n = len(b.history)
	}
	out := make([]Event, n)
	copy(out, b.history[len(b.history)-n:])
	return out
}

// SubscriptionsCount returns the number of active subscriptions.
func (b *Bus) SubscriptionsCount() int {
	b.subsMu.RLock()
	defer b.subsMu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber
// channel was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close stops every subscriber goroutine once its queued events are
// delivered.
func (b *Bus) Close() error {
	b.subsMu.Lock()
	swapped := b.closed.CompareAndSwap(false, true)
	b.subsMu.Unlock()
	if !swapped {
		return ErrClosed
	}
	b.cancel()
	b.wg.Wait()

	b.subsMu.Lock()
	b.subs = make(map[SubscriptionID]*Subscription)
	b.typedSubs = make(map[EventType]map[SubscriptionID]*Subscription)
	b.wildcardSubs = make(map[SubscriptionID]*Subscription)
	b.subsMu.Unlock()
	return nil
}
