package event

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/plughost/internal/event/topic"
)

// Event is a single published message.
type Event struct {
	Topic   topic.Topic
	Payload any
	Time    time.Time
}

// Handler receives events for a subscription.
type Handler func(ctx context.Context, ev Event)

// Subscription is a live registration of a handler on a topic pattern.
type Subscription interface {
	// ID returns the unique subscription identifier.
	ID() string

	// Topic returns the subscribed pattern.
	Topic() topic.Topic

	// IsActive reports whether the subscription still receives events.
	IsActive() bool

	// Cancel removes the subscription. It is safe to call more than once.
	Cancel()
}

// Stats is a snapshot of bus counters.
type Stats struct {
	Published     uint64
	Delivered     uint64
	HandlerPanics uint64
	Subscriptions int
}

// Bus is a synchronous topic-based publish/subscribe bus.
// It is safe for concurrent use.
type Bus struct {
	mu   sync.RWMutex
	subs []*subscription

	logger *slog.Logger

	published atomic.Uint64
	delivered atomic.Uint64
	panics    atomic.Uint64
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithLogger sets the logger used to report recovered handler panics.
func WithLogger(l *slog.Logger) BusOption {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBus creates an empty bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("subsystem", "event.bus")
	return b
}

// Subscribe registers handler for every topic matching pattern.
func (b *Bus) Subscribe(pattern topic.Topic, handler Handler) (Subscription, error) {
	if !pattern.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTopic, pattern)
	}
	if handler == nil {
		return nil, ErrNilHandler
	}

	sub := &subscription{
		id:      uuid.NewString(),
		pattern: pattern,
		handler: handler,
		bus:     b,
	}
	sub.active.Store(true)

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	return sub, nil
}

// Publish delivers payload to every active subscription whose pattern
// matches t. Handlers run on the caller's goroutine.
func (b *Bus) Publish(ctx context.Context, t topic.Topic, payload any) error {
	if !t.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, t)
	}
	if t.IsWildcard() {
		return fmt.Errorf("%w: %q", ErrWildcardPublish, t)
	}

	b.mu.RLock()
	matched := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if t.Matches(sub.pattern) {
			matched = append(matched, sub)
		}
	}
	b.mu.RUnlock()

	b.published.Add(1)
	ev := Event{Topic: t, Payload: payload, Time: time.Now()}
	for _, sub := range matched {
		// A handler earlier in the list may have cancelled this one.
		if !sub.IsActive() {
			continue
		}
		b.deliver(ctx, sub, ev)
	}
	return nil
}

// deliver runs one handler with panic recovery.
func (b *Bus) deliver(ctx context.Context, sub *subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.panics.Add(1)
			b.logger.Error("Event handler panicked.",
				"topic", ev.Topic.String(),
				"subscription", sub.id,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	sub.handler(ctx, ev)
	b.delivered.Add(1)
}

// Stats returns a snapshot of the bus counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	n := len(b.subs)
	b.mu.RUnlock()

	return Stats{
		Published:     b.published.Load(),
		Delivered:     b.delivered.Load(),
		HandlerPanics: b.panics.Load(),
		Subscriptions: n,
	}
}

// remove drops sub from the subscriber list.
func (b *Bus) remove(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

type subscription struct {
	id      string
	pattern topic.Topic
	handler Handler
	bus     *Bus

	active atomic.Bool
	once   sync.Once
}

func (s *subscription) ID() string         { return s.id }
func (s *subscription) Topic() topic.Topic { return s.pattern }
func (s *subscription) IsActive() bool     { return s.active.Load() }

func (s *subscription) Cancel() {
	s.once.Do(func() {
		s.active.Store(false)
		s.bus.remove(s)
	})
}
