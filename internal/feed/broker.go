// Package feed fans out todo change events to subscribers.
package feed

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jaekwang-park/todo-sync/internal/model"
)

const DefaultBuffer = 64

// Predicate selects the events a subscriber receives.
type Predicate func(model.ChangeEvent) bool

// OwnedBy delivers only events for todos owned by ownerID.
func OwnedBy(ownerID string) Predicate {
	return func(ev model.ChangeEvent) bool {
		return ownerID != "" && ev.OwnerID == ownerID
	}
}

type subscriber struct {
	ch    chan model.ChangeEvent
	match Predicate
	once  sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// Broker is an in-process pub/sub hub. Publish never blocks on a slow
// subscriber; a subscriber whose buffer is full is dropped and its channel
// closed so the consumer resubscribes and re-fetches.
type Broker struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	buffer int
	logger *slog.Logger
}

func NewBroker(buffer int, logger *slog.Logger) *Broker {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		subs:   make(map[*subscriber]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a subscriber until ctx is done. The returned channel is
// closed when the subscription ends.
func (b *Broker) Subscribe(ctx context.Context, match Predicate) <-chan model.ChangeEvent {
	s := &subscriber{ch: make(chan model.ChangeEvent, b.buffer), match: match}

	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(s)
	}()

	return s.ch
}

// Publish delivers ev to every matching subscriber.
func (b *Broker) Publish(_ context.Context, ev model.ChangeEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for s := range b.subs {
		if s.match != nil && !s.match(ev) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			delete(b.subs, s)
			s.close()
			b.logger.Warn("dropping slow feed subscriber", "owner_id", ev.OwnerID)
		}
	}
	return nil
}

// Subscribers returns the number of active subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close ends every subscription.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		delete(b.subs, s)
		s.close()
	}
}

func (b *Broker) remove(s *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, s)
	s.close()
}
