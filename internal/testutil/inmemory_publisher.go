package testutil

import (
	"context"
	"sync"

	"github.com/shahin-grc/serialcode/internal/domain/serialcode"
	"github.com/shahin-grc/serialcode/internal/publisher"
	"github.com/shahin-grc/serialcode/internal/types"
)

var _ publisher.EventPublisher = (*InMemoryEventPublisher)(nil)

// InMemoryEventPublisher records lifecycle events and can hand them to a
// consumer synchronously
type InMemoryEventPublisher struct {
	mu       sync.RWMutex
	events   []*serialcode.LifecycleEvent
	consumer func(ctx context.Context, event *serialcode.LifecycleEvent) error
}

func NewInMemoryEventPublisher() *InMemoryEventPublisher {
	return &InMemoryEventPublisher{}
}

// SetConsumer delivers every published event to fn
func (p *InMemoryEventPublisher) SetConsumer(fn func(ctx context.Context, event *serialcode.LifecycleEvent) error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consumer = fn
}

func (p *InMemoryEventPublisher) Publish(ctx context.Context, event *serialcode.LifecycleEvent) error {
	p.mu.Lock()
	cp := *event
	p.events = append(p.events, &cp)
	consumer := p.consumer
	p.mu.Unlock()

	if consumer != nil {
		return consumer(ctx, &cp)
	}
	return nil
}

// Events returns a snapshot of the published events
func (p *InMemoryEventPublisher) Events() []*serialcode.LifecycleEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*serialcode.LifecycleEvent, len(p.events))
	copy(out, p.events)
	return out
}

// EventsFor returns the actions published for code, in order
func (p *InMemoryEventPublisher) EventsFor(code string) []types.SerialCodeAction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var actions []types.SerialCodeAction
	for _, e := range p.events {
		if e.Code == code {
			actions = append(actions, e.Action)
		}
	}
	return actions
}

func (p *InMemoryEventPublisher) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
	p.consumer = nil
}
