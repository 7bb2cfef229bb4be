// SPDX-License-Identifier: MIT

package progress

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/log"
	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/metrics"
)

const subscriberBuffer = 64

// Subscription is one registered consumer of a topic.
type Subscription interface {
	// C yields events in emission order. The channel is closed by Close.
	C() <-chan Event
	// Close unregisters the subscription and closes its channel.
	Close() error
}

// Bus is a process-wide pub/sub for named event topics. Delivery is
// at-most-once per subscriber per event: a subscriber whose buffer is
// full has the event dropped rather than stalling the publisher or
// other subscribers. Per-subscriber channels preserve emission order,
// which is what gives consumers per-operation ordering.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]chan Event
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]chan Event)}
}

func publishDropReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "context_done"
	}
}

// Publish fans ev out to every subscriber of topic. A done context
// drops the whole publish and returns the context error; a full
// subscriber buffer drops only that subscriber's copy. Sends are
// non-blocking, so holding the read lock for the fan-out is cheap and
// keeps Close from closing a channel mid-publish.
func (b *Bus) Publish(ctx context.Context, topic string, ev Event) error {
	if ctx == nil {
		return fmt.Errorf("publish context is nil")
	}
	if err := ctx.Err(); err != nil {
		metrics.IncBusDropReason(topic, publishDropReason(err))
		return fmt.Errorf("publish topic %q: %w", topic, err)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[topic] {
		select {
		case ch <- ev:
		default:
			metrics.IncBusDropReason(topic, "full")
			logger := log.WithComponent("progress")
			logger.Warn().
				Str("topic", topic).
				Str("operation_id", ev.OperationID).
				Msg("dropping event for slow subscriber")
		}
	}
	return nil
}

// Subscribe registers a new consumer for topic.
func (b *Bus) Subscribe(topic string) Subscription {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], ch)
	b.mu.Unlock()

	metrics.AddBusSubscribers(topic, 1)
	return &busSub{b: b, topic: topic, ch: ch}
}

// Shutdown closes every subscriber channel and empties the bus.
// Publishes after Shutdown reach nobody; Close on an already-removed
// subscription stays a no-op.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string][]chan Event)
	b.mu.Unlock()

	for topic, chans := range subs {
		metrics.AddBusSubscribers(topic, -float64(len(chans)))
		for _, ch := range chans {
			close(ch)
		}
	}
}

type busSub struct {
	b     *Bus
	topic string
	ch    chan Event
	once  sync.Once
}

func (s *busSub) C() <-chan Event {
	return s.ch
}

func (s *busSub) Close() error {
	s.once.Do(func() {
		s.b.mu.Lock()
		lst := s.b.subs[s.topic]
		out := lst[:0]
		removed := false
		for _, c := range lst {
			if c == s.ch {
				removed = true
				continue
			}
			out = append(out, c)
		}
		if len(out) == 0 {
			delete(s.b.subs, s.topic)
		} else {
			s.b.subs[s.topic] = out
		}
		s.b.mu.Unlock()

		// Shutdown may already have removed and closed the channel.
		if removed {
			metrics.AddBusSubscribers(s.topic, -1)
			close(s.ch)
		}
	})
	return nil
}
