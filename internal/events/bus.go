package events

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Bus is a fan-out pub/sub transport for job progress messages.
type Bus interface {
	Publish(ctx context.Context, channel, message string) error
	// Subscribe returns a channel of messages that is closed once ctx ends.
	Subscribe(ctx context.Context, channel string) (<-chan string, error)
}

// ChannelFor returns the pub/sub channel carrying a job's messages.
func ChannelFor(jobID string) string {
	return "jobs:" + jobID
}

// RedisBus publishes through Redis pub/sub so that API and worker processes
// share one stream.
type RedisBus struct {
	client *redis.Client
}

// NewRedisBus wraps an existing client.
func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

func (b *RedisBus) Publish(ctx context.Context, channel, message string) error {
	if err := b.client.Publish(ctx, channel, message).Err(); err != nil {
		return errors.Wrapf(err, "publish to %s", channel)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, channel string) (<-chan string, error) {
	sub := b.client.Subscribe(ctx, channel)
	// Wait for the subscription confirmation so no message published right
	// after Subscribe returns is lost.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, errors.Wrapf(err, "subscribe to %s", channel)
	}

	out := make(chan string, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		in := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// MemoryBus is an in-process bus. Slow subscribers drop messages rather than
// blocking publishers.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[string]map[chan string]struct{}
}

// NewMemoryBus constructs an empty bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[chan string]struct{})}
}

func (b *MemoryBus) Publish(_ context.Context, channel, message string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[channel] {
		select {
		case ch <- message:
		default:
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, channel string) (<-chan string, error) {
	ch := make(chan string, 64)

	b.mu.Lock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[chan string]struct{})
	}
	b.subs[channel][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs[channel], ch)
		if len(b.subs[channel]) == 0 {
			delete(b.subs, channel)
		}
		close(ch)
		b.mu.Unlock()
	}()
	return ch, nil
}
