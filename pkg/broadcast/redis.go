package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

var ErrBroadcasterClosed = errors.New("broadcast: broadcaster is closed")

// RedisBroadcaster publishes JSON-encoded messages on one Redis pub/sub
// channel. Every Subscribe opens its own PubSub connection.
type RedisBroadcaster[T any] struct {
	client     redis.UniversalClient
	channel    string
	bufferSize int
	log        *slog.Logger

	mu     sync.Mutex
	subs   map[*subscriber[T]]struct{}
	closed bool
}

type RedisOption func(*redisOptions)

type redisOptions struct {
	bufferSize int
	log        *slog.Logger
}

func WithRedisBufferSize(n int) RedisOption {
	return func(o *redisOptions) { o.bufferSize = n }
}

func WithRedisLogger(l *slog.Logger) RedisOption {
	return func(o *redisOptions) {
		if l != nil {
			o.log = l
		}
	}
}

func NewRedisBroadcaster[T any](client redis.UniversalClient, channel string, opts ...RedisOption) *RedisBroadcaster[T] {
	o := redisOptions{bufferSize: 64, log: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &RedisBroadcaster[T]{
		client:     client,
		channel:    channel,
		bufferSize: max(o.bufferSize, 1),
		log:        o.log,
		subs:       make(map[*subscriber[T]]struct{}),
	}
}

// Subscribe returns once Redis has confirmed the subscription, so messages
// published after Subscribe returns are not missed.
func (b *RedisBroadcaster[T]) Subscribe(ctx context.Context) Subscriber[T] {
	sub := newSubscriber[T](b.bufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = sub.Close()
		return sub
	}
	b.mu.Unlock()

	ps := b.client.Subscribe(ctx, b.channel)
	if _, err := ps.Receive(ctx); err != nil {
		b.log.ErrorContext(ctx, "redis subscribe failed",
			slog.String("channel", b.channel), slog.Any("error", err))
		_ = ps.Close()
		_ = sub.Close()
		return sub
	}

	sub.onClose = func() {
		_ = ps.Close()
		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = sub.Close()
		return sub
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go b.pump(ctx, ps, sub)

	return sub
}

func (b *RedisBroadcaster[T]) pump(ctx context.Context, ps *redis.PubSub, sub *subscriber[T]) {
	defer func() { _ = sub.Close() }()

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			var data T
			if err := json.Unmarshal([]byte(m.Payload), &data); err != nil {
				b.log.WarnContext(ctx, "dropping undecodable broadcast message",
					slog.String("channel", b.channel), slog.Any("error", err))
				continue
			}
			sub.send(Message[T]{Data: data})
		}
	}
}

func (b *RedisBroadcaster[T]) Broadcast(ctx context.Context, msg Message[T]) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrBroadcasterClosed
	}

	payload, err := json.Marshal(msg.Data)
	if err != nil {
		return fmt.Errorf("broadcast: encode message: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("broadcast: publish to %s: %w", b.channel, err)
	}
	return nil
}

// Close closes local subscribers. The Redis client stays open; its owner
// closes it.
func (b *RedisBroadcaster[T]) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*subscriber[T], 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
	return nil
}
