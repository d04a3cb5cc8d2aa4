// Package realtime pushes events to live client connections grouped by
// recipient.
//
// Each recipient with at least one connection owns a group backed by a
// broadcast.MemoryBroadcaster; the group is dropped with its last
// connection. Emits are fire-and-forget: nothing is queued for recipients
// that are offline.
//
// With a backplane (a broadcast.RedisBroadcaster shared by every instance)
// EmitToRecipient publishes to the backplane and Run delivers what arrives
// to the local groups, so any instance can reach any connected client.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/lifebank/notifykit/pkg/broadcast"
	"github.com/lifebank/notifykit/pkg/logger"
)

var (
	ErrNoBackplane     = errors.New("realtime: gateway has no backplane")
	ErrInvalidPayload  = errors.New("realtime: payload cannot be encoded")
	ErrGatewayShutdown = errors.New("realtime: gateway is shut down")
)

// Event is the frame written to clients.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Envelope carries an event across the backplane.
type Envelope struct {
	RecipientID string `json:"recipientId"`
	Event       Event  `json:"event"`
}

type group struct {
	b     *broadcast.MemoryBroadcaster[Event]
	conns int
}

type Gateway struct {
	mu        sync.Mutex
	groups    map[string]*group
	conns     map[*Connection]struct{}
	closed    bool
	buffer    int
	backplane broadcast.Broadcaster[Envelope]
	logger    *slog.Logger
}

type Option func(*Gateway)

// WithBufferSize sets how many undelivered events a connection holds
// before new ones are dropped for it.
func WithBufferSize(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.buffer = n
		}
	}
}

func WithBackplane(b broadcast.Broadcaster[Envelope]) Option {
	return func(g *Gateway) { g.backplane = b }
}

func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

func NewGateway(opts ...Option) *Gateway {
	g := &Gateway{
		groups: make(map[string]*group),
		conns:  make(map[*Connection]struct{}),
		buffer: 32,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With(logger.Component("realtime"))
	return g
}

// Connection is one live client. A connection without a recipient id is
// valid but belongs to no group and never receives events.
type Connection struct {
	ID          uuid.UUID
	RecipientID string

	sub     broadcast.Subscriber[Event]
	private *broadcast.MemoryBroadcaster[Event]
	done    chan struct{}
	once    sync.Once
}

// Events yields the events addressed to the connection's recipient. The
// channel is closed by Disconnect.
func (c *Connection) Events() <-chan broadcast.Message[Event] {
	return c.sub.Receive(context.Background())
}

// Connect registers a connection. It is disconnected when ctx is done.
func (g *Gateway) Connect(ctx context.Context, recipientID string) *Connection {
	c := &Connection{ID: uuid.New(), RecipientID: recipientID, done: make(chan struct{})}

	g.mu.Lock()
	if recipientID == "" || g.closed {
		g.mu.Unlock()
		c.private = broadcast.NewMemoryBroadcaster[Event](1)
		c.sub = c.private.Subscribe(context.Background())
		if g.closed {
			_ = c.private.Close()
		}
		return c
	}

	grp, ok := g.groups[recipientID]
	if !ok {
		grp = &group{b: broadcast.NewMemoryBroadcaster[Event](g.buffer)}
		g.groups[recipientID] = grp
	}
	grp.conns++
	c.sub = grp.b.Subscribe(context.Background())
	g.conns[c] = struct{}{}
	g.mu.Unlock()

	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				g.Disconnect(c)
			case <-c.done:
			}
		}()
	}
	return c
}

// Disconnect removes c from its group. Calling it again is a no-op.
func (g *Gateway) Disconnect(c *Connection) {
	if c == nil {
		return
	}
	c.once.Do(func() {
		close(c.done)
		_ = c.sub.Close()
		if c.private != nil {
			_ = c.private.Close()
			return
		}

		g.mu.Lock()
		defer g.mu.Unlock()
		if _, ok := g.conns[c]; !ok {
			return
		}
		delete(g.conns, c)
		grp, ok := g.groups[c.RecipientID]
		if !ok {
			return
		}
		grp.conns--
		if grp.conns <= 0 {
			_ = grp.b.Close()
			delete(g.groups, c.RecipientID)
		}
	})
}

// GroupSize returns the number of live connections of a recipient.
func (g *Gateway) GroupSize(recipientID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if grp, ok := g.groups[recipientID]; ok {
		return grp.conns
	}
	return 0
}

// EmitToRecipient sends event with payload encoded as JSON to every live
// connection of recipientID. An offline recipient is not an error.
func (g *Gateway) EmitToRecipient(ctx context.Context, recipientID, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	ev := Event{Event: event, Data: data}

	if g.backplane != nil {
		return g.backplane.Broadcast(ctx, broadcast.Message[Envelope]{
			Data: Envelope{RecipientID: recipientID, Event: ev},
		})
	}
	g.deliver(ctx, recipientID, ev)
	return nil
}

func (g *Gateway) deliver(ctx context.Context, recipientID string, ev Event) {
	g.mu.Lock()
	grp, ok := g.groups[recipientID]
	g.mu.Unlock()
	if !ok {
		return
	}
	_ = grp.b.Broadcast(ctx, broadcast.Message[Event]{Data: ev})
}

// Run relays backplane messages to local connections until ctx is done.
func (g *Gateway) Run(ctx context.Context) error {
	if g.backplane == nil {
		return ErrNoBackplane
	}
	sub := g.backplane.Subscribe(ctx)
	defer func() { _ = sub.Close() }()

	g.logger.InfoContext(ctx, "realtime backplane relay started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.Receive(ctx):
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrGatewayShutdown
			}
			g.deliver(ctx, msg.Data.RecipientID, msg.Data.Event)
		}
	}
}

// Close disconnects every connection.
func (g *Gateway) Close() error {
	g.mu.Lock()
	g.closed = true
	conns := make([]*Connection, 0, len(g.conns))
	for c := range g.conns {
		conns = append(conns, c)
	}
	g.mu.Unlock()

	for _, c := range conns {
		g.Disconnect(c)
	}
	return nil
}
