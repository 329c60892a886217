package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

const DefaultInboxSize = 128

type result struct {
	reply Reply
	err   error
}

type envelope struct {
	ctx   context.Context
	msg   Message
	reply chan result // nil for notifications
}

// Bus carries typed messages between components. Requests get at most one reply;
// notifications get none and never fail when nobody listens. Handlers run on a single
// goroutine in arrival order.
type Bus struct {
	handlers map[MessageType][]Handler
	inbox    chan envelope
	mu       sync.RWMutex
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	once     sync.Once
}

func NewBus(inboxSize int) *Bus {
	if inboxSize <= 0 {
		inboxSize = DefaultInboxSize
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Bus{
		handlers: make(map[MessageType][]Handler),
		inbox:    make(chan envelope, inboxSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (b *Bus) Handle(t MessageType, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

func (b *Bus) HasHandler(t MessageType) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[t]) > 0
}

// Request sends msg and waits for its reply. A cancelled ctx abandons the wait; the reply,
// if it arrives later, is discarded.
func (b *Bus) Request(ctx context.Context, msg Message) (Reply, error) {
	if !b.HasHandler(msg.Type) {
		return Reply{}, fmt.Errorf("%w: %s", ErrNoHandler, msg.Type)
	}

	env := envelope{ctx: ctx, msg: msg, reply: make(chan result, 1)}

	select {
	case b.inbox <- env:
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	case <-b.ctx.Done():
		return Reply{}, ErrStopped
	}

	select {
	case res := <-env.reply:
		return res.reply, res.err
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	case <-b.ctx.Done():
		return Reply{}, ErrStopped
	}
}

// Notify sends msg without waiting. It is dropped when nobody handles the type, the inbox is
// full, or the bus is stopped.
func (b *Bus) Notify(msg Message) {
	if !b.HasHandler(msg.Type) {
		slog.Debug("No receiver for notification", "type", msg.Type)
		return
	}
	if b.ctx.Err() != nil {
		return
	}

	select {
	case b.inbox <- envelope{ctx: context.Background(), msg: msg}:
	default:
		slog.Warn("Message inbox full, dropping notification", "type", msg.Type, "id", msg.ID)
	}
}

func (b *Bus) Start() {
	b.once.Do(func() {
		b.wg.Add(1)
		go b.loop()
	})
}

func (b *Bus) Stop() {
	b.cancel()
	b.wg.Wait()
}

func (b *Bus) loop() {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			return
		case env := <-b.inbox:
			b.dispatch(env)
		}
	}
}

func (b *Bus) dispatch(env envelope) {
	b.mu.RLock()
	handlers := b.handlers[env.msg.Type]
	b.mu.RUnlock()

	answered := false
	for _, h := range handlers {
		reply, err := b.invoke(env, h)
		if env.reply != nil && !answered {
			env.reply <- result{reply: reply, err: err}
			answered = true
		}
	}

	if env.reply != nil && !answered {
		env.reply <- result{err: fmt.Errorf("%w: %s", ErrNoHandler, env.msg.Type)}
	}
}

func (b *Bus) invoke(env envelope, h Handler) (reply Reply, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic recovered in message handler", "type", env.msg.Type, "id", env.msg.ID, "error", r)
			err = fmt.Errorf("handler for %s panicked: %v", env.msg.Type, r)
		}
	}()

	return h(env.ctx, env.msg)
}
