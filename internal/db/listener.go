package db

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
)

// Notification is one pub/sub event delivered to a subscribed
// session.
type Notification struct {
	Channel string
	Payload string
}

// Resync marks the synthetic notification injected after the listener
// reconnects: the store may have notified while we were away, so the
// session must re-read its state.
const Resync = "resync"

// Listener owns the process-wide dedicated LISTEN connection and fans
// notifications out to the session subscribed to each channel.
// Delivery is at-least-once: after a connection loss every subscribed
// channel receives a Resync notification.
type Listener struct {
	dsn string

	mu   sync.Mutex
	subs map[string]chan Notification

	// dirty is signaled by wake when the subscription set changes.
	// The run loop does not read it; listenOnce picks up changes on
	// its 250ms poll.
	dirty chan struct{}
}

// NewListener creates a listener; Run must be started for delivery.
func NewListener(dsn string) *Listener {
	return &Listener{
		dsn:   dsn,
		subs:  map[string]chan Notification{},
		dirty: make(chan struct{}, 1),
	}
}

// Subscribe registers a channel and returns the delivery stream. The
// channel buffer absorbs bursts; when a session lags, events are
// dropped and the session recovers from the next fetch.
func (l *Listener) Subscribe(channel string) <-chan Notification {
	ch := make(chan Notification, 64)
	l.mu.Lock()
	l.subs[channel] = ch
	l.mu.Unlock()
	l.wake()
	return ch
}

// Unsubscribe removes a channel registration and closes its stream.
func (l *Listener) Unsubscribe(channel string) {
	l.mu.Lock()
	ch, ok := l.subs[channel]
	if ok {
		delete(l.subs, channel)
	}
	l.mu.Unlock()
	if ok {
		close(ch)
	}
	l.wake()
}

func (l *Listener) wake() {
	select {
	case l.dirty <- struct{}{}:
	default:
	}
}

func (l *Listener) channels() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.subs))
	for ch := range l.subs {
		out = append(out, ch)
	}
	return out
}

// Run drives the LISTEN connection until ctx is canceled, redialing
// with backoff on any connection failure.
func (l *Listener) Run(ctx context.Context) error {
	delay := time.Second
	for {
		err := l.listenOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("notification listener disconnected", "err", err, "retry_in", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if delay < 30*time.Second {
			delay *= 2
		}
	}
}

// listenOnce dials, re-LISTENs every registered channel, injects
// resync events, and then relays notifications. The subscription set
// can change at any time; changes are applied between waits.
func (l *Listener) listenOnce(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return fmt.Errorf("dialing listener connection: %w", err)
	}
	defer conn.Close(context.Background())

	listened := map[string]bool{}
	for _, ch := range l.channels() {
		if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{ch}.Sanitize()); err != nil {
			return fmt.Errorf("listening on %s: %w", ch, err)
		}
		listened[ch] = true
		l.deliver(Notification{Channel: ch, Payload: Resync})
	}

	for {
		// Apply subscription changes before blocking again.
		current := map[string]bool{}
		for _, ch := range l.channels() {
			current[ch] = true
			if !listened[ch] {
				if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{ch}.Sanitize()); err != nil {
					return fmt.Errorf("listening on %s: %w", ch, err)
				}
				listened[ch] = true
			}
		}
		for ch := range listened {
			if !current[ch] {
				if _, err := conn.Exec(ctx, "UNLISTEN "+pgx.Identifier{ch}.Sanitize()); err != nil {
					return fmt.Errorf("unlistening %s: %w", ch, err)
				}
				delete(listened, ch)
			}
		}

		waitCtx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
		n, err := conn.WaitForNotification(waitCtx)
		cancel()
		if err != nil {
			if waitCtx.Err() != nil && ctx.Err() == nil {
				continue // periodic wakeup to apply subscription changes
			}
			return fmt.Errorf("waiting for notification: %w", err)
		}
		l.deliver(Notification{Channel: n.Channel, Payload: n.Payload})
	}
}

func (l *Listener) deliver(n Notification) {
	// The send stays under the lock so Unsubscribe cannot close the
	// stream between lookup and send. Sends never block.
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.subs[n.Channel]
	if !ok {
		return
	}
	select {
	case ch <- n:
	default:
		slog.Warn("dropping notification, subscriber lagging", "channel", n.Channel)
	}
}
