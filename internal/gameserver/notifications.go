package gameserver

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/udisondev/goban/internal/db"
)

// startNotifications subscribes the three per-key channels and starts
// the goroutine that relays store notifications to the client. The
// session goroutine must have the key bound before calling.
func (s *Session) startNotifications(ctx context.Context) {
	key := s.key
	channels := []string{
		db.ChannelGameStatus + key,
		db.ChannelChat + key,
		db.ChannelOpponentConnected + key,
	}
	gsCh := s.listener.Subscribe(channels[0])
	chatCh := s.listener.Subscribe(channels[1])
	oppCh := s.listener.Subscribe(channels[2])

	nctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.notifyLoop(nctx, key, gsCh, chatCh, oppCh)
	}()

	s.notifyStop = func() {
		cancel()
		for _, ch := range channels {
			s.listener.Unsubscribe(ch)
		}
		<-done
	}
}

// stopNotifications unsubscribes and waits for the relay goroutine.
// Safe to call when nothing is running.
func (s *Session) stopNotifications() {
	if s.notifyStop != nil {
		s.notifyStop()
		s.notifyStop = nil
	}
}

// notifyLoop relays until the context is canceled or every stream is
// closed. A Resync payload means the listener reconnected and events
// may have been missed, so state is re-read instead of trusted.
func (s *Session) notifyLoop(ctx context.Context, key string, gsCh, chatCh, oppCh <-chan db.Notification) {
	for gsCh != nil || chatCh != nil || oppCh != nil {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-gsCh:
			if !ok {
				gsCh = nil
				continue
			}
			// Whether the payload names a version or asks for a
			// resync, the authoritative row decides what to push.
			s.refreshGameStatus(ctx)
		case n, ok := <-chatCh:
			if !ok {
				chatCh = nil
				continue
			}
			s.handleChatNotification(ctx, key, n)
		case n, ok := <-oppCh:
			if !ok {
				oppCh = nil
				continue
			}
			s.handleOpponentNotification(ctx, key, n)
		}
	}
}

func (s *Session) handleChatNotification(ctx context.Context, key string, n db.Notification) {
	var id *int64
	if n.Payload != db.Resync {
		parsed, err := strconv.ParseInt(n.Payload, 10, 64)
		if err != nil {
			slog.Warn("chat notification with bad payload", "payload", n.Payload)
			return
		}
		id = &parsed
	}

	messages, err := s.store.GetChatUpdates(ctx, key, id)
	if err != nil {
		slog.Error("fetching chat after notification", "key", key, "err", err)
		return
	}
	for _, m := range messages {
		s.pushChat(m)
	}
}

func (s *Session) handleOpponentNotification(ctx context.Context, key string, n db.Notification) {
	connected := n.Payload == "true"
	if n.Payload == db.Resync {
		var err error
		connected, err = s.store.GetOpponentConnected(ctx, key)
		if err != nil {
			slog.Error("fetching opponent presence after resync", "key", key, "err", err)
			return
		}
	}
	s.push(opponentConnectedMsg{Type: "opponent_connected", Connected: connected})
}
