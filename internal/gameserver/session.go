package gameserver

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/udisondev/goban/internal/board"
	"github.com/udisondev/goban/internal/db"
	"github.com/udisondev/goban/internal/game"
)

// Session is the per-connection state machine. It holds at most one
// player key; every action round-trips through the store, so the
// in-memory game is rebuilt per action and never cached.
type Session struct {
	store     *db.Store
	listener  *db.Listener
	managerID string

	send chan []byte

	// key and color change only on the session goroutine, and only
	// while the notification goroutine is stopped.
	key   string
	color board.Color

	// mu guards the last-seen counters, which the session goroutine
	// and the notification goroutine both advance.
	mu          sync.Mutex
	lastVersion int
	lastChatID  int64

	notifyStop func()
}

// NewSession creates a session around an outbound queue consumed by
// the connection's write pump.
func NewSession(store *db.Store, listener *db.Listener, managerID string) *Session {
	return &Session{
		store:     store,
		listener:  listener,
		managerID: managerID,
		send:      make(chan []byte, 256),
	}
}

// Outbound returns the queue of messages to write to the client.
func (s *Session) Outbound() <-chan []byte {
	return s.send
}

func (s *Session) push(v any) {
	payload := marshalMsg(v)
	select {
	case s.send <- payload:
	default:
		slog.Warn("outbound queue full, dropping message", "key", s.key)
	}
}

// HandleMessage processes one inbound frame. Frames are handled
// strictly in arrival order by the read pump.
func (s *Session) HandleMessage(ctx context.Context, raw []byte) {
	var msg inbound
	if err := unmarshalStrictType(raw, &msg); err != nil {
		s.push(errorMsg{Type: "error", Kind: errClientProtocol, Reason: err.Error()})
		return
	}

	switch msg.Type {
	case "new_game":
		s.handleNewGame(ctx, &msg)
	case "join_game":
		s.handleJoinGame(ctx, &msg)
	case "game_action":
		s.handleGameAction(ctx, &msg)
	case "chat":
		s.handleChat(ctx, &msg)
	default:
		s.push(errorMsg{Type: "error", Kind: errClientProtocol, Reason: "unknown message type " + strconv.Quote(msg.Type)})
	}
}

func (s *Session) handleNewGame(ctx context.Context, msg *inbound) {
	size := msg.Size
	if size == 0 {
		size = 19
	}
	if !board.ValidSize(size) {
		s.push(errorMsg{Type: "error", Kind: errClientProtocol, Reason: "unsupported board size"})
		return
	}

	komi := board.DefaultKomi
	if msg.Handicap > 0 {
		komi = board.HandicapKomi
	}
	if msg.Komi != nil {
		komi = *msg.Komi
	}

	yourColor := board.Black
	if msg.YourColor != "" {
		c, err := board.ParseColor(msg.YourColor)
		if err != nil {
			s.push(errorMsg{Type: "error", Kind: errClientProtocol, Reason: err.Error()})
			return
		}
		yourColor = c
	}

	g, err := game.New(size, komi, msg.Handicap)
	if err != nil {
		s.push(errorMsg{Type: "error", Kind: errClientProtocol, Reason: err.Error()})
		return
	}
	blob, err := g.Marshal()
	if err != nil {
		s.serverError(err)
		return
	}

	params := db.CreateGameParams{
		Data:           blob,
		JoiningColor:   yourColor.String(),
		ManagerID:      s.managerID,
		UnsubscribeKey: msg.KeyToUnsubscribe,
	}
	if params.UnsubscribeKey == "" {
		// A bound session moving to a fresh game gives its old key
		// back in the same transaction.
		params.UnsubscribeKey = s.key
	}
	if msg.VsAI {
		secret, err := db.GenerateAISecret()
		if err != nil {
			s.serverError(err)
			return
		}
		// The secret goes on the opposing key so the AI worker can
		// attach to it.
		if yourColor == board.Black {
			params.AISecretWhite = secret
		} else {
			params.AISecretBlack = secret
		}
	}

	res, err := s.store.CreateGame(ctx, params)
	if err != nil {
		s.serverError(err)
		return
	}

	// Rebind: the store already released key_to_unsubscribe inside
	// the creation transaction; drop its channels locally.
	s.stopNotifications()
	key := res.BlackKey
	if yourColor == board.White {
		key = res.WhiteKey
	}
	s.key = key
	s.color = yourColor
	s.resetCounters(0)
	s.startNotifications(ctx)

	s.push(newGameResponse{
		Type:      "new_game_response",
		WhiteKey:  res.WhiteKey,
		BlackKey:  res.BlackKey,
		YourColor: yourColor.String(),
		Version:   0,
		Game:      blob,
	})
}

func (s *Session) handleJoinGame(ctx context.Context, msg *inbound) {
	if s.key != "" {
		s.push(errorMsg{Type: "error", Kind: errKeyState, Reason: "session already bound to a key"})
		return
	}
	if len(msg.Key) != db.KeyLength {
		s.push(joinGameResponse{Type: "join_game_response", Status: string(db.JoinDNE)})
		return
	}

	res, err := s.store.JoinGame(ctx, msg.Key, s.managerID, msg.AISecret)
	if err != nil {
		s.serverError(err)
		return
	}
	if res.Status != db.JoinSuccess {
		s.push(joinGameResponse{Type: "join_game_response", Status: string(res.Status)})
		return
	}

	color := board.Black
	if msg.Key == res.WhiteKey {
		color = board.White
	}

	status, err := s.store.GetGameStatus(ctx, msg.Key)
	if err != nil || status == nil {
		if err == nil {
			err = errors.New("joined key has no game row")
		}
		// Give the key back; the client can retry.
		if _, uerr := s.store.Unsubscribe(ctx, msg.Key, s.managerID); uerr != nil {
			slog.Error("releasing key after failed join", "key", msg.Key, "err", uerr)
		}
		s.serverError(err)
		return
	}

	s.key = msg.Key
	s.color = color
	s.resetCounters(status.Version)
	s.startNotifications(ctx)

	s.push(joinGameResponse{
		Type:       "join_game_response",
		Status:     string(db.JoinSuccess),
		YourColor:  color.String(),
		Version:    status.Version,
		TimePlayed: status.TimePlayed,
		Game:       status.Data,
	})

	// Full chat backlog and opponent presence follow the response.
	chat, err := s.store.GetChatUpdates(ctx, msg.Key, nil)
	if err != nil {
		slog.Error("loading chat backlog", "key", msg.Key, "err", err)
	}
	for _, m := range chat {
		s.pushChat(m)
	}
	connected, err := s.store.GetOpponentConnected(ctx, msg.Key)
	if err != nil {
		slog.Error("loading opponent presence", "key", msg.Key, "err", err)
		return
	}
	s.push(opponentConnectedMsg{Type: "opponent_connected", Connected: connected})
}

func (s *Session) handleGameAction(ctx context.Context, msg *inbound) {
	if s.key == "" {
		s.push(errorMsg{Type: "error", Kind: errUnauthorized, Reason: "no key bound"})
		return
	}
	if msg.Action == nil {
		s.push(errorMsg{Type: "error", Kind: errClientProtocol, Reason: "game_action needs an action"})
		return
	}
	move, err := msg.Action.move(s.color)
	if err != nil {
		s.push(errorMsg{Type: "error", Kind: errClientProtocol, Reason: err.Error()})
		return
	}

	status, err := s.store.GetGameStatus(ctx, s.key)
	if err != nil {
		s.serverError(err)
		return
	}
	if status == nil {
		s.push(errorMsg{Type: "error", Kind: errKeyState, Reason: "game no longer exists"})
		return
	}

	g, err := game.Unmarshal(status.Data)
	if err != nil {
		s.serverError(err)
		return
	}
	if err := g.Apply(move); err != nil {
		s.push(errorMsg{Type: "error", Kind: errIllegalMove, Reason: illegalReason(err)})
		return
	}
	blob, err := g.Marshal()
	if err != nil {
		s.serverError(err)
		return
	}

	played, err := s.store.WriteGame(ctx, s.key, blob, status.Version+1)
	if err != nil {
		s.serverError(err)
		return
	}
	if played == nil {
		// Version conflict: another writer won. Re-sync from the
		// authoritative row; no client error.
		s.push(gameActionResponse{Type: "game_action_response", Success: false})
		s.refreshGameStatus(ctx)
		return
	}

	version := status.Version + 1
	s.advanceVersion(version)
	s.push(gameActionResponse{Type: "game_action_response", Success: true, Version: version})
	s.push(gameStatusMsg{
		Type:       "game_status",
		Version:    version,
		TimePlayed: *played,
		Game:       blob,
	})
}

func (s *Session) handleChat(ctx context.Context, msg *inbound) {
	if s.key == "" {
		s.push(errorMsg{Type: "error", Kind: errUnauthorized, Reason: "no key bound"})
		return
	}
	if msg.Message == "" {
		s.push(errorMsg{Type: "error", Kind: errClientProtocol, Reason: "chat needs a message"})
		return
	}

	// No local echo: the store notifies this session's own chat
	// channel with the assigned id.
	stamp := float64(time.Now().UnixMilli()) / 1000
	if _, err := s.store.WriteChat(ctx, stamp, msg.Message, s.key); err != nil {
		s.serverError(err)
	}
}

// Close releases the key and channel subscriptions. Called from the
// connection teardown path exactly once.
func (s *Session) Close(ctx context.Context) {
	s.stopNotifications()
	if s.key != "" {
		if _, err := s.store.Unsubscribe(ctx, s.key, s.managerID); err != nil {
			// The startup cleanup pass reclaims the key if this
			// fails.
			slog.Error("unsubscribing on close", "key", s.key, "err", err)
		}
		s.key = ""
	}
	close(s.send)
}

func (s *Session) serverError(err error) {
	slog.Error("session store failure", "key", s.key, "err", err)
	s.push(errorMsg{Type: "error", Kind: errServerError, Reason: "store unavailable"})
}

func (s *Session) resetCounters(version int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastVersion = version
	s.lastChatID = 0
}

// advanceVersion moves the last-seen version forward, reporting
// whether v was actually newer.
func (s *Session) advanceVersion(v int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v <= s.lastVersion {
		return false
	}
	s.lastVersion = v
	return true
}

func (s *Session) seenChat(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id <= s.lastChatID {
		return true
	}
	s.lastChatID = id
	return false
}

func (s *Session) pushChat(m db.ChatMessage) {
	if s.seenChat(m.ID) {
		return
	}
	s.push(chatMsg{
		Type:      "chat",
		ID:        m.ID,
		Timestamp: m.Stamp,
		Color:     m.Color,
		Message:   m.Message,
	})
}

// refreshGameStatus fetches the authoritative row and pushes it when
// it is newer than anything the client has seen.
func (s *Session) refreshGameStatus(ctx context.Context) {
	status, err := s.store.GetGameStatus(ctx, s.key)
	if err != nil {
		s.serverError(err)
		return
	}
	if status == nil || !s.advanceVersion(status.Version) {
		return
	}
	s.push(gameStatusMsg{
		Type:       "game_status",
		Version:    status.Version,
		TimePlayed: status.TimePlayed,
		Game:       status.Data,
	})
}

func illegalReason(err error) string {
	var illegal *board.IllegalMoveError
	if errors.As(err, &illegal) {
		return string(illegal.Reason)
	}
	return err.Error()
}
