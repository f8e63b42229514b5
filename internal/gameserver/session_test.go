package gameserver

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/goban/internal/board"
	"github.com/udisondev/goban/internal/db"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	return NewSession(nil, db.NewListener("postgres://unused"), "m")
}

// nextMessage pops one outbound frame and decodes it into a generic
// map for assertions.
func nextMessage(t *testing.T, s *Session) map[string]any {
	t.Helper()
	select {
	case raw := <-s.Outbound():
		var out map[string]any
		require.NoError(t, json.Unmarshal(raw, &out))
		return out
	default:
		t.Fatal("expected an outbound message")
		return nil
	}
}

func TestHandleMessageMalformed(t *testing.T) {
	s := newTestSession(t)
	s.HandleMessage(context.Background(), []byte("{not json"))

	msg := nextMessage(t, s)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, errClientProtocol, msg["kind"])
}

func TestHandleMessageUnknownType(t *testing.T) {
	s := newTestSession(t)
	s.HandleMessage(context.Background(), []byte(`{"type":"teleport"}`))

	msg := nextMessage(t, s)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, errClientProtocol, msg["kind"])
	assert.Contains(t, msg["reason"], "teleport")
}

func TestHandleMessageMissingType(t *testing.T) {
	s := newTestSession(t)
	s.HandleMessage(context.Background(), []byte(`{"key":"abc"}`))

	msg := nextMessage(t, s)
	assert.Equal(t, errClientProtocol, msg["kind"])
}

func TestGameActionRequiresKey(t *testing.T) {
	s := newTestSession(t)
	s.HandleMessage(context.Background(),
		[]byte(`{"type":"game_action","action":{"kind":"pass"}}`))

	msg := nextMessage(t, s)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, errUnauthorized, msg["kind"])
}

func TestChatRequiresKey(t *testing.T) {
	s := newTestSession(t)
	s.HandleMessage(context.Background(), []byte(`{"type":"chat","message":"hi"}`))

	msg := nextMessage(t, s)
	assert.Equal(t, errUnauthorized, msg["kind"])
}

func TestNewGameRejectsBadSize(t *testing.T) {
	s := newTestSession(t)
	s.HandleMessage(context.Background(), []byte(`{"type":"new_game","size":10}`))

	msg := nextMessage(t, s)
	assert.Equal(t, errClientProtocol, msg["kind"])
	assert.Contains(t, msg["reason"], "size")
}

func TestNewGameRejectsBadColor(t *testing.T) {
	s := newTestSession(t)
	s.HandleMessage(context.Background(),
		[]byte(`{"type":"new_game","size":9,"your_color":"purple"}`))

	msg := nextMessage(t, s)
	assert.Equal(t, errClientProtocol, msg["kind"])
}

func TestJoinGameShortKeyIsDNE(t *testing.T) {
	s := newTestSession(t)
	s.HandleMessage(context.Background(), []byte(`{"type":"join_game","key":"short"}`))

	msg := nextMessage(t, s)
	assert.Equal(t, "join_game_response", msg["type"])
	assert.Equal(t, "dne", msg["status"])
}

func TestJoinGameWhileBound(t *testing.T) {
	s := newTestSession(t)
	s.key = "0123456789"
	s.HandleMessage(context.Background(), []byte(`{"type":"join_game","key":"abcdefghij"}`))

	msg := nextMessage(t, s)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, errKeyState, msg["kind"])
}

func TestActionMoveMapping(t *testing.T) {
	a := &action{Kind: "mark_dead", Row: 3, Col: 4, Dead: true}
	m, err := a.move(board.White)
	require.NoError(t, err)
	assert.Equal(t, board.White, m.Color)
	assert.Equal(t, 3, m.Row)
	assert.True(t, m.Dead)

	_, err = (&action{Kind: "fly"}).move(board.Black)
	assert.Error(t, err)
}

func TestAdvanceVersion(t *testing.T) {
	s := newTestSession(t)
	assert.True(t, s.advanceVersion(1))
	assert.True(t, s.advanceVersion(3))
	assert.False(t, s.advanceVersion(2))
	assert.False(t, s.advanceVersion(3))

	s.resetCounters(10)
	assert.False(t, s.advanceVersion(10))
	assert.True(t, s.advanceVersion(11))
}

func TestSeenChatFilters(t *testing.T) {
	s := newTestSession(t)
	assert.False(t, s.seenChat(1))
	assert.False(t, s.seenChat(2))
	assert.True(t, s.seenChat(2))
	assert.True(t, s.seenChat(1))
}

func TestPushChatDeduplicates(t *testing.T) {
	s := newTestSession(t)
	m := db.ChatMessage{ID: 7, Stamp: 12.5, Color: "black", Message: "hello"}
	s.pushChat(m)
	s.pushChat(m)

	first := nextMessage(t, s)
	assert.Equal(t, "chat", first["type"])
	assert.Equal(t, float64(7), first["id"])
	select {
	case raw := <-s.Outbound():
		t.Fatalf("duplicate chat pushed: %s", raw)
	default:
	}
}

func TestIllegalReason(t *testing.T) {
	err := &board.IllegalMoveError{Reason: board.ReasonSuicide}
	assert.Equal(t, "suicide", illegalReason(err))
	assert.Equal(t, "boom", illegalReason(errors.New("boom")))
}
